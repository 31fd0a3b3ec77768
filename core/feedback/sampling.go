package feedback

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DrawFunc returns a deterministic value in [0, 100) for a user, a study and a module.
type DrawFunc func(userID, studyID, module int) float64

// Draw hashes (user, study, module) with a stable, unseeded 64-bit hash.
// The same triple always yields the same value, across processes and restarts.
func Draw(userID, studyID, module int) float64 {
	key := strconv.Itoa(userID) + ":" + strconv.Itoa(studyID) + ":" + strconv.Itoa(module)
	return float64(xxhash.Sum64String(key)%10000) / 100
}

// ConditionalProbability is the chance, in percent, of selecting a user at a step whose
// cumulative priority is current, given they were not selected up to previous.
func ConditionalProbability(previous, current float64) float64 {
	if previous >= 100 || previous >= current {
		return 0
	}
	return (current - previous) / (100 - previous) * 100
}

// isDuplicateFunc reports whether a configuration already has a live response for the user.
type isDuplicateFunc func(cfg SurveyConfiguration) (bool, error)

// selectByHazard walks cfgs (sorted by module) with conditional hazard sampling, so that the
// share of users selected by the k-th step converges to cfgs[k].Priority / 100.
func selectByHazard(cfgs []SurveyConfiguration, userID, studyID int, draw DrawFunc, isDuplicate isDuplicateFunc) (*SurveyConfiguration, error) {
	var previous float64
	for i := range cfgs {
		cfg := cfgs[i]
		current := cfg.Priority
		prob := ConditionalProbability(previous, current)
		if prob > 0 && draw(userID, studyID, cfg.module()) < prob {
			dup, err := isDuplicate(cfg)
			if err != nil {
				return nil, err
			}
			if !dup {
				return &cfg, nil
			}
		}
		previous = current
	}
	return nil, nil
}

// selectFirst returns the first configuration without a live response. Priority is ignored.
func selectFirst(cfgs []SurveyConfiguration, isDuplicate isDuplicateFunc) (*SurveyConfiguration, error) {
	for i := range cfgs {
		cfg := cfgs[i]
		dup, err := isDuplicate(cfg)
		if err != nil {
			return nil, err
		}
		if !dup {
			return &cfg, nil
		}
	}
	return nil, nil
}
