package feedback

import (
	"sort"
	"time"
)

// studyGroup is an open study with the eligible configurations it will sample from.
type studyGroup struct {
	study   SurveyStudy
	configs []SurveyConfiguration
}

// resolveStudy returns the open study of cfg's academy containing cfg.
// Ties go to the latest starts_at (a null start is the earliest), then to the highest id.
func resolveStudy(cfg SurveyConfiguration, studies []SurveyStudy, now time.Time) (SurveyStudy, bool) {
	var best SurveyStudy
	var found bool
	for _, s := range studies {
		if s.AcademyID != cfg.AcademyID || !s.Contains(cfg.ID) || !s.IsOpen(now) {
			continue
		}
		if !found || startsAfter(s, best) || (sameStart(s, best) && s.ID > best.ID) {
			best, found = s, true
		}
	}
	return best, found
}

func startsAfter(a, b SurveyStudy) bool {
	switch {
	case a.StartsAt == nil:
		return false
	case b.StartsAt == nil:
		return true
	}
	return a.StartsAt.After(*b.StartsAt)
}

func sameStart(a, b SurveyStudy) bool {
	if a.StartsAt == nil || b.StartsAt == nil {
		return a.StartsAt == nil && b.StartsAt == nil
	}
	return a.StartsAt.Equal(*b.StartsAt)
}

// groupByStudy drops configurations without an open study or failing the filters,
// and groups the others by study in ascending study id order.
func groupByStudy(cfgs []SurveyConfiguration, studies []SurveyStudy, tc TriggerContext, now time.Time) []studyGroup {
	byID := make(map[int]*studyGroup)
	for _, cfg := range cfgs {
		study, ok := resolveStudy(cfg, studies, now)
		if !ok || !eligible(cfg, tc) {
			continue
		}
		grp, ok := byID[study.ID]
		if !ok {
			grp = &studyGroup{study: study}
			byID[study.ID] = grp
		}
		grp.configs = append(grp.configs, cfg)
	}

	groups := make([]studyGroup, 0, len(byID))
	for _, grp := range byID {
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].study.ID < groups[j].study.ID })
	return groups
}
