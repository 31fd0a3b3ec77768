package feedback

import (
	"fmt"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feedback/core"
)

var (
	studyWindowTag  = "study_window"
	studyWindowText = "ends_at must be after starts_at"

	initValidatorsOnce sync.Once
)

// sharedValidator returns the app validator with the feedback validators registered.
// Registration happens once: the validator is shared with the API, which validates concurrently.
func sharedValidator() *validator.Validate {
	validate, translator := core.NewValidator()
	initValidatorsOnce.Do(func() { initValidators(validate, translator) })
	return validate
}

func initValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(studyStructValidation, NewStudy{})
	core.RegisterCustomTranslation(validate, translator, studyWindowTag, studyWindowText)
}

func studyStructValidation(sl validator.StructLevel) {
	ns := sl.Current().Interface().(NewStudy)
	if ns.StartsAt != nil && ns.EndsAt != nil && !ns.EndsAt.After(*ns.StartsAt) {
		sl.ReportError(ns.EndsAt, "ends_at", "EndsAt", studyWindowTag, "")
	}
}

// checkStudyConfigurations enforces that a study only groups existing configurations
// of its academy, all with the same trigger type.
func checkStudyConfigurations(academyID int, ids []int, cfgs []SurveyConfiguration) error {
	field := "survey_configurations"
	if len(cfgs) != len(ids) {
		found := make(map[int]bool, len(cfgs))
		for _, cfg := range cfgs {
			found[cfg.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return core.NewFieldValidationError(fmt.Errorf("survey configuration %d not found", id), field)
			}
		}
	}

	for _, cfg := range cfgs {
		if cfg.AcademyID != academyID {
			return core.NewFieldValidationError(fmt.Errorf("survey configuration %d belongs to another academy", cfg.ID), field)
		}
		if cfg.TriggerType != cfgs[0].TriggerType {
			return core.NewFieldValidationError(ErrMixedTriggerTypes, field)
		}
	}
	return nil
}
