package feedback

import "sort"

// eligible runs the filter pipeline, cheapest checks first.
func eligible(cfg SurveyConfiguration, tc TriggerContext) bool {
	return matchesScope(cfg, tc) && matchesCohort(cfg, tc) && matchesAsset(cfg, tc)
}

// matchesScope compares syllabus, version and module for module and syllabus triggers.
// A dimension only constrains when both the configuration and the context specify it.
// Module configurations are eligible up to the module just completed, so that the
// sampling walk can see every earlier module.
func matchesScope(cfg SurveyConfiguration, tc TriggerContext) bool {
	if !tc.TriggerType.usesSyllabusScope() {
		return true
	}
	sf := cfg.ScopeFilter
	if sf.Syllabus != "" && tc.SyllabusSlug != "" && sf.Syllabus != tc.SyllabusSlug {
		return false
	}
	if sf.Version != nil && tc.SyllabusVersion != nil && *sf.Version != *tc.SyllabusVersion {
		return false
	}
	if tc.TriggerType == TriggerModuleCompleted && sf.Module != nil && tc.Module != nil && *sf.Module > *tc.Module {
		return false
	}
	return true
}

func matchesCohort(cfg SurveyConfiguration, tc TriggerContext) bool {
	if len(cfg.CohortIDs) == 0 {
		return true
	}
	if tc.CohortID == nil {
		return false
	}
	for _, id := range cfg.CohortIDs {
		if id == *tc.CohortID {
			return true
		}
	}
	return false
}

func matchesAsset(cfg SurveyConfiguration, tc TriggerContext) bool {
	if tc.TriggerType != TriggerLearnpackCompleted {
		return true
	}
	if cfg.ScopeFilter.AssetSlug != "" && tc.AssetSlug != "" && cfg.ScopeFilter.AssetSlug != tc.AssetSlug {
		return false
	}
	if len(cfg.AssetSlugs) == 0 {
		return true
	}
	for _, slug := range cfg.AssetSlugs {
		if slug == tc.AssetSlug {
			return true
		}
	}
	return false
}

// moduleCandidates orders module configurations by ascending module and applies the ceiling:
// modules above the completed one are dropped, and so are module-less configurations
// when the context reports a module.
func moduleCandidates(cfgs []SurveyConfiguration, tc TriggerContext) []SurveyConfiguration {
	out := make([]SurveyConfiguration, 0, len(cfgs))
	for _, cfg := range cfgs {
		if tc.Module != nil {
			if cfg.ScopeFilter.Module == nil || *cfg.ScopeFilter.Module > *tc.Module {
				continue
			}
		}
		out = append(out, cfg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].module() != out[j].module() {
			return out[i].module() < out[j].module()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// firstMatchCandidates orders non-module configurations by id.
func firstMatchCandidates(cfgs []SurveyConfiguration) []SurveyConfiguration {
	out := make([]SurveyConfiguration, len(cfgs))
	copy(out, cfgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
