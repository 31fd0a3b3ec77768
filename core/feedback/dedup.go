package feedback

import "strconv"

// dedupKeys lists the trigger_context keys narrowing deduplication per trigger type.
var dedupKeys = map[TriggerType][]string{
	TriggerCourseCompleted:    {KeyCohortID},
	TriggerSyllabusCompleted:  {KeyCohortID, KeySyllabusSlug, KeySyllabusVersion},
	TriggerModuleCompleted:    {KeyCohortID, KeySyllabusSlug, KeySyllabusVersion, KeyModule},
	TriggerLearnpackCompleted: {KeyAssetSlug},
}

func newDedupFilter(cfg SurveyConfiguration, userID, studyID int, tc TriggerContext) DedupFilter {
	return DedupFilter{
		ConfigurationID: cfg.ID,
		UserID:          userID,
		StudyID:         studyID,
		TriggerType:     tc.TriggerType,
		Match:           dedupKeys[tc.TriggerType],
		Context:         tc,
	}
}

// ContextText returns the text form of a trigger_context key as stored in JSON,
// nil when the key is absent. It mirrors postgres' "trigger_context->>key".
func ContextText(tc TriggerContext, key string) *string {
	var s string
	switch key {
	case KeyCohortID:
		if tc.CohortID == nil {
			return nil
		}
		s = strconv.Itoa(*tc.CohortID)
	case KeySyllabusSlug:
		if tc.SyllabusSlug == "" {
			return nil
		}
		s = tc.SyllabusSlug
	case KeySyllabusVersion:
		if tc.SyllabusVersion == nil {
			return nil
		}
		s = strconv.Itoa(*tc.SyllabusVersion)
	case KeyModule:
		if tc.Module == nil {
			return nil
		}
		s = strconv.Itoa(*tc.Module)
	case KeyAssetSlug:
		if tc.AssetSlug == "" {
			return nil
		}
		s = tc.AssetSlug
	case "trigger_type":
		if tc.TriggerType == "" {
			return nil
		}
		s = string(tc.TriggerType)
	default:
		return nil
	}
	return &s
}

// MatchesDedup reports whether resp is a live response blocking filter.
// Used by the in-memory repository; SQL repositories express the same rule in their query.
func MatchesDedup(resp SurveyResponse, filter DedupFilter) bool {
	if !resp.Status.IsLive() || resp.ConfigurationID != filter.ConfigurationID || resp.UserID != filter.UserID {
		return false
	}
	if resp.StudyID == nil || *resp.StudyID != filter.StudyID {
		return false
	}
	if resp.TriggerContext.TriggerType != filter.TriggerType {
		return false
	}
	for _, key := range filter.Match {
		a, b := ContextText(resp.TriggerContext, key), ContextText(filter.Context, key)
		if (a == nil) != (b == nil) || (a != nil && *a != *b) {
			return false
		}
	}
	return true
}
