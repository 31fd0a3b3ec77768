package feedback

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/academy"
)

// Context keys
const (
	KeyAcademy         = "academy"
	KeyCohort          = "cohort"
	KeyCohortID        = "cohort_id"
	KeySyllabusSlug    = "syllabus_slug"
	KeySyllabusVersion = "syllabus_version"
	KeyModule          = "module"
	KeyAssetSlug       = "asset_slug"
)

// Context is the loosely typed data sent along with a trigger.
// Known keys: academy, cohort, cohort_id, syllabus_slug, syllabus_version, module, asset_slug.
type Context map[string]interface{}

// ParseContext extracts a TriggerContext out of ctx.
// Malformed values are dropped and reported by key in the returned map.
func ParseContext(trigger TriggerType, ctx Context) (TriggerContext, map[string]string) {
	tc := TriggerContext{TriggerType: trigger}
	problems := make(map[string]string)

	for key, val := range ctx {
		if val == nil {
			continue
		}
		switch key {
		case KeyAcademy:
			if id, ok := academyID(val); ok {
				tc.AcademyID = id
			} else {
				problems[key] = describe(val)
			}
		case KeyCohort:
			if id, ok := cohortID(val); ok {
				if tc.CohortID == nil {
					tc.CohortID = core.IntPtr(id)
				}
			} else {
				problems[key] = describe(val)
			}
		case KeyCohortID:
			if id, ok := toInt(val); ok {
				tc.CohortID = core.IntPtr(id) // takes precedence over cohort
			} else {
				problems[key] = describe(val)
			}
		case KeySyllabusSlug:
			if s, ok := val.(string); ok {
				tc.SyllabusSlug = core.CleanString(s, true /* lower */)
			} else {
				problems[key] = describe(val)
			}
		case KeySyllabusVersion:
			if v, ok := toInt(val); ok {
				tc.SyllabusVersion = core.IntPtr(v)
			} else {
				problems[key] = describe(val)
			}
		case KeyModule:
			if m, ok := toInt(val); ok {
				tc.Module = core.IntPtr(m)
			} else {
				problems[key] = describe(val)
			}
		case KeyAssetSlug:
			if s, ok := val.(string); ok {
				tc.AssetSlug = core.CleanString(s)
			} else {
				problems[key] = describe(val)
			}
		}
	}
	return tc, problems
}

func academyID(val interface{}) (int, bool) {
	switch v := val.(type) {
	case academy.Academy:
		return v.ID, v.ID > 0
	case *academy.Academy:
		if v == nil {
			return 0, false
		}
		return v.ID, v.ID > 0
	case map[string]interface{}:
		val = v["id"]
	}
	id, ok := toInt(val)
	return id, ok && id > 0
}

func cohortID(val interface{}) (int, bool) {
	switch v := val.(type) {
	case academy.Cohort:
		return v.ID, v.ID > 0
	case *academy.Cohort:
		if v == nil {
			return 0, false
		}
		return v.ID, v.ID > 0
	case map[string]interface{}: // decoded JSON object
		return toInt(v["id"])
	}
	return toInt(val)
}

func toInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case *int:
		if v == nil {
			return 0, false
		}
		return *v, true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		return i, err == nil
	}
	return 0, false
}

func describe(val interface{}) string {
	return fmt.Sprintf("unsupported value %v (%T)", val, val)
}
