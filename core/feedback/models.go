package feedback

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Trigger types
const (
	TriggerModuleCompleted    TriggerType = "module_completed"
	TriggerSyllabusCompleted  TriggerType = "syllabus_completed"
	TriggerLearnpackCompleted TriggerType = "learnpack_completed"
	TriggerCourseCompleted    TriggerType = "course_completed"
)

// Response statuses
const (
	StatusPending  ResponseStatus = "PENDING"
	StatusOpened   ResponseStatus = "OPENED"
	StatusPartial  ResponseStatus = "PARTIAL"
	StatusAnswered ResponseStatus = "ANSWERED"
	StatusExpired  ResponseStatus = "EXPIRED"
)

var (
	TriggerTypes = []TriggerType{
		TriggerModuleCompleted,
		TriggerSyllabusCompleted,
		TriggerLearnpackCompleted,
		TriggerCourseCompleted,
	}

	// LiveStatuses are the statuses counted by deduplication and the one-per-study rule.
	LiveStatuses = []ResponseStatus{StatusPending, StatusOpened, StatusPartial, StatusAnswered}
)

type TriggerType string

func (t TriggerType) IsValid() bool {
	for _, tt := range TriggerTypes {
		if t == tt {
			return true
		}
	}
	return false
}

// ParseTriggerType resolves s to a known trigger type, case-insensitively.
func ParseTriggerType(s string) (TriggerType, bool) {
	t := TriggerType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.IsValid()
}

// usesSyllabusScope reports whether the syllabus / version / module scope applies.
func (t TriggerType) usesSyllabusScope() bool {
	return t == TriggerModuleCompleted || t == TriggerSyllabusCompleted
}

type ResponseStatus string

func (s ResponseStatus) IsLive() bool { return s != StatusExpired && s != "" }

// ScopeFilter narrows a configuration to a syllabus, a version, a module or an asset.
// An absent key means "no constraint".
type ScopeFilter struct {
	Syllabus  string `json:"syllabus,omitempty" validate:"omitempty,slug"`
	Version   *int   `json:"version,omitempty" validate:"omitempty,gte=1"`
	Module    *int   `json:"module,omitempty" validate:"omitempty,gte=0"`
	AssetSlug string `json:"asset_slug,omitempty"`
}

// UnmarshalJSON rejects keys other than syllabus, version, module and asset_slug.
func (f *ScopeFilter) UnmarshalJSON(data []byte) error {
	type scopeFilter ScopeFilter
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = ScopeFilter{}
		return nil
	}
	var sf scopeFilter
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return errors.Wrap(ErrInvalidScopeFilter, err.Error())
	}
	*f = ScopeFilter(sf)
	return nil
}

// Value encodes the filter as JSON text, as expected by a JSONB column.
func (f ScopeFilter) Value() (driver.Value, error) {
	return jsonValue(f)
}

func (f *ScopeFilter) Scan(src interface{}) error {
	return scanJSON(src, f)
}

type SurveyConfiguration struct {
	ID          int         `json:"id"`
	TriggerType TriggerType `json:"trigger_type"`
	ScopeFilter ScopeFilter `json:"scope_filter"`
	Priority    float64     `json:"priority"`
	AcademyID   int         `json:"academy"`
	CohortIDs   []int       `json:"cohorts"`
	AssetSlugs  []string    `json:"asset_slugs"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// module returns the configured module, missing modules count as 0.
func (c SurveyConfiguration) module() int {
	if c.ScopeFilter.Module == nil {
		return 0
	}
	return *c.ScopeFilter.Module
}

type SurveyStudy struct {
	ID               int        `json:"id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	AcademyID        int        `json:"academy"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	MaxResponses     *int       `json:"max_responses"`
	ConfigurationIDs []int      `json:"survey_configurations"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether now falls inside the study window. Null bounds are unbounded.
func (s SurveyStudy) IsOpen(now time.Time) bool {
	if s.StartsAt != nil && s.StartsAt.After(now) {
		return false
	}
	if s.EndsAt != nil && s.EndsAt.Before(now) {
		return false
	}
	return true
}

func (s SurveyStudy) Contains(configID int) bool {
	for _, id := range s.ConfigurationIDs {
		if id == configID {
			return true
		}
	}
	return false
}

// TriggerContext describes the event that fired a trigger.
// Once stored on a response it is an immutable snapshot.
type TriggerContext struct {
	TriggerType     TriggerType `json:"trigger_type"`
	AcademyID       int         `json:"academy_id,omitempty"`
	CohortID        *int        `json:"cohort_id,omitempty"`
	SyllabusSlug    string      `json:"syllabus_slug,omitempty"`
	SyllabusVersion *int        `json:"syllabus_version,omitempty"`
	Module          *int        `json:"module,omitempty"`
	AssetSlug       string      `json:"asset_slug,omitempty"`
	ConfigurationID int         `json:"survey_config_id,omitempty"`
	StudyID         int         `json:"survey_study_id,omitempty"`
	TriggeredAt     time.Time   `json:"triggered_at"`
}

func (tc TriggerContext) Value() (driver.Value, error) {
	return jsonValue(tc)
}

func (tc *TriggerContext) Scan(src interface{}) error {
	return scanJSON(src, tc)
}

type SurveyResponse struct {
	ID              int            `json:"id"`
	ConfigurationID int            `json:"survey_config"`
	StudyID         *int           `json:"survey_study"`
	UserID          int            `json:"user"`
	Token           string         `json:"token"`
	TriggerContext  TriggerContext `json:"trigger_context"`
	Status          ResponseStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Assignment is the outcome of a successful trigger.
type Assignment struct {
	ConfigurationID int            `json:"survey_config"`
	StudyID         int            `json:"survey_study"`
	Token           string         `json:"token"`
	Response        SurveyResponse `json:"-"`
}

// NewConfiguration is the write-boundary payload of a configuration.
type NewConfiguration struct {
	TriggerType string      `json:"trigger_type" validate:"omitempty,oneof=module_completed syllabus_completed learnpack_completed course_completed"`
	ScopeFilter ScopeFilter `json:"scope_filter"`
	Priority    *float64    `json:"priority" validate:"omitempty,gte=0,lte=100"`
	AcademyID   int         `json:"academy" validate:"required,gt=0"`
	CohortIDs   []int       `json:"cohorts" validate:"omitempty,dive,gt=0"`
	AssetSlugs  []string    `json:"asset_slugs" validate:"omitempty,dive,required"`
	IsActive    *bool       `json:"is_active"`
}

// NewStudy is the write-boundary payload of a study.
type NewStudy struct {
	Slug             string     `json:"slug" validate:"required,slug"`
	Title            string     `json:"title"`
	AcademyID        int        `json:"academy" validate:"required,gt=0"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	MaxResponses     *int       `json:"max_responses" validate:"omitempty,gte=1"`
	ConfigurationIDs []int      `json:"survey_configurations" validate:"required,min=1,dive,gt=0"`
}

type (
	ConfigurationFilter struct {
		IDs         []int
		AcademyID   int
		TriggerType TriggerType
		ActiveOnly  bool
	}

	StudyFilter struct {
		AcademyID        int
		ConfigurationIDs []int
	}

	ResponseFilter struct {
		UserID   int
		StudyID  int
		Statuses []ResponseStatus
	}

	// DedupFilter looks for live responses of a user for a configuration in a study,
	// with the Match keys of their trigger_context equal to the ones of Context.
	DedupFilter struct {
		ConfigurationID int
		UserID          int
		StudyID         int
		TriggerType     TriggerType
		Match           []string
		Context         TriggerContext
	}
)

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported json column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
