package feedback

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core"
)

func TestScopeFilter_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    ScopeFilter
		wantErr bool
	}{
		{name: "empty", data: `{}`},
		{name: "null", data: `null`},
		{name: "all keys", data: `{"syllabus":"full-stack","version":2,"module":0,"asset_slug":"loops"}`,
			want: ScopeFilter{Syllabus: "full-stack", Version: core.IntPtr(2), Module: core.IntPtr(0), AssetSlug: "loops"}},
		{name: "unknown key", data: `{"syllabus":"full-stack","cohort":3}`, wantErr: true},
		{name: "wrong type", data: `{"module":"one"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ScopeFilter
			err := json.Unmarshal([]byte(tt.data), &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrInvalidScopeFilter, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSurveyStudy_IsOpen(t *testing.T) {
	now := time.Now()
	before, after := now.Add(-time.Minute), now.Add(time.Minute)

	assert.True(t, SurveyStudy{}.IsOpen(now))
	assert.True(t, SurveyStudy{StartsAt: &before, EndsAt: &after}.IsOpen(now))
	assert.False(t, SurveyStudy{StartsAt: &after}.IsOpen(now))
	assert.False(t, SurveyStudy{EndsAt: &before}.IsOpen(now))
}

func TestMatchesDedup(t *testing.T) {
	studyID := 5
	tc := TriggerContext{
		TriggerType: TriggerModuleCompleted, CohortID: core.IntPtr(7), SyllabusSlug: "full-stack",
		SyllabusVersion: core.IntPtr(2), Module: core.IntPtr(1),
	}
	resp := SurveyResponse{
		ConfigurationID: 3, StudyID: &studyID, UserID: 1, Status: StatusPending, TriggerContext: tc,
	}
	cfg := SurveyConfiguration{ID: 3}

	assert.True(t, MatchesDedup(resp, newDedupFilter(cfg, 1, studyID, tc)))

	other := tc
	other.Module = core.IntPtr(2)
	assert.False(t, MatchesDedup(resp, newDedupFilter(cfg, 1, studyID, other)), "other module")

	other = tc
	other.CohortID = nil
	assert.False(t, MatchesDedup(resp, newDedupFilter(cfg, 1, studyID, other)), "absent cohort only matches absent cohort")

	expired := resp
	expired.Status = StatusExpired
	assert.False(t, MatchesDedup(expired, newDedupFilter(cfg, 1, studyID, tc)), "expired responses never block")

	course := tc
	course.TriggerType = TriggerCourseCompleted
	course.Module = core.IntPtr(9) // not part of course dedup
	courseResp := resp
	courseResp.TriggerContext = TriggerContext{TriggerType: TriggerCourseCompleted, CohortID: core.IntPtr(7)}
	assert.True(t, MatchesDedup(courseResp, newDedupFilter(cfg, 1, studyID, course)))
}

func TestParseTriggerType(t *testing.T) {
	tests := []struct {
		in     string
		want   TriggerType
		wantOk bool
	}{
		{in: "module_completed", want: TriggerModuleCompleted, wantOk: true},
		{in: " Course_Completed ", want: TriggerCourseCompleted, wantOk: true},
		{in: "cohort_completed", want: "cohort_completed"},
		{in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTriggerType(tt.in)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
