package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/feedback/core"
)

func TestEligible(t *testing.T) {
	iptr := core.IntPtr

	tests := []struct {
		name string
		cfg  SurveyConfiguration
		tc   TriggerContext
		want bool
	}{
		{
			name: "no constraints",
			cfg:  SurveyConfiguration{},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted},
			want: true,
		},
		{
			name: "syllabus mismatch",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Syllabus: "full-stack"}},
			tc:   TriggerContext{TriggerType: TriggerSyllabusCompleted, SyllabusSlug: "data-science"},
		},
		{
			name: "syllabus missing from context",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Syllabus: "full-stack"}},
			tc:   TriggerContext{TriggerType: TriggerSyllabusCompleted},
			want: true,
		},
		{
			name: "syllabus ignored for course triggers",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Syllabus: "full-stack"}},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted, SyllabusSlug: "data-science"},
			want: true,
		},
		{
			name: "version mismatch",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Version: iptr(2)}},
			tc:   TriggerContext{TriggerType: TriggerModuleCompleted, SyllabusVersion: iptr(3)},
		},
		{
			name: "version match",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Syllabus: "full-stack", Version: iptr(2)}},
			tc:   TriggerContext{TriggerType: TriggerModuleCompleted, SyllabusSlug: "full-stack", SyllabusVersion: iptr(2)},
			want: true,
		},
		{
			name: "module above the completed one",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Module: iptr(2)}},
			tc:   TriggerContext{TriggerType: TriggerModuleCompleted, Module: iptr(1)},
		},
		{
			name: "module at the completed one",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Module: iptr(2)}},
			tc:   TriggerContext{TriggerType: TriggerModuleCompleted, Module: iptr(2)},
			want: true,
		},
		{
			name: "earlier module",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Module: iptr(0)}},
			tc:   TriggerContext{TriggerType: TriggerModuleCompleted, Module: iptr(3)},
			want: true,
		},
		{
			name: "module ignored for syllabus triggers",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{Module: iptr(5)}},
			tc:   TriggerContext{TriggerType: TriggerSyllabusCompleted, Module: iptr(1)},
			want: true,
		},
		{
			name: "cohort member",
			cfg:  SurveyConfiguration{CohortIDs: []int{7}},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted, CohortID: iptr(7)},
			want: true,
		},
		{
			name: "cohort not a member",
			cfg:  SurveyConfiguration{CohortIDs: []int{7}},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted, CohortID: iptr(8)},
		},
		{
			name: "cohort restriction without context cohort",
			cfg:  SurveyConfiguration{CohortIDs: []int{7}},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted},
		},
		{
			name: "asset member",
			cfg:  SurveyConfiguration{AssetSlugs: []string{"intro-python", "loops"}},
			tc:   TriggerContext{TriggerType: TriggerLearnpackCompleted, AssetSlug: "loops"},
			want: true,
		},
		{
			name: "asset not a member",
			cfg:  SurveyConfiguration{AssetSlugs: []string{"intro-python"}},
			tc:   TriggerContext{TriggerType: TriggerLearnpackCompleted, AssetSlug: "loops"},
		},
		{
			name: "asset scope mismatch",
			cfg:  SurveyConfiguration{ScopeFilter: ScopeFilter{AssetSlug: "intro-python"}},
			tc:   TriggerContext{TriggerType: TriggerLearnpackCompleted, AssetSlug: "loops"},
		},
		{
			name: "assets ignored for course triggers",
			cfg:  SurveyConfiguration{AssetSlugs: []string{"intro-python"}},
			tc:   TriggerContext{TriggerType: TriggerCourseCompleted, AssetSlug: "loops"},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eligible(tt.cfg, tt.tc); got != tt.want {
				t.Errorf("eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModuleCandidates(t *testing.T) {
	moduleLess := SurveyConfiguration{ID: 10, Priority: 5}
	m2 := moduleConfig(1, 2, 60)
	m0 := moduleConfig(2, 0, 20)
	m1 := moduleConfig(3, 1, 40)
	m3 := moduleConfig(4, 3, 80)
	cfgs := []SurveyConfiguration{moduleLess, m2, m0, m1, m3}

	ids := func(cfgs []SurveyConfiguration) []int {
		out := make([]int, 0, len(cfgs))
		for _, c := range cfgs {
			out = append(out, c.ID)
		}
		return out
	}

	got := moduleCandidates(cfgs, TriggerContext{TriggerType: TriggerModuleCompleted, Module: core.IntPtr(2)})
	assert.Equal(t, []int{m0.ID, m1.ID, m2.ID}, ids(got), "ceiling applied and module-less dropped")

	got = moduleCandidates(cfgs, TriggerContext{TriggerType: TriggerModuleCompleted})
	assert.Equal(t, []int{m0.ID, moduleLess.ID, m1.ID, m2.ID, m3.ID}, ids(got), "module-less sorts as module 0")
}

func TestFirstMatchCandidates(t *testing.T) {
	cfgs := []SurveyConfiguration{{ID: 3}, {ID: 1}, {ID: 2}}
	got := firstMatchCandidates(cfgs)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 2, got[1].ID)
	assert.Equal(t, 3, got[2].ID)
	assert.Equal(t, 3, cfgs[0].ID, "input left untouched")
}
