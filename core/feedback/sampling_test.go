package feedback

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moduleConfig(id, module int, priority float64) SurveyConfiguration {
	return SurveyConfiguration{
		ID:          id,
		TriggerType: TriggerModuleCompleted,
		ScopeFilter: ScopeFilter{Module: &module},
		Priority:    priority,
		IsActive:    true,
	}
}

func neverDuplicate(SurveyConfiguration) (bool, error) { return false, nil }

func drawsByModule(draws map[int]float64) DrawFunc {
	return func(_, _, module int) float64 { return draws[module] }
}

func TestConditionalProbability(t *testing.T) {
	tests := []struct {
		name     string
		previous float64
		current  float64
		want     float64
	}{
		{name: "first step", previous: 0, current: 40, want: 40},
		{name: "second step", previous: 40, current: 70, want: 50},
		{name: "to certainty", previous: 50, current: 100, want: 100},
		{name: "equal priorities", previous: 30, current: 30, want: 0},
		{name: "decreasing priorities", previous: 60, current: 20, want: 0},
		{name: "previous saturated", previous: 100, current: 100, want: 0},
		{name: "zero priority", previous: 0, current: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConditionalProbability(tt.previous, tt.current)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConditionalProbability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDraw(t *testing.T) {
	for user := 1; user <= 500; user++ {
		for module := 0; module < 4; module++ {
			d := Draw(user, 9, module)
			require.GreaterOrEqual(t, d, 0.0)
			require.Less(t, d, 100.0)
			require.Equal(t, d, Draw(user, 9, module), "draw must be reproducible")
		}
	}
}

func TestSelectByHazard(t *testing.T) {
	m0 := moduleConfig(1, 0, 40)
	m1 := moduleConfig(2, 1, 70)
	errDB := errors.New("db down")

	tests := []struct {
		name    string
		cfgs    []SurveyConfiguration
		draws   map[int]float64
		dups    map[int]bool
		dupErr  error
		wantID  int
		wantErr error
	}{
		{name: "earlier module not drawn, later one is", cfgs: []SurveyConfiguration{m0, m1}, draws: map[int]float64{0: 81, 1: 30}, wantID: m1.ID},
		{name: "first module drawn", cfgs: []SurveyConfiguration{m0, m1}, draws: map[int]float64{0: 39.99, 1: 0}, wantID: m0.ID},
		{name: "draw equal to probability misses", cfgs: []SurveyConfiguration{m0, m1}, draws: map[int]float64{0: 40, 1: 50}},
		{name: "nobody drawn", cfgs: []SurveyConfiguration{m0, m1}, draws: map[int]float64{0: 99, 1: 99}},
		{name: "duplicate skipped", cfgs: []SurveyConfiguration{m0, m1}, draws: map[int]float64{0: 0, 1: 10}, dups: map[int]bool{m0.ID: true}, wantID: m1.ID},
		{
			name:  "non-increasing step selects nobody",
			cfgs:  []SurveyConfiguration{moduleConfig(1, 0, 50), moduleConfig(2, 1, 50), moduleConfig(3, 2, 20)},
			draws: map[int]float64{0: 99, 1: 0, 2: 0},
		},
		{name: "dedup error", cfgs: []SurveyConfiguration{m0}, draws: map[int]float64{0: 0}, dupErr: errDB, wantErr: errDB},
		{name: "no candidates", draws: map[int]float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isDup := func(cfg SurveyConfiguration) (bool, error) {
				if tt.dupErr != nil {
					return false, tt.dupErr
				}
				return tt.dups[cfg.ID], nil
			}
			got, err := selectByHazard(tt.cfgs, 1, 1, drawsByModule(tt.draws), isDup)
			if err != tt.wantErr {
				t.Fatalf("selectByHazard() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantID == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

// The share of users selected by step k must converge to priority_k / 100.
func TestSelectByHazard_convergence(t *testing.T) {
	priorities := []float64{10, 25, 25, 60, 90}
	cfgs := make([]SurveyConfiguration, 0, len(priorities))
	for m, p := range priorities {
		cfgs = append(cfgs, moduleConfig(m+1, m, p))
	}

	const users = 20000
	selectedAt := make([]int, len(priorities))
	for userID := 1; userID <= users; userID++ {
		cfg, err := selectByHazard(cfgs, userID, 42, Draw, neverDuplicate)
		require.NoError(t, err)
		if cfg != nil {
			selectedAt[cfg.module()]++
		}
	}

	assert.Zero(t, selectedAt[2], "a step that does not raise the priority selects nobody")

	var cumulative int
	for k, p := range priorities {
		cumulative += selectedAt[k]
		got := float64(cumulative) / users
		assert.InDelta(t, p/100, got, 0.02, "cumulative share at module %d", k)
	}
}

func TestSelectFirst(t *testing.T) {
	a := SurveyConfiguration{ID: 1, TriggerType: TriggerCourseCompleted, Priority: 1}
	b := SurveyConfiguration{ID: 2, TriggerType: TriggerCourseCompleted, Priority: 100}

	got, err := selectFirst([]SurveyConfiguration{a, b}, neverDuplicate)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID, "priority is ignored")

	got, err = selectFirst([]SurveyConfiguration{a, b}, func(cfg SurveyConfiguration) (bool, error) { return cfg.ID == a.ID, nil })
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	got, err = selectFirst([]SurveyConfiguration{a}, func(SurveyConfiguration) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.Nil(t, got)
}
