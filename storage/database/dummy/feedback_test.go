package dummydb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/feedback"
)

func TestFeedbackRepository_QueryResponses_ordering(t *testing.T) {
	repo := NewFeedbackRepository(Open())
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []struct {
		status  feedback.ResponseStatus
		created time.Time
	}{
		{status: feedback.StatusPending, created: now},
		{status: feedback.StatusAnswered, created: now},
		{status: feedback.StatusOpened, created: now.Add(-time.Hour)},
	}
	ids := make([]int, 0, len(seed))
	for _, s := range seed {
		resp, err := repo.CreateResponse(ctx, feedback.SurveyResponse{
			ConfigurationID: 1,
			UserID:          1,
			Token:           feedback.NewToken(),
			Status:          s.status,
			CreatedAt:       s.created,
			UpdatedAt:       s.created,
		})
		require.NoError(t, err)
		ids = append(ids, resp.ID)
	}
	pending, answered, opened := ids[0], ids[1], ids[2]

	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     []int
	}{
		{name: "default", want: []int{pending, answered, opened}},
		{name: "id desc", ordering: []core.DBOrdering{{Field: "id"}}, want: []int{opened, answered, pending}},
		{name: "status", ordering: []core.DBOrdering{{Field: "status", Ascending: true}}, want: []int{answered, opened, pending}},
		{
			name:     "created_at then id desc",
			ordering: []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "id"}},
			want:     []int{opened, answered, pending},
		},
		{name: "unknown field", ordering: []core.DBOrdering{{Field: "token"}}, want: []int{pending, answered, opened}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resps, err := repo.QueryResponses(ctx, feedback.ResponseFilter{}, tt.ordering)
			require.NoError(t, err)

			got := make([]int, 0, len(resps))
			for _, r := range resps {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
