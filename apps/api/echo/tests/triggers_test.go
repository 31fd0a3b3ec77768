package tests

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/feedback/apps/api/echo"
	"github.com/trezcool/feedback/core/feedback"
	logsvc "github.com/trezcool/feedback/services/logger"
	dummydb "github.com/trezcool/feedback/storage/database/dummy"
	"github.com/trezcool/feedback/tests"
)

func TestTriggers(t *testing.T) {
	f := setup(t)
	cfg := testutil.CreateConfiguration(t, f.svc, f.academy, feedback.TriggerCourseCompleted, 100)
	study := testutil.CreateStudy(t, f.svc, f.academy, "course-feedback", nil, nil, cfg)

	courseDone := func(userID int, trigger string) []byte {
		return marchallObj(t, map[string]interface{}{
			"user_id":      userID,
			"trigger_type": trigger,
			"context":      map[string]interface{}{"cohort": 7},
		})
	}

	t.Run("assigns a survey", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/triggers", f.triggerToken, courseDone(f.student.ID, "course_completed"))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res TriggerResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Assigned)
		assert.Equal(t, cfg.ID, res.SurveyConfig)
		assert.Equal(t, study.ID, res.SurveyStudy)
		assert.Len(t, res.Token, 32)

		resps := f.db.Responses()
		require.Len(t, resps, 1)
		assert.Equal(t, res.Token, resps[0].Token)
	})

	notAssigned := marchallObj(t, TriggerResponse{})
	tests := []httpTest{
		{
			name:     "already assigned",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(f.student.ID, "COURSE_COMPLETED"),
			token:    f.triggerToken,
			wantCode: http.StatusOK,
			wantData: notAssigned,
		},
		{
			name:     "unknown trigger type",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(f.student.ID, "cohort_completed"),
			token:    f.triggerToken,
			wantCode: http.StatusOK,
			wantData: notAssigned,
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(9999, "course_completed"),
			token:    f.triggerToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name:     "missing user",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     []byte(`{"trigger_type": "course_completed"}`),
			token:    f.triggerToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"user_id": "this field is required"}`),
		},
		{
			name:     "no token",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(f.student.ID, "course_completed"),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(f.student.ID, "course_completed"),
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "missing scope",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     courseDone(f.student.ID, "course_completed"),
			token:    f.adminToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
	}
	runHTTPTests(t, f.app, tests)
}

func TestTriggers_storageFailure(t *testing.T) {
	f := setup(t)
	f.db.Fail(errors.New("connection refused"))

	body := marchallObj(t, map[string]interface{}{"user_id": f.student.ID, "trigger_type": "course_completed"})
	runHTTPTests(t, f.app, []httpTest{
		{
			name:     "internal error",
			method:   http.MethodPost,
			path:     "/v1/triggers",
			body:     body,
			token:    f.triggerToken,
			wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)}),
		},
	})
}

type lockerFunc func(ctx context.Context, key string) (func(), error)

func (fn lockerFunc) Lock(ctx context.Context, key string) (func(), error) { return fn(ctx, key) }

func TestTriggers_lockTimeout(t *testing.T) {
	f := setup(t)
	logger := logsvc.NewNopLogger()
	identity := dummydb.NewIdentityRepository(f.db)
	busy := lockerFunc(func(context.Context, string) (func(), error) { return nil, feedback.ErrLockTimeout })
	svc := feedback.NewService(dummydb.NewFeedbackRepository(f.db), identity, logger, feedback.WithLocker(busy))
	app := NewServer("" /* addr */, nil /* shutdown */, &Deps{
		Conf:        f.conf,
		Logger:      logger,
		FeedbackSvc: svc,
		Users:       identity,
	})

	cfg := testutil.CreateConfiguration(t, svc, f.academy, feedback.TriggerCourseCompleted, 100)
	testutil.CreateStudy(t, svc, f.academy, "course-feedback", nil, nil, cfg)

	body := marchallObj(t, map[string]interface{}{"user_id": f.student.ID, "trigger_type": "course_completed"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/triggers", f.triggerToken, body)
	app.ServeHTTP(rec, req)

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusServiceUnavailable,
		wantData: marchallObj(t, httpErr{Error: "another trigger of this user is being evaluated"}),
	}, rec)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Empty(t, f.db.Responses())
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t)

	runHTTPTests(t, f.app, []httpTest{
		{
			name:     "health",
			method:   http.MethodGet,
			path:     "/health",
			wantCode: http.StatusOK,
			wantData: []byte(`{"status": "ok", "build": "test"}`),
		},
	})

	body := marchallObj(t, map[string]interface{}{"user_id": f.student.ID, "trigger_type": "course_completed"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/triggers", f.triggerToken, body)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `feedback_trigger_total{outcome="declined",trigger_type="course_completed"} 1`), rec.Body.String())
}
