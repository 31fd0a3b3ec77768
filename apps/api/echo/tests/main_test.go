package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/feedback/apps/api/echo"
	"github.com/trezcool/feedback/core"
	"github.com/trezcool/feedback/core/academy"
	"github.com/trezcool/feedback/core/feedback"
	"github.com/trezcool/feedback/core/user"
	logsvc "github.com/trezcool/feedback/services/logger"
	"github.com/trezcool/feedback/services/metrics"
	dummydb "github.com/trezcool/feedback/storage/database/dummy"
	"github.com/trezcool/feedback/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	app          Server
	conf         *core.Config
	db           *dummydb.DB
	svc          *feedback.Service
	academy      academy.Academy
	student      user.User
	triggerToken string
	adminToken   string
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()

	// set up DB & repos
	db := dummydb.Open()
	identity := dummydb.NewIdentityRepository(db)

	// set up services
	reg := prometheus.NewRegistry()
	svc := feedback.NewService(
		dummydb.NewFeedbackRepository(db), identity, logger,
		feedback.WithRecorder(metrics.NewRecorder(reg)),
		feedback.WithLocker(dummydb.NewLocker(time.Second)),
	)

	acad := testutil.CreateAcademy(t, db, "downtown")
	student := testutil.CreateUser(t, db, "Awe", "awe", "awe@test.cd")
	testutil.CreateMembership(t, db, student, acad)

	// set up server
	app := NewServer("" /* addr */, nil /* shutdown */, &Deps{
		Conf:        conf,
		Logger:      logger,
		FeedbackSvc: svc,
		Users:       identity,
		Gatherer:    reg,
	})

	return fixture{
		app:          app,
		conf:         conf,
		db:           db,
		svc:          svc,
		academy:      acad,
		student:      student,
		triggerToken: getToken(t, conf, "lms", ScopeTrigger),
		adminToken:   getToken(t, conf, "backoffice", ScopeAdmin),
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, service string, scopes ...string) string {
	token, err := GenerateToken(conf, NewServiceClaims(conf, service, scopes...))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
