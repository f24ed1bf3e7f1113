package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/studyplanner/apps/api/echo"
	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/core/auth"
	"github.com/trezcool/studyplanner/core/records"
	"github.com/trezcool/studyplanner/core/user"
	"github.com/trezcool/studyplanner/services/email"
	"github.com/trezcool/studyplanner/services/logger"
	"github.com/trezcool/studyplanner/storage/database/inmem"
	"github.com/trezcool/studyplanner/tests"
)

const (
	anonKey      = "anon-key"
	siteURL      = "http://planner.test"
	testPassword = "Str0ng!Passw"
)

type fixture struct {
	app     Server
	usrRepo user.Repository
	authSvc *auth.Service
	mailer  *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T, opts ...func(*auth.Options)) *fixture {
	t.Helper()

	// set up DB & repos
	db := inmemdb.Open()
	logger := logsvc.NewDiscardLogger()
	f := &fixture{
		usrRepo: inmemdb.NewUserRepository(db),
		mailer:  emailsvc.NewConsoleServiceMock("Planner", logger),
	}

	// set up services
	authOpts := auth.Options{
		AppName:     "Planner",
		SecretKey:   testutil.TestSecret,
		ExternalURL: "http://api.test",
	}
	for _, opt := range opts {
		opt(&authOpts)
	}
	f.authSvc = auth.NewService(user.NewService(f.usrRepo), inmemdb.NewTokenRepository(db), f.mailer, logger, authOpts)

	// set up server
	f.app = NewServer(&Options{
		DisableReqLogs: true,
		AnonKey:        anonKey,
		SiteURL:        siteURL,
		AuthSvc:        f.authSvc,
		RecordSvc:      records.NewService(inmemdb.NewRecordRepository(db)),
		Logger:         logger,
	})
	return f
}

// signIn creates a confirmed user and returns its session.
func (f *fixture) signIn(t *testing.T, email string) *core.Session {
	t.Helper()
	testutil.CreateUser(t, f.usrRepo, "", email, testPassword, true)
	rec := f.do(t, newRequest(http.MethodPost, "/auth/v1/token?grant_type=password", "", marshallObj(t, map[string]string{
		"email":    email,
		"password": testPassword,
	})))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sess core.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return &sess
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
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

func newRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) httpErr {
	t.Helper()
	var e httpErr
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
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
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
