package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/internly/internly/apps/api/echo"
	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
	"github.com/internly/internly/core/user"
	inmemdb "github.com/internly/internly/storage/database/inmem"
	testutil "github.com/internly/internly/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	app      Server
	usrRepo  user.Repository
	subRepo  review.Repository
	notifier *testutil.Notifier
	logger   *testutil.Logger
}

type resolverFunc func(ctx context.Context, ref string) (review.Locator, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) (review.Locator, error) { return f(ctx, ref) }

func setup(t *testing.T) *env {
	t.Helper()

	// set up DB & repos
	db := inmemdb.Open()
	e := &env{
		usrRepo:  inmemdb.NewUserRepository(db),
		subRepo:  inmemdb.NewSubmissionRepository(db),
		notifier: &testutil.Notifier{},
		logger:   &testutil.Logger{},
	}

	// set up services
	usrSvc := user.NewService(e.usrRepo)
	resolver := resolverFunc(func(_ context.Context, ref string) (review.Locator, error) {
		return review.Locator{Ref: ref, URL: "https://files.example.com/" + ref}, nil
	})
	reviewSvc := review.NewService(e.subRepo, usrSvc, e.notifier, resolver, e.logger)

	// set up server
	e.app = NewServer(&Options{
		DisableReqLogs: true,
		Conf:           testConf(),
		Logger:         e.logger,
		UserSvc:        usrSvc,
		ReviewSvc:      reviewSvc,
	})
	return e
}

func testConf() *core.Config {
	return &core.Config{
		AppName:  "Internly",
		TestMode: true,
		Review:   core.ReviewConfig{MaxConflictRetries: 3},
	}
}

func (e *env) do(t *testing.T, method, path, token string, body ...interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if len(body) > 0 {
		data = marshallObj(t, body[0])
	}
	req, rec := newAuthRequest(method, path, token, data)
	e.app.ServeHTTP(rec, req)
	return rec
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

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
