package engine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expectd/expectd/pkg/config"
	"github.com/expectd/expectd/pkg/mock"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(config.Default(), nil)
	t.Cleanup(e.Close)
	return e
}

func upsert(t *testing.T, e *Engine, exps ...*mock.Expectation) {
	t.Helper()
	_, err := e.Store().Upsert(exps...)
	require.NoError(t, err)
}

func TestDataPlaneMatch(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Method: "GET", Path: "/api/ping"}).
		ThenRespond(&mock.ResponseAction{
			StatusCode: 200,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       "pong",
		}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/api/ping", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDataPlaneNoMatch(t *testing.T) {
	e := newTestEngine(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/nothing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the miss is still recorded
	entries, err := e.Recorded().Retrieve(nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Matched())
}

func TestTemplateAction(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/echo"}).
		ThenTemplate(&mock.TemplateAction{
			Engine:   "gotemplate",
			Template: `{{.Method}} {{.Path}} q={{index .QueryParams "q"}}`,
		}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/echo?q=42", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "GET /echo q=42", rec.Body.String())
}

func TestControlPlaneUpsertAndMatch(t *testing.T) {
	e := newTestEngine(t)

	payload := `{
	  "httpRequest": {"method": "GET", "path": "/api/users/[0-9]+"},
	  "action": {"type": "response", "response": {"statusCode": 200, "body": "user"}}
	}`
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/expectation", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created []*mock.Expectation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users/7", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "user", rec.Body.String())
}

func TestControlPlaneBatchAtomic(t *testing.T) {
	e := newTestEngine(t)

	payload := `[
	  {"httpRequest": {"path": "/ok"}, "action": {"type": "response", "response": {"statusCode": 200}}},
	  {"httpRequest": {"path": "/bad", "body": {"type": "JSON", "value": "{broken"}},
	   "action": {"type": "response", "response": {"statusCode": 200}}}
	]`
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/expectation", strings.NewReader(payload)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, e.Store().Count(), "failed batch must not apply partially")
}

func TestControlPlaneRetrieveAndClear(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e,
		mock.NewExpectation(&mock.RequestDefinition{Path: "/api/a"}).ThenRespond(&mock.ResponseAction{StatusCode: 200}),
		mock.NewExpectation(&mock.RequestDefinition{Path: "/other"}).ThenRespond(&mock.ResponseAction{StatusCode: 200}),
	)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/retrieve", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var exps []*mock.Expectation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exps))
	assert.Len(t, exps, 2)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/clear?type=EXPECTATIONS",
		strings.NewReader(`{"httpRequest": {"path": "/api/.*"}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.Store().Count())
}

func TestControlPlaneReset(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/x"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200}))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, e.Store().Count())
	assert.Equal(t, 0, e.Recorded().Count())
}

func TestControlPlaneVerify(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/api/orders"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200}))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verify",
		strings.NewReader(`{"httpRequest": {"path": "/api/orders"}, "times": {"atLeast": 2, "atMost": 2}}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verify",
		strings.NewReader(`{"httpRequest": {"path": "/api/orders"}, "times": {"atLeast": 3, "atMost": -1}}`)))
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestForwardActionKeepsBody(t *testing.T) {
	var received string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	u, err := url.Parse(backend.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Method: "POST", Path: "/fwd"}).
		ThenForward(&mock.ForwardAction{Host: u.Hostname(), Port: port}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("POST", "/fwd", strings.NewReader("payload-123")))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "payload-123", received, "upstream must see the body matching consumed")
}

func TestControlPlaneVerifyAtLeastOnly(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/api/orders"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200}))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders", nil))

	// an omitted atMost means no upper bound, not zero
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verify",
		strings.NewReader(`{"httpRequest": {"path": "/api/orders"}, "times": {"atLeast": 2}}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verify",
		strings.NewReader(`{"httpRequest": {"path": "/api/orders"}, "times": {"atMost": 1}}`)))
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestControlPlaneVerifySequence(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/.*"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200}))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/login", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/logout", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verifySequence",
		strings.NewReader(`{"httpRequests": [{"path": "/login"}, {"path": "/logout"}]}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("PUT", "/mockserver/verifySequence",
		strings.NewReader(`{"httpRequests": [{"path": "/logout"}, {"path": "/login"}]}`)))
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestControlPlaneStatus(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/x"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/mockserver/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status["expectations"])
}

func TestResponseDelay(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e, mock.NewExpectation(&mock.RequestDefinition{Path: "/slow"}).
		ThenRespond(&mock.ResponseAction{StatusCode: 200, DelayMs: 40}))

	start := time.Now()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/slow", nil))

	assert.Equal(t, 200, rec.Code)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestTimesSpentFallsThrough(t *testing.T) {
	e := newTestEngine(t)
	upsert(t, e,
		mock.NewExpectation(&mock.RequestDefinition{Path: "/once"}).
			WithTimes(mock.Once()).
			ThenRespond(&mock.ResponseAction{StatusCode: 200}),
	)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/once", nil))
	assert.Equal(t, 200, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest("GET", "/once", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
