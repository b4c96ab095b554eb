package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eni-go/internal/eni"
	"eni-go/internal/protocol"
	"eni-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const handshakeDoc = `<?xml version="1.0" encoding="ISO-8859-1"?><handshake user-name="alice"/>`

func requestDoc(command, body string) string {
	return `<?xml version="1.0" encoding="ISO-8859-1"?><request command="` + command + `"><` + command + `>` + body + `</` + command + `></request>`
}

func newTestServer(t *testing.T, opts ...testutil.GatewayOption) (*Server, *testutil.TestGateway, *prometheus.Registry) {
	t.Helper()
	g := testutil.NewTestGateway(t, opts...)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, g.Env.Sessions)
	s := NewServer(g.Gateway, g.Env.Sessions, g.Logger, Options{Metrics: m, Gatherer: reg})
	return s, g, reg
}

func post(t *testing.T, h http.Handler, path, doc string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(doc))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, body io.Reader) *protocol.Element {
	t.Helper()
	resp, err := protocol.Decode(body)
	require.NoError(t, err)
	return resp
}

func TestServer_Document(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/eni/any/path", requestDoc("get-object-type-list", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, responseContentType, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), `<?xml version="1.0" encoding="ISO-8859-1"?>`))

	resp := decode(t, rec.Body)
	assert.NotNil(t, resp.Child("success"))
	assert.Len(t, resp.Child("get-object-type-list").ChildrenByTag("guid"), 2)
}

func TestServer_Handshake(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/", handshakeDoc)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec.Body)
	assert.Equal(t, protocol.TagHandshake, resp.Tag)
	user, _ := resp.Attr("user-name")
	assert.Equal(t, "alice", user)
}

func TestServer_MalformedDocument(t *testing.T) {
	s, g, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/", `<request command="dir"`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.Empty(t, rec.Body.String())
	assert.True(t, g.Logger.Has("WARN", "malformed document"))
}

func TestServer_UnsupportedCommandIsNotMalformed(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/", requestDoc("frobnicate", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec.Body)
	code, _ := resp.Child("error").ChildText("error-code")
	assert.Equal(t, "16390", code)
}

func TestServer_OnlyPost(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/eni", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "sessions")
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t)

	post(t, s.Handler(), "/", requestDoc("get-server-settings", ""))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `eni_http_requests_total{method="POST",path="/*document",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "eni_gateway_sessions")
}

func TestMetrics_ObserveCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, eni.NewSessionRegistry(testutil.NewStubIDGenerator()))

	m.ObserveCommand("dir", 0, 10*time.Millisecond)
	m.ObserveCommand("dir", 0, 20*time.Millisecond)
	m.ObserveCommand("dir", eni.CodePathNotFound, time.Millisecond)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.commands.WithLabelValues("dir", "0")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.commands.WithLabelValues("dir", "2054")))
	assert.Equal(t, 1, promtestutil.CollectAndCount(m.commandDuration))
}

func TestServer_SessionPerConnection(t *testing.T) {
	s, g, _ := newTestServer(t, testutil.WithUsers(eni.User{Name: "alice"}))

	ts := httptest.NewUnstartedServer(nil)
	ts.Config = s.HTTPServer("")
	ts.Start()
	defer ts.Close()

	send := func(client *http.Client, doc string) *protocol.Element {
		t.Helper()
		resp, err := client.Post(ts.URL+"/", "text/xml", strings.NewReader(doc))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return decode(t, resp.Body)
	}

	alice := &http.Client{Transport: &http.Transport{}}
	other := &http.Client{Transport: &http.Transport{}}

	send(alice, handshakeDoc)
	send(alice, requestDoc("create-object",
		"<object-path>main</object-path><object-type>"+testutil.POUType+"</object-type>"))
	send(alice, requestDoc("check-out-object",
		"<object-path>main</object-path><object-type>"+testutil.POUType+"</object-type>"))

	info := send(other, requestDoc("get-object-info",
		"<object-path>main</object-path><object-type>"+testutil.POUType+"</object-type>"))
	holder, _ := info.Child("get-object-info").ChildText("checked-out-by")
	assert.Equal(t, "alice", holder, "checkout on alice's connection should be held by alice")

	users := send(other, requestDoc("get-users", ""))
	loggedIn, _ := users.Child("get-users").Child("user").ChildText("logged-in")
	assert.Equal(t, "true", loggedIn)
	assert.Equal(t, 2, g.Env.Sessions.Count())

	alice.CloseIdleConnections()
	require.Eventually(t, func() bool {
		return !g.Env.Sessions.LoggedIn("alice")
	}, 2*time.Second, 10*time.Millisecond, "closing the connection should end alice's session")
}
