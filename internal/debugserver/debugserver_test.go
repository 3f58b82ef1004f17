package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dualrole/remapd/internal/layer"
	"github.com/dualrole/remapd/internal/notify"
)

type fakeRehooker struct {
	calls int
	err   error
}

func (f *fakeRehooker) Rehook() error {
	f.calls++
	return f.err
}

func newTestServer() (*Server, *fakeRehooker, *layer.Graph, *notify.Publisher) {
	graph := layer.NewGraph()
	l := graph.Create("nav")
	l.Lock = true
	l.State = true

	pub := notify.NewPublisher(4)
	rehooker := &fakeRehooker{}

	s := New(Config{Layers: graph, Notify: pub, Rehooker: rehooker}, zerolog.Nop())
	return s, rehooker, graph, pub
}

func TestHandleHealth(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestHandleLayers_ReturnsCurrentState(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/layers", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []layerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "nav", body[0].Name)
	require.True(t, body[0].State)
	require.True(t, body[0].Lock)
}

func TestHandleRehook_InvokesRehookerOnPost(t *testing.T) {
	s, rehooker, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/rehook", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, rehooker.calls)
}

func TestHandleRehook_RejectsGet(t *testing.T) {
	s, rehooker, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/rehook", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Zero(t, rehooker.calls)
}

func TestHandleRehook_SurfacesError(t *testing.T) {
	s, rehooker, _, _ := newTestServer()
	rehooker.err = require.AnError
	req := httptest.NewRequest(http.MethodPost, "/rehook", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
