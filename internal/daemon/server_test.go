package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reposync/internal/model"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*harness, *Server) {
	t.Helper()

	h := newHarness(t)
	return h, NewServer(h.session, h.reg, h.history, 0)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) profileJSON(t *testing.T) string {
	t.Helper()

	b, err := json.Marshal(h.profile())
	require.NoError(t, err)
	return string(b)
}

func TestServerStatus(t *testing.T) {
	_, s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decode[model.SessionSnapshot](t, rec)
	assert.False(t, snap.Connected)
	assert.True(t, snap.AutoSync)
	assert.Len(t, snap.Modules, 4)
}

func TestServerConnect(t *testing.T) {
	h, s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/connect", h.profileJSON(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), h.srv.Token)
	assert.True(t, h.session.Connected())

	rec = do(t, s, http.MethodPost, "/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.session.Connected())
}

func TestServerConnectRejected(t *testing.T) {
	h, s := newTestServer(t)

	p := h.profile()
	p.Token = "bad-token"
	b, err := json.Marshal(p)
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/connect", string(b))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token invalid", decode[map[string]any](t, rec)["error"])
}

func TestServerConnectBadBody(t *testing.T) {
	_, s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/connect", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/connect", `{"provider":"github"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerSyncRequiresConnection(t *testing.T) {
	_, s := newTestServer(t)

	for _, target := range []string{"/sync", "/sync/push", "/sync/pull"} {
		rec := do(t, s, http.MethodPost, target, "")
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code, target)
		assert.Equal(t, ErrNotConnected.Error(), decode[map[string]string](t, rec)["error"])
	}

	assert.Equal(t, http.StatusPreconditionFailed, do(t, s, http.MethodGet, "/modules", "").Code)
	assert.Equal(t, http.StatusPreconditionFailed, do(t, s, http.MethodGet, "/files", "").Code)
}

func TestServerSync(t *testing.T) {
	h, s := newTestServer(t)
	h.connect(t)

	rec := do(t, s, http.MethodPut, "/modules/tasks", `[{"id":7}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodPost, "/sync/push", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[model.SyncReport](t, rec)
	assert.True(t, report.Success)
	assert.Len(t, report.Results, 4)
	assert.JSONEq(t, `[{"id":7}]`, h.remotePayload(t, "sync-tasks.json"))

	rec = do(t, s, http.MethodGet, "/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 4)

	rec = do(t, s, http.MethodGet, "/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, st := range decode[[]model.SyncStatus](t, rec) {
		assert.Equal(t, model.StateInSync, st.State, st.Module)
	}

	rec = do(t, s, http.MethodGet, "/history?n=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.History](t, rec), 2)
}

func TestServerHistoryQueries(t *testing.T) {
	h, s := newTestServer(t)
	h.connect(t)
	h.srv.FailWrites("sync-habits.json", http.StatusInternalServerError)

	rec := do(t, s, http.MethodPost, "/sync/push", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.SyncReport](t, rec).Success)

	rec = do(t, s, http.MethodGet, "/history?n=-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.History](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/history?failed=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[[]model.History](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "habits", failed[0].Module)
	assert.Equal(t, model.StatusFailed, failed[0].Status)

	rec = do(t, s, http.MethodGet, "/history/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]float64{"total": 4, "success": 3, "failed": 1}, decode[map[string]float64](t, rec))
}

func TestServerSyncUnknownDirection(t *testing.T) {
	h, s := newTestServer(t)
	h.connect(t)

	rec := do(t, s, http.MethodPost, "/sync/sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerSyncBusy(t *testing.T) {
	h, s := newTestServer(t)
	h.connect(t)
	h.session.syncing.Store(true)

	rec := do(t, s, http.MethodPost, "/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServerModuleData(t *testing.T) {
	_, s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/modules/habits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/modules/habits", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/modules/habits", `["walk"]`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/modules/habits", "")
	assert.JSONEq(t, `["walk"]`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/modules/notes", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPut, "/modules/notes", `[]`).Code)
}

func TestServerAutoSyncSetting(t *testing.T) {
	h, s := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/settings/auto-sync", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, h.session.AutoSyncEnabled())

	rec = do(t, s, http.MethodPut, "/settings/auto-sync", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.session.AutoSyncEnabled())
}

func TestServerStop(t *testing.T) {
	_, s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-s.StopCh():
	default:
		t.Fatal("stop signal not delivered")
	}

	// A second request must not block.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/stop", "").Code)
}
