package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/animal-detection/internal/location"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/runner"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
	"github.com/Capitan-Parrot/animal-detection/internal/services/detection"
)

type fakeSessions struct {
	running  map[string]bool
	history  []models.AlertRecord
	filter   alert.Filter
	location *location.Latest
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{running: map[string]bool{}, location: location.NewLatest()}
}

func (f *fakeSessions) Start(_ context.Context, id string) (*models.Session, error) {
	if id == "" {
		id = "generated"
	}
	if f.running[id] {
		return nil, runner.ErrSessionActive
	}
	f.running[id] = true
	return &models.Session{ID: id, State: models.SessionRunning, FrameWidth: 800, FrameHeight: 600}, nil
}

func (f *fakeSessions) Stop(_ context.Context, id string) error {
	if !f.running[id] {
		return runner.ErrSessionNotFound
	}
	f.running[id] = false
	return nil
}

func (f *fakeSessions) Simulate(id string) error {
	running, ok := f.running[id]
	switch {
	case !ok:
		return runner.ErrSessionNotFound
	case !running:
		return runner.ErrSessionStopped
	}
	return nil
}

func (f *fakeSessions) History(id string, filter alert.Filter) ([]models.AlertRecord, error) {
	if _, ok := f.running[id]; !ok {
		return nil, runner.ErrSessionNotFound
	}
	f.filter = filter
	return f.history, nil
}

func (f *fakeSessions) Stats(id string) (models.Stats, error) {
	if _, ok := f.running[id]; !ok {
		return models.Stats{}, runner.ErrSessionNotFound
	}
	return models.Stats{Running: f.running[id], Ticks: 42, ByClass: map[models.AnimalClass]int64{}, ByLevel: map[string]int64{}}, nil
}

func (f *fakeSessions) UpdateLocation(fix models.LocationFix) error {
	return f.location.Update(fix)
}

func (f *fakeSessions) Model() models.ModelInfo {
	return detection.NewModel(0.5).Info()
}

type fakeCounter struct {
	count int
	err   error
}

func (f fakeCounter) CountFrames(context.Context, string) (int, error) {
	return f.count, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	sessions := newFakeSessions()
	router := NewHandlers(sessions, nil, nil).Router()

	rec := do(t, router, http.MethodPost, "/sessions", `{"session_id":"cam-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "cam-1", created.ID)
	assert.Equal(t, models.SessionRunning, created.State)

	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/sessions", `{"session_id":"cam-1"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/sessions/cam-1/simulate", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/sessions/cam-1", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/sessions/cam-1/simulate", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/sessions/cam-1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/sessions/other/simulate", "").Code)
}

func TestStartWithoutBody(t *testing.T) {
	router := NewHandlers(newFakeSessions(), nil, nil).Router()

	rec := do(t, router, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"generated"`)
}

func TestStartRejectsBadBody(t *testing.T) {
	router := NewHandlers(newFakeSessions(), nil, nil).Router()

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/sessions", `{`).Code)
	long := strings.Repeat("x", 65)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/sessions", `{"session_id":"`+long+`"}`).Code)
}

func TestHistoryQuery(t *testing.T) {
	sessions := newFakeSessions()
	sessions.running["s1"] = true
	sessions.history = []models.AlertRecord{{ID: "a1", SessionID: "s1", Detection: models.Detection{
		AnimalClass: models.AnimalTiger, DangerLevel: models.DangerCritical, Confidence: 0.97,
	}}}
	router := NewHandlers(sessions, nil, nil).Router()

	rec := do(t, router, http.MethodGet, "/sessions/s1/history?level=high&class=tiger&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.AlertRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.DangerCritical, records[0].Detection.DangerLevel)

	require.NotNil(t, sessions.filter.MinLevel)
	assert.Equal(t, models.DangerHigh, *sessions.filter.MinLevel)
	assert.Equal(t, models.AnimalTiger, sessions.filter.Class)
	assert.Equal(t, 5, sessions.filter.Limit)

	tests := []string{
		"/sessions/s1/history?level=extreme",
		"/sessions/s1/history?class=dragon",
		"/sessions/s1/history?limit=-1",
		"/sessions/s1/history?limit=ten",
	}
	for _, path := range tests {
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, path, "").Code, path)
	}
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/sessions/nope/history", "").Code)
}

func TestStats(t *testing.T) {
	sessions := newFakeSessions()
	sessions.running["s1"] = true

	rec := do(t, NewHandlers(sessions, fakeCounter{count: 7}, nil).Router(), http.MethodGet, "/sessions/s1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42.0, resp["ticks"])
	assert.Equal(t, 7.0, resp["archived_frames"])

	rec = do(t, NewHandlers(sessions, fakeCounter{err: errors.New("minio down")}, nil).Router(), http.MethodGet, "/sessions/s1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "archived_frames")
}

func TestUpdateLocation(t *testing.T) {
	sessions := newFakeSessions()
	router := NewHandlers(sessions, nil, nil).Router()

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodPut, "/location", `{"latitude":28.6,"longitude":77.2,"speed":40}`).Code)
	fix, ok := sessions.location.CurrentLocation()
	require.True(t, ok)
	assert.Equal(t, 40.0, *fix.Speed)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/location", `{"latitude":95,"longitude":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/location", `nope`).Code)
}

func TestModelHealthAndMetrics(t *testing.T) {
	router := NewHandlers(newFakeSessions(), nil, nil).Router()

	rec := do(t, router, http.MethodGet, "/model", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 106, info.Layers)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "").Code)

	rec = do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_requests_total")
}

func TestViewerRouteOptional(t *testing.T) {
	router := NewHandlers(newFakeSessions(), nil, nil).Router()
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/ws", "").Code)

	called := false
	viewers := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	do(t, NewHandlers(newFakeSessions(), nil, viewers).Router(), http.MethodGet, "/ws", "")
	assert.True(t, called)
}
