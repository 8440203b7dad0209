package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/rotator/internal/backtest/rebalance"
	"github.com/sawpanic/rotator/internal/metrics"
	"github.com/sawpanic/rotator/internal/persistence"
)

type memoryStore struct {
	runs map[uuid.UUID]persistence.Run
	fail error
}

func (m *memoryStore) SaveRun(_ context.Context, run persistence.Run) error {
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStore) GetRun(_ context.Context, id uuid.UUID) (persistence.Run, error) {
	if m.fail != nil {
		return persistence.Run{}, m.fail
	}
	run, ok := m.runs[id]
	if !ok {
		return persistence.Run{}, persistence.ErrNotFound
	}
	return run, nil
}

func (m *memoryStore) ListRuns(_ context.Context, limit int) ([]persistence.Run, error) {
	out := make([]persistence.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func newTestServer(t *testing.T, checks map[string]Check) (*Server, *memoryStore, *metrics.Registry, *Hub) {
	t.Helper()
	store := &memoryStore{runs: map[uuid.UUID]persistence.Run{}}
	reg := metrics.NewRegistry()
	hub := NewHub()
	return NewServer(DefaultServerConfig(), reg, store, hub, checks), store, reg, hub
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t, map[string]Check{
		"store": func(context.Context) error { return nil },
	})
	rec := get(t, srv.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "pass", body.Checks["store"].Status)
}

func TestHealthFailingCheck(t *testing.T) {
	srv, _, _, _ := newTestServer(t, map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := get(t, srv.Handler(), "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, reg, _ := newTestServer(t, nil)
	reg.RecordRun(rebalance.KindBuyHold, 0.12)

	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rotator_backtest_runs_total{kind="buyhold"} 1`)
}

func TestGetRun(t *testing.T) {
	srv, store, _, _ := newTestServer(t, nil)
	id := uuid.New()
	store.runs[id] = persistence.Run{ID: id, Kind: rebalance.KindInterval, TotalReturn: 0.05}

	rec := get(t, srv.Handler(), "/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var run persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, 0.05, run.TotalReturn)

	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/runs/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.Handler(), "/runs/not-a-uuid").Code)

	store.fail = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.Handler(), "/runs/"+id.String()).Code)
}

func TestListRuns(t *testing.T) {
	srv, store, _, _ := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		id := uuid.New()
		store.runs[id] = persistence.Run{ID: id}
	}

	rec := get(t, srv.Handler(), "/runs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.Handler(), "/runs?limit=-1").Code)
}

func TestNotFound(t *testing.T) {
	srv, _, _, _ := newTestServer(t, nil)
	rec := get(t, srv.Handler(), "/candidates")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestRoutesOmittedWithoutCollaborators(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), nil, nil, nil, nil)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/runs/"+uuid.NewString()).Code)
}

func TestWebSocketStreamsPeriods(t *testing.T) {
	srv, _, _, hub := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	runID := uuid.New()
	hub.OnPeriod(rebalance.PeriodEvent{
		RunID:            runID,
		Kind:             rebalance.KindInterval,
		State:            rebalance.Rebalanced,
		Period:           rebalance.Period{Index: 2, Return: 0.01},
		CumulativeReturn: 0.03,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		RunID            uuid.UUID `json:"run_id"`
		State            string    `json:"state"`
		CumulativeReturn float64   `json:"cumulative_return"`
		Period           struct {
			Index int `json:"index"`
		} `json:"period"`
	}
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, runID, ev.RunID)
	assert.Equal(t, "rebalanced", ev.State)
	assert.Equal(t, 2, ev.Period.Index)
	assert.Equal(t, 0.03, ev.CumulativeReturn)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
