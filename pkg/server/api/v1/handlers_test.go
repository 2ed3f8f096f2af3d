package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/server/api"
)

// testRouter mounts the v1 handlers the same way the server does.
func testRouter(deps *api.Deps) http.Handler {
	r := chi.NewRouter()
	r.Post("/items", AddItemsHandler(deps))
	r.Get("/items", ListItemsHandler(deps))
	r.Get("/items/{id}", GetItemHandler(deps))
	r.Post("/queue/start", StartHandler(deps))
	r.Post("/queue/pause", PauseHandler(deps))
	r.Post("/queue/resume", ResumeHandler(deps))
	r.Post("/queue/stop", StopHandler(deps))
	r.Post("/queue/clear", ClearHandler(deps))
	r.Post("/queue/retry-failed", RetryFailedHandler(deps))
	r.Get("/queue/stats", StatsHandler(deps))
	r.Get("/queue/config", GetConfigHandler(deps))
	r.Patch("/queue/config", UpdateConfigHandler(deps))
	return r
}

func newDeps(t *testing.T, proc queue.Processor) (*api.Deps, *queue.Queue) {
	t.Helper()
	q, err := queue.New(proc, queue.Config{Concurrency: 2, MaxRetries: 0, ETAWindow: 5}, queue.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close(context.Background()) })

	ready := &atomic.Bool{}
	ready.Store(true)
	return &api.Deps{Queue: q, Ready: ready, Config: api.DefaultConfig()}, q
}

func succeed(_ context.Context, job queue.Job) (any, error) {
	return "done " + job.ID, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func waitDrained(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestAddItemsHandler(t *testing.T) {
	deps, _ := newDeps(t, queue.ProcessorFunc(succeed))
	h := testRouter(deps)

	w := do(t, h, http.MethodPost, "/items", `{"items":[{"id":"a","payload":"x"},{"id":"b","payload":"y"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[AddItemsResponse](t, w)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Stats.Total)
	assert.Equal(t, 2, res.Stats.Queued)
}

func TestAddItemsHandler_Rejections(t *testing.T) {
	deps, _ := newDeps(t, queue.ProcessorFunc(succeed))
	h := testRouter(deps)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/items", `{"items":[{"id":"a"}]}`).Code)

	w := do(t, h, http.MethodPost, "/items", `{"items":[{"id":"a"},{"id":"c"}]}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"a"}, decode[api.ErrorResponse](t, w).Details)

	w = do(t, h, http.MethodPost, "/items", `{"items":[{"id":""}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/items", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Rejected batches add nothing.
	assert.Equal(t, 1, deps.Queue.Stats().Total)
}

func TestListAndGetItems(t *testing.T) {
	deps, q := newDeps(t, queue.ProcessorFunc(func(_ context.Context, job queue.Job) (any, error) {
		if job.ID == "bad" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}))
	h := testRouter(deps)

	require.NoError(t, q.AddItems(
		queue.Input{ID: "a", Payload: "x"},
		queue.Input{ID: "bad", Payload: "x"},
		queue.Input{ID: "c", Payload: "x"},
	))
	require.NoError(t, q.Start())
	waitDrained(t, q)

	w := do(t, h, http.MethodGet, "/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListItemsResponse](t, w)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "a", list.Items[0].ID)

	w = do(t, h, http.MethodGet, "/items?status=failed", "")
	list = decode[ListItemsResponse](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "bad", list.Items[0].ID)
	assert.Equal(t, "boom", list.Items[0].Error)

	w = do(t, h, http.MethodGet, "/items?limit=1&offset=1", "")
	list = decode[ListItemsResponse](t, w)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "bad", list.Items[0].ID)

	w = do(t, h, http.MethodGet, "/items?offset=10", "")
	list = decode[ListItemsResponse](t, w)
	assert.Empty(t, list.Items)

	w = do(t, h, http.MethodGet, "/items?status=nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/items/c", "")
	require.Equal(t, http.StatusOK, w.Code)
	it := decode[queue.Item](t, w)
	assert.Equal(t, queue.StatusCompleted, it.Status)
	assert.Equal(t, "ok", it.Result)

	w = do(t, h, http.MethodGet, "/items/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueActions(t *testing.T) {
	release := make(chan struct{})
	deps, q := newDeps(t, queue.ProcessorFunc(func(ctx context.Context, _ queue.Job) (any, error) {
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	h := testRouter(deps)

	require.NoError(t, q.AddItems(
		queue.Input{ID: "a"}, queue.Input{ID: "b"}, queue.Input{ID: "c"}, queue.Input{ID: "d"},
	))

	w := do(t, h, http.MethodPost, "/queue/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[ActionResponse](t, w)
	assert.Equal(t, "start", res.Action)
	assert.True(t, res.Stats.IsProcessing)

	require.Eventually(t, func() bool { return q.Stats().Processing == 2 }, 2*time.Second, 5*time.Millisecond)

	w = do(t, h, http.MethodPost, "/queue/clear", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/queue/pause", "")
	res = decode[ActionResponse](t, w)
	assert.True(t, res.Stats.IsPaused)

	w = do(t, h, http.MethodPost, "/queue/resume", "")
	res = decode[ActionResponse](t, w)
	assert.False(t, res.Stats.IsPaused)

	w = do(t, h, http.MethodPost, "/queue/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[ActionResponse](t, w)
	assert.Equal(t, 2, res.Affected)
	assert.True(t, res.Stats.IsStopped)

	close(release)
	waitDrained(t, q)

	w = do(t, h, http.MethodPost, "/queue/retry-failed", "")
	res = decode[ActionResponse](t, w)
	assert.Equal(t, 0, res.Affected)

	w = do(t, h, http.MethodPost, "/queue/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[ActionResponse](t, w)
	assert.Equal(t, 0, res.Stats.Total)
}

func TestRetryFailedHandler(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	deps, q := newDeps(t, queue.ProcessorFunc(func(context.Context, queue.Job) (any, error) {
		if fail.Load() {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}))
	h := testRouter(deps)

	require.NoError(t, q.AddItems(queue.Input{ID: "a"}, queue.Input{ID: "b"}))
	require.NoError(t, q.Start())
	waitDrained(t, q)
	require.Equal(t, 2, q.Stats().Failed)

	fail.Store(false)
	w := do(t, h, http.MethodPost, "/queue/retry-failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[ActionResponse](t, w).Affected)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/queue/start", "").Code)
	waitDrained(t, q)
	assert.Equal(t, 2, q.Stats().Completed)
}

func TestStatsHandler(t *testing.T) {
	deps, q := newDeps(t, queue.ProcessorFunc(succeed))
	h := testRouter(deps)

	require.NoError(t, q.AddItems(queue.Input{ID: "a"}, queue.Input{ID: "b"}, queue.Input{ID: "c"}))
	require.NoError(t, q.Start())
	waitDrained(t, q)

	w := do(t, h, http.MethodGet, "/queue/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[StatsResponse](t, w)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Completed)
	assert.InDelta(t, 1.0, res.Progress, 0.0001)
	assert.True(t, res.ETAKnown)
	assert.NotEmpty(t, res.ETA)
	assert.NotZero(t, res.Version)
}

func TestNewStatsResponse_UnknownETA(t *testing.T) {
	res := NewStatsResponse(queue.Stats{Total: 4, Queued: 4})
	assert.Empty(t, res.ETA)
	assert.Zero(t, res.Progress)
}

func TestConfigHandlers(t *testing.T) {
	deps, q := newDeps(t, queue.ProcessorFunc(succeed))
	h := testRouter(deps)

	w := do(t, h, http.MethodGet, "/queue/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode[ConfigResponse](t, w)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "0s", cfg.DispatchDelay)

	w = do(t, h, http.MethodPatch, "/queue/config", `{"concurrency":5,"dispatch_delay":"100ms"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cfg = decode[ConfigResponse](t, w)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, "100ms", cfg.DispatchDelay)
	assert.Equal(t, 5, q.Config().Concurrency)

	w = do(t, h, http.MethodPatch, "/queue/config", `{"concurrency":0,"eta_window":1}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errRes := decode[api.ErrorResponse](t, w)
	assert.Len(t, errRes.Details, 2)
	assert.Equal(t, 5, q.Config().Concurrency)

	w = do(t, h, http.MethodPatch, "/queue/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_ClosedQueue(t *testing.T) {
	deps, q := newDeps(t, queue.ProcessorFunc(succeed))
	h := testRouter(deps)
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/queue/start", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/items", `{"items":[{"id":"a"}]}`).Code)
}

func TestReadyzHandler(t *testing.T) {
	ready := &atomic.Bool{}
	h := ReadyzHandler(ready)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready.Store(true)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ready", w.Body.String())
}
