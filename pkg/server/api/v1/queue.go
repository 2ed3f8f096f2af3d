package v1

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/server/api"
)

// ActionResponse is returned by the POST /api/v1/queue/* endpoints.
type ActionResponse struct {
	Action string `json:"action"`
	// Affected is the number of items removed by stop or reset by
	// retry-failed.
	Affected int         `json:"affected"`
	Stats    queue.Stats `json:"stats"`
}

// StatsResponse is returned by GET /api/v1/queue/stats.
type StatsResponse struct {
	queue.Stats
	Progress float64 `json:"progress"`
	// ETA is a human readable EstimatedTimeRemaining, empty when unknown.
	ETA string `json:"eta,omitempty"`
}

// ConfigResponse is the queue configuration with durations as strings.
type ConfigResponse struct {
	Concurrency   int    `json:"concurrency"`
	DispatchDelay string `json:"dispatch_delay"`
	MaxRetries    int    `json:"max_retries"`
	ETAWindow     int    `json:"eta_window"`
}

func newConfigResponse(cfg queue.Config) ConfigResponse {
	return ConfigResponse{
		Concurrency:   cfg.Concurrency,
		DispatchDelay: cfg.DispatchDelay.String(),
		MaxRetries:    cfg.MaxRetries,
		ETAWindow:     cfg.ETAWindow,
	}
}

// NewStatsResponse decorates a stats snapshot with derived fields.
func NewStatsResponse(s queue.Stats) StatsResponse {
	res := StatsResponse{Stats: s, Progress: s.Progress()}
	if s.ETAKnown {
		res.ETA = s.EstimatedTimeRemaining.Round(100 * time.Millisecond).String()
	}
	return res
}

// actionHandler runs one control operation and responds with fresh stats.
func actionHandler(deps *api.Deps, action string, run func(q api.QueueService) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		affected, err := run(deps.Queue)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		log.Info().
			Str("component", "api").
			Str("action", action).
			Int("affected", affected).
			Msg("Queue action applied")

		api.WriteJSON(w, http.StatusOK, ActionResponse{
			Action:   action,
			Affected: affected,
			Stats:    deps.Queue.Stats(),
		})
	}
}

// StartHandler handles POST /api/v1/queue/start
func StartHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "start", func(q api.QueueService) (int, error) {
		return 0, q.Start()
	})
}

// PauseHandler handles POST /api/v1/queue/pause
func PauseHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "pause", func(q api.QueueService) (int, error) {
		q.Pause()
		return 0, nil
	})
}

// ResumeHandler handles POST /api/v1/queue/resume
func ResumeHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "resume", func(q api.QueueService) (int, error) {
		q.Resume()
		return 0, nil
	})
}

// StopHandler handles POST /api/v1/queue/stop
//
// In-flight attempts finish; affected is the number of queued items
// discarded.
func StopHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "stop", func(q api.QueueService) (int, error) {
		return q.Stop(), nil
	})
}

// ClearHandler handles POST /api/v1/queue/clear
//
// Returns 409 while the queue is processing.
func ClearHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "clear", func(q api.QueueService) (int, error) {
		return 0, q.Clear()
	})
}

// RetryFailedHandler handles POST /api/v1/queue/retry-failed
func RetryFailedHandler(deps *api.Deps) http.HandlerFunc {
	return actionHandler(deps, "retry-failed", func(q api.QueueService) (int, error) {
		return q.RetryFailed(), nil
	})
}

// StatsHandler handles GET /api/v1/queue/stats
func StatsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, NewStatsResponse(deps.Queue.Stats()))
	}
}

// GetConfigHandler handles GET /api/v1/queue/config
func GetConfigHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, newConfigResponse(deps.Queue.Config()))
	}
}

// UpdateConfigHandler handles PATCH /api/v1/queue/config
//
// Request body (every field optional):
//
//	{"concurrency": 4, "dispatch_delay": "250ms", "max_retries": 1, "eta_window": 10}
//
// The patch is validated as a whole; on 400 the running configuration is
// unchanged.
func UpdateConfigHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patch, err := ParseConfigPatch(w, r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		cfg, err := deps.Queue.UpdateConfig(patch)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		log.Info().
			Str("component", "api").
			Int("concurrency", cfg.Concurrency).
			Dur("dispatch_delay", cfg.DispatchDelay).
			Int("max_retries", cfg.MaxRetries).
			Msg("Queue configuration updated")

		api.WriteJSON(w, http.StatusOK, newConfigResponse(cfg))
	}
}
