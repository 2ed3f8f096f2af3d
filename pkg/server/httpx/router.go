package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vulntor/batchq/pkg/server/api"
	v1 "github.com/vulntor/batchq/pkg/server/api/v1"
)

// NewRouter creates the HTTP router with health endpoints and the v1
// control API mounted. Handlers under /api/v1 are bounded by
// deps.Config.HandlerTimeout.
func NewRouter(deps *api.Deps) chi.Router {
	r := chi.NewRouter()

	// Health endpoints
	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", v1.ReadyzHandler(deps.Ready))

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Config.HandlerTimeout > 0 {
			r.Use(middleware.Timeout(deps.Config.HandlerTimeout))
		}

		r.Post("/items", v1.AddItemsHandler(deps))
		r.Get("/items", v1.ListItemsHandler(deps))
		r.Get("/items/{id}", v1.GetItemHandler(deps))

		r.Route("/queue", func(r chi.Router) {
			r.Post("/start", v1.StartHandler(deps))
			r.Post("/pause", v1.PauseHandler(deps))
			r.Post("/resume", v1.ResumeHandler(deps))
			r.Post("/stop", v1.StopHandler(deps))
			r.Post("/clear", v1.ClearHandler(deps))
			r.Post("/retry-failed", v1.RetryFailedHandler(deps))

			r.Get("/stats", v1.StatsHandler(deps))
			r.Get("/config", v1.GetConfigHandler(deps))
			r.Patch("/config", v1.UpdateConfigHandler(deps))
		})
	})

	return r
}

// HealthzHandler responds with 200 OK if the server process is alive.
// It does not look at the queue; use /readyz for that.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
