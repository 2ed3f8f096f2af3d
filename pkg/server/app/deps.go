package app

import (
	"github.com/rs/zerolog"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/server/api"
)

// Deps holds dependencies for the server application.
type Deps struct {
	// Queue is served by the API and closed on shutdown.
	Queue *queue.Queue

	// API overrides api.DefaultConfig when non-nil.
	API *api.Config

	// Logger for structured logging (injected by caller)
	Logger zerolog.Logger
}
