package api

import (
	"sync/atomic"

	"github.com/vulntor/batchq/pkg/queue"
)

// Deps holds dependencies for API handlers.
type Deps struct {
	// Queue is the queue the API controls.
	Queue QueueService

	// Ready flag for readiness check
	Ready *atomic.Bool

	Config Config
}

// QueueService is the subset of *queue.Queue the API needs.
// Defined here so handlers can be tested against a stub.
type QueueService interface {
	AddItems(inputs ...queue.Input) error
	Start() error
	Pause()
	Resume()
	Stop() int
	Clear() error
	RetryFailed() int
	UpdateConfig(patch queue.ConfigPatch) (queue.Config, error)
	Config() queue.Config
	Stats() queue.Stats
	Items() []queue.Item
	Item(id string) (queue.Item, error)
}

var _ QueueService = (*queue.Queue)(nil)
