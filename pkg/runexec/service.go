package runexec

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/results"
)

// Run statuses reported in Result.Status.
const (
	StatusCompleted   = "completed"
	StatusPartial     = "partial"
	StatusInterrupted = "interrupted"
)

// ProgressSink receives every queue event of a run.
type ProgressSink interface {
	OnEvent(queue.Event)
}

// Params describes one batch run.
type Params struct {
	Items     []queue.Input
	Queue     queue.Config
	Processor queue.Processor

	// OutputDir enables the results writer when set.
	OutputDir string
	Manifest  string

	// ConfigUpdates carries queue configuration changes to apply while the
	// run is in progress, e.g. from a watched config file.
	ConfigUpdates <-chan queue.Config

	// Abort cancels in-flight attempts once the run has been stopped.
	// A nil Abort lets them finish.
	Abort context.Context
}

// Result summarises a finished run.
type Result struct {
	Status   string
	Stats    queue.Stats
	Items    []queue.Item
	Entries  []results.Entry
	Manifest string
	Elapsed  time.Duration
	// Discarded is the number of queued items dropped by an interrupt.
	Discarded int
}

// Failed returns the items that ended failed, in submission order.
func (r *Result) Failed() []queue.Item {
	var out []queue.Item
	for _, it := range r.Items {
		if it.Status == queue.StatusFailed {
			out = append(out, it)
		}
	}
	return out
}

// Service runs a batch of items through a queue to completion.
type Service struct {
	logger       zerolog.Logger
	progressSink ProgressSink
}

// NewService builds a Service logging through the global logger.
func NewService() *Service {
	return &Service{
		logger: log.With().Str("component", "runexec").Logger(),
	}
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// WithLogger replaces the service logger.
func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

// Run processes params.Items and blocks until every item is terminal.
// Cancelling ctx stops the run: queued items are dropped and in-flight
// attempts finish, unless params.Abort is also done.
//
// A Result is returned whenever the queue ran, also together with
// ErrInterrupted or ErrItemsFailed.
func (s *Service) Run(ctx context.Context, params Params) (*Result, error) {
	if len(params.Items) == 0 {
		return nil, ErrNoItems
	}
	if params.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if err := params.Queue.Validate(); err != nil {
		return nil, WrapInvalidConfig(err)
	}

	var writer *results.Writer
	if params.OutputDir != "" {
		w, err := results.Open(params.OutputDir, params.Manifest, s.logger)
		if err != nil {
			if errors.Is(err, results.ErrLocked) {
				return nil, WithErrorCode(err, errorCodeOutputLocked)
			}
			return nil, WithErrorCode(err, errorCodeOutputFailed)
		}
		writer = w
	}
	closeWriter := func() error {
		if writer == nil {
			return nil
		}
		return writer.Close()
	}

	q, err := queue.New(params.Processor, params.Queue, queue.WithLogger(s.logger))
	if err != nil {
		_ = closeWriter()
		return nil, WrapInvalidConfig(err)
	}
	if writer != nil {
		q.Subscribe(queue.TopicItemCompleted, writer.Handler())
	}
	if s.progressSink != nil {
		q.Subscribe(queue.TopicAll, func(_ context.Context, data any) {
			if ev, ok := data.(queue.Event); ok {
				s.progressSink.OnEvent(ev)
			}
		})
	}

	if err := q.AddItems(params.Items...); err != nil {
		_ = closeWriter()
		_ = q.Close(context.Background())
		switch {
		case queue.IsDuplicate(err):
			return nil, WithErrorCode(err, errorCodeDuplicateItem)
		case errors.Is(err, queue.ErrInvalidItem):
			return nil, WithErrorCode(err, errorCodeInvalidItems)
		default:
			return nil, err
		}
	}

	start := time.Now()
	s.logger.Info().
		Int("items", len(params.Items)).
		Int("concurrency", params.Queue.Concurrency).
		Str("output", params.OutputDir).
		Msg("Run started")
	if err := q.Start(); err != nil {
		_ = closeWriter()
		return nil, err
	}

	updatesDone := make(chan struct{})
	go s.applyUpdates(q, params.ConfigUpdates, updatesDone)

	abort := params.Abort
	if abort == nil {
		abort = context.Background()
	}
	discarded, interrupted := s.await(ctx, abort, q)
	close(updatesDone)

	_ = q.Close(context.Background())

	res := &Result{
		Stats:     q.Stats(),
		Items:     q.Items(),
		Elapsed:   time.Since(start),
		Discarded: discarded,
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			return res, WithErrorCode(err, errorCodeOutputFailed)
		}
		res.Entries = writer.Entries()
		res.Manifest = filepath.Join(params.OutputDir, manifestName(params.Manifest))
	}

	s.logger.Info().
		Int("completed", res.Stats.Completed).
		Int("failed", res.Stats.Failed).
		Int("discarded", discarded).
		Dur("elapsed", res.Elapsed).
		Msg("Run finished")

	switch {
	case interrupted:
		res.Status = StatusInterrupted
		return res, WithErrorCode(
			fmt.Errorf("%w: %d items not processed", ErrInterrupted, discarded),
			errorCodeInterrupted)
	case res.Stats.Failed > 0:
		res.Status = StatusPartial
		return res, NewFailedItemsError(res.Stats.Failed, res.Stats.Total)
	default:
		res.Status = StatusCompleted
		return res, nil
	}
}

// await blocks until q is idle. If ctx ends first the queue is stopped;
// if abort then ends too, in-flight attempts are cancelled.
func (s *Service) await(ctx, abort context.Context, q *queue.Queue) (discarded int, interrupted bool) {
	idle := make(chan struct{})
	go func() {
		_ = q.Wait(context.Background())
		close(idle)
	}()

	select {
	case <-idle:
		return 0, false
	case <-ctx.Done():
	}

	discarded = q.Stop()
	s.logger.Warn().Int("discarded", discarded).Msg("Run interrupted, waiting for in-flight items")

	select {
	case <-idle:
		return discarded, true
	case <-abort.Done():
	}

	s.logger.Warn().Msg("Run aborted, cancelling in-flight items")
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.Close(expired)
	<-idle
	return discarded, true
}

func (s *Service) applyUpdates(q *queue.Queue, updates <-chan queue.Config, done <-chan struct{}) {
	if updates == nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			next, err := q.UpdateConfig(queue.PatchFrom(cfg))
			if err != nil {
				s.logger.Warn().Err(err).Msg("Ignoring queue configuration update")
				continue
			}
			s.logger.Info().
				Int("concurrency", next.Concurrency).
				Dur("dispatch_delay", next.DispatchDelay).
				Int("max_retries", next.MaxRetries).
				Msg("Queue configuration reloaded")
		}
	}
}

func manifestName(name string) string {
	if name == "" {
		return "manifest.yaml"
	}
	return name
}
