// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vulntor/batchq/pkg/event"
)

// Processor performs the actual unit of work for one item. Implementations
// must be safe for concurrent use; the queue calls Process from up to
// Config.Concurrency goroutines at once.
type Processor interface {
	Process(ctx context.Context, job Job) (any, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job Job) (any, error)

// Process calls f(ctx, job).
func (f ProcessorFunc) Process(ctx context.Context, job Job) (any, error) {
	return f(ctx, job)
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used by the queue.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger.With().Str("component", "queue").Logger()
	}
}

// WithBus publishes queue events on an existing bus instead of a private one.
func WithBus(bus *event.Bus) Option {
	return func(q *Queue) {
		if bus != nil {
			q.bus = bus
		}
	}
}

// Queue is a bounded concurrent job queue. All methods are safe for
// concurrent use.
type Queue struct {
	processor Processor
	logger    zerolog.Logger
	bus       *event.Bus

	mu        sync.Mutex
	cfg       Config
	items     map[string]*Item
	order     []string // record insertion order
	pending   []string // dispatch FIFO; ids of queued and retrying records
	durations []time.Duration
	inFlight  int
	version   uint64

	processing bool
	paused     bool
	stopped    bool
	closed     bool

	limiter    *rate.Limiter
	wake       chan struct{}
	runCancel  context.CancelFunc
	idle       chan struct{}
	idleClosed bool

	// workCtx is handed to processors; it is only cancelled when Close
	// gives up waiting for in-flight attempts.
	workCtx    context.Context
	workCancel context.CancelFunc
	workers    sync.WaitGroup
}

// New creates an idle queue. cfg is validated; use DefaultConfig as a base.
func New(processor Processor, cfg Config, opts ...Option) (*Queue, error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workCtx, workCancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	q := &Queue{
		processor:  processor,
		logger:     log.Logger.With().Str("component", "queue").Logger(),
		bus:        event.New(),
		cfg:        cfg,
		items:      make(map[string]*Item),
		limiter:    rate.NewLimiter(limitFor(cfg.DispatchDelay), 1),
		wake:       make(chan struct{}, 1),
		idle:       idle,
		idleClosed: true,
		workCtx:    workCtx,
		workCancel: workCancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// limitFor converts a dispatch delay into a token-bucket rate.
func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

// Subscribe registers handler for topic (see the Topic constants). The
// handler receives an Event value. The returned function unsubscribes.
func (q *Queue) Subscribe(topic string, handler event.Handler) func() {
	return q.bus.Subscribe(topic, handler)
}

// AddItems appends new records in the queued state. The batch is accepted
// or rejected as a whole: an empty id, an id repeated within the batch, or
// an id that is already queued, processing or retrying rejects every input.
// An id whose existing record is completed or failed replaces that record.
func (q *Queue) AddItems(inputs ...Input) error {
	if len(inputs) == 0 {
		return nil
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	seen := make(map[string]struct{}, len(inputs))
	var dups []string
	for i, in := range inputs {
		if in.ID == "" {
			q.mu.Unlock()
			return fmt.Errorf("%w: input %d has an empty id", ErrInvalidItem, i)
		}
		if _, ok := seen[in.ID]; ok {
			dups = append(dups, in.ID)
			continue
		}
		seen[in.ID] = struct{}{}
		if existing, ok := q.items[in.ID]; ok && !existing.Status.IsTerminal() {
			dups = append(dups, in.ID)
		}
	}
	if len(dups) > 0 {
		q.mu.Unlock()
		return &DuplicateItemError{IDs: dups}
	}

	replaced := 0
	now := time.Now()
	for _, in := range inputs {
		if _, ok := q.items[in.ID]; ok {
			q.removeLocked(in.ID)
			replaced++
		}
		q.items[in.ID] = &Item{
			ID:       in.ID,
			Payload:  in.Payload,
			Status:   StatusQueued,
			QueuedAt: now,
		}
		q.order = append(q.order, in.ID)
		q.pending = append(q.pending, in.ID)
	}
	ev := q.eventLocked(TopicItemsAdded, nil)
	q.mu.Unlock()

	q.signal()
	q.logger.Debug().
		Int("count", len(inputs)).
		Int("replaced", replaced).
		Msg("Items added")
	q.publish(ev)
	return nil
}

// Start begins a run and launches the dispatcher. It is a no-op if a run is
// already in progress.
func (q *Queue) Start() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.processing {
		q.mu.Unlock()
		return nil
	}

	q.processing = true
	q.stopped = false
	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
	ctx, cancel := context.WithCancel(q.workCtx)
	q.runCancel = cancel
	ev := q.eventLocked(TopicStarted, nil)
	concurrency := q.cfg.Concurrency
	q.mu.Unlock()

	q.logger.Info().
		Int("pending", ev.Stats.Remaining()).
		Int("concurrency", concurrency).
		Msg("Queue started")
	q.publish(ev)

	go q.dispatch(ctx)
	return nil
}

// Pause suspends dispatch of new items. In-flight attempts finish normally.
// Pausing an already paused queue does nothing.
func (q *Queue) Pause() {
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = true
	ev := q.eventLocked(TopicPaused, nil)
	q.mu.Unlock()

	q.logger.Info().Msg("Queue paused")
	q.publish(ev)
}

// Resume re-enables dispatch. Resuming a queue that is not paused does
// nothing.
func (q *Queue) Resume() {
	q.mu.Lock()
	if !q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = false
	ev := q.eventLocked(TopicResumed, nil)
	q.mu.Unlock()

	q.signal()
	q.logger.Info().Msg("Queue resumed")
	q.publish(ev)
}

// Stop ends the run. Queued items are discarded without being attempted
// and their records removed. Items waiting for a retry are not discarded:
// they have already been attempted, so they stay in the record set as failed
// with their last error and are not included in the returned count. In-flight
// attempts are not cancelled and still reach a terminal state. Stop returns
// the number of discarded items.
func (q *Queue) Stop() int {
	q.mu.Lock()
	q.stopped = true
	q.processing = false
	if q.runCancel != nil {
		q.runCancel()
		q.runCancel = nil
	}

	now := time.Now()
	discarded, abandoned := 0, 0
	for _, id := range q.pending {
		it, ok := q.items[id]
		if !ok {
			continue
		}
		switch it.Status {
		case StatusQueued:
			q.removeLocked(id)
			discarded++
		case StatusRetrying:
			if err := it.transition(StatusFailed); err != nil {
				q.logger.Error().Err(err).Msg("Cannot abandon retry")
				continue
			}
			it.FinishedAt = now
			abandoned++
		}
	}
	q.pending = nil
	q.signalIdleLocked()
	ev := q.eventLocked(TopicStopped, nil)
	inFlight := q.inFlight
	q.mu.Unlock()

	q.signal()
	q.logger.Info().
		Int("discarded", discarded).
		Int("abandoned_retries", abandoned).
		Int("in_flight", inFlight).
		Msg("Queue stopped")
	q.publish(ev)
	return discarded
}

// Clear removes every record. It fails with ErrQueueBusy while a run is in
// progress or any attempt is still in flight.
func (q *Queue) Clear() error {
	q.mu.Lock()
	if q.processing || q.inFlight > 0 {
		inFlight := q.inFlight
		q.mu.Unlock()
		return fmt.Errorf("%w: cannot clear with a run active (%d in flight)", ErrQueueBusy, inFlight)
	}
	q.items = make(map[string]*Item)
	q.order = nil
	q.pending = nil
	q.durations = nil
	ev := q.eventLocked(TopicCleared, nil)
	q.mu.Unlock()

	q.logger.Info().Msg("Queue cleared")
	q.publish(ev)
	return nil
}

// RetryFailed moves every failed item back to queued with its attempt count
// reset. It does not start a run; call Start if none is active.
func (q *Queue) RetryFailed() int {
	q.mu.Lock()
	now := time.Now()
	count := 0
	for _, id := range q.order {
		it := q.items[id]
		if it.Status != StatusFailed {
			continue
		}
		if err := it.transition(StatusQueued); err != nil {
			q.logger.Error().Err(err).Msg("Cannot requeue failed item")
			continue
		}
		it.Attempts = 0
		it.Error = ""
		it.Result = nil
		it.QueuedAt = now
		it.StartedAt = time.Time{}
		it.FinishedAt = time.Time{}
		q.pending = append(q.pending, id)
		count++
	}
	ev := q.eventLocked(TopicRetryFailed, nil)
	q.mu.Unlock()

	if count > 0 {
		q.signal()
	}
	q.logger.Info().Int("count", count).Msg("Failed items requeued")
	q.publish(ev)
	return count
}

// UpdateConfig merges patch into the current configuration. Invalid patches
// are rejected with a *ConfigError and leave the configuration untouched.
// The new values apply from the next scheduling decision.
func (q *Queue) UpdateConfig(patch ConfigPatch) (Config, error) {
	q.mu.Lock()
	next, err := patch.Apply(q.cfg)
	if err != nil {
		cur := q.cfg
		q.mu.Unlock()
		return cur, err
	}
	prev := q.cfg
	q.cfg = next
	if next.DispatchDelay != prev.DispatchDelay {
		q.limiter.SetLimit(limitFor(next.DispatchDelay))
	}
	if len(q.durations) > next.ETAWindow {
		q.durations = append([]time.Duration(nil), q.durations[len(q.durations)-next.ETAWindow:]...)
	}
	ev := q.eventLocked(TopicConfigUpdated, nil)
	q.mu.Unlock()

	q.signal()
	q.logger.Info().
		Int("concurrency", next.Concurrency).
		Dur("dispatch_delay", next.DispatchDelay).
		Int("max_retries", next.MaxRetries).
		Int("eta_window", next.ETAWindow).
		Msg("Queue configuration updated")
	q.publish(ev)
	return next, nil
}

// Config returns the current configuration.
func (q *Queue) Config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// Stats returns a fresh statistics snapshot.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

// Items returns copies of every record in insertion order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}

// Item returns a copy of the record with the given id.
func (q *Queue) Item(id string) (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *it, nil
}

// Completed returns the items that finished with a result, in insertion
// order. This is what a downstream upload stage consumes.
func (q *Queue) Completed() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Item
	for _, id := range q.order {
		if it := q.items[id]; it.Status == StatusCompleted {
			out = append(out, *it)
		}
	}
	return out
}

// Wait blocks until the queue is idle: no run in progress and no attempt in
// flight. It returns immediately for a queue that was never started.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue and waits for in-flight attempts. If ctx expires
// first, the context handed to processors is cancelled and ctx's error is
// returned. A closed queue rejects Start and AddItems.
func (q *Queue) Close(ctx context.Context) error {
	q.Stop()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.workCancel()
		q.logger.Info().Msg("Queue closed")
		return nil
	case <-ctx.Done():
		q.workCancel()
		q.logger.Warn().Msg("Queue close timed out, cancelling in-flight attempts")
		return ctx.Err()
	}
}

// signal wakes the dispatcher without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// signalIdleLocked releases Wait callers once nothing is running.
func (q *Queue) signalIdleLocked() {
	if !q.processing && q.inFlight == 0 && !q.idleClosed {
		close(q.idle)
		q.idleClosed = true
	}
}

// removeLocked drops a record and its position in the insertion order.
// The caller is responsible for the pending FIFO.
func (q *Queue) removeLocked(id string) {
	delete(q.items, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *Queue) statsLocked() Stats {
	var s Stats
	for _, it := range q.items {
		s.add(it.Status)
	}
	s.finish(q.cfg, q.durations)

	q.version++
	s.Version = q.version
	s.IsProcessing = q.processing
	s.IsPaused = q.paused
	s.IsStopped = q.stopped
	s.InFlight = q.inFlight
	return s
}

func (q *Queue) eventLocked(topic string, it *Item) Event {
	ev := Event{
		Topic: topic,
		Time:  time.Now(),
		Stats: q.statsLocked(),
	}
	if it != nil {
		cp := *it
		ev.Item = &cp
	}
	return ev
}
