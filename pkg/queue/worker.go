// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"fmt"
	"runtime/debug"
	"time"
)

// execute runs one attempt for job and records the outcome. It is the only
// writer of the transitions leaving processing. Nothing that happens here
// can stop the dispatcher or touch another item.
func (q *Queue) execute(job Job) {
	defer q.workers.Done()

	result, err := q.invoke(job)

	q.mu.Lock()
	it, ok := q.items[job.ID]
	if !ok || it.Status != StatusProcessing {
		q.mu.Unlock()
		q.release()
		return
	}

	now := time.Now()
	var topic string
	switch {
	case err == nil:
		topic = TopicItemCompleted
		if err := it.transition(StatusCompleted); err != nil {
			q.logger.Error().Err(err).Str("item_id", job.ID).Msg("Unexpected attempt outcome transition")
		}
		it.Result = result
		it.Error = ""
		it.FinishedAt = now
		q.recordDurationLocked(now.Sub(it.StartedAt))

	case it.Attempts <= q.cfg.MaxRetries && !q.stopped:
		// Back of the line: a retry never overtakes items that have not
		// been attempted yet.
		topic = TopicItemRetrying
		if err := it.transition(StatusRetrying); err != nil {
			q.logger.Error().Err(err).Str("item_id", job.ID).Msg("Unexpected attempt outcome transition")
		}
		it.Error = err.Error()
		it.Result = nil
		q.pending = append(q.pending, it.ID)

	default:
		topic = TopicItemFailed
		if err := it.transition(StatusFailed); err != nil {
			q.logger.Error().Err(err).Str("item_id", job.ID).Msg("Unexpected attempt outcome transition")
		}
		it.Error = err.Error()
		it.Result = nil
		it.FinishedAt = now
	}
	ev := q.eventLocked(topic, it)
	maxRetries := q.cfg.MaxRetries
	q.mu.Unlock()

	switch topic {
	case TopicItemCompleted:
		q.logger.Debug().
			Str("item_id", job.ID).
			Int("attempt", job.Attempt).
			Dur("duration", ev.Item.Duration()).
			Msg("Item completed")
	case TopicItemRetrying:
		q.logger.Warn().
			Err(err).
			Str("item_id", job.ID).
			Int("attempt", job.Attempt).
			Int("max_retries", maxRetries).
			Msg("Item attempt failed, requeued for retry")
	case TopicItemFailed:
		q.logger.Error().
			Err(err).
			Str("item_id", job.ID).
			Int("attempts", job.Attempt).
			Msg("Item failed permanently")
	}
	// The slot is released after publishing: Wait must not return ahead
	// of the last item event.
	q.publish(ev)
	q.release()
}

// release frees the worker slot held by one attempt.
func (q *Queue) release() {
	q.mu.Lock()
	q.inFlight--
	q.signalIdleLocked()
	q.mu.Unlock()
	q.signal()
}

// invoke calls the processor, converting a panic into an ordinary failure.
func (q *Queue) invoke(job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Str("item_id", job.ID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Processor panicked")
			result = nil
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return q.processor.Process(q.workCtx, job)
}

// recordDurationLocked feeds the ETA moving average.
func (q *Queue) recordDurationLocked(d time.Duration) {
	q.durations = append(q.durations, d)
	if over := len(q.durations) - q.cfg.ETAWindow; over > 0 {
		q.durations = append(q.durations[:0], q.durations[over:]...)
	}
}
