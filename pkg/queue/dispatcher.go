// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"time"
)

// dispatch is the scheduling loop of one run. It is the only writer of the
// pending -> processing transition. It exits when the run is stopped (ctx is
// cancelled) or when nothing is pending and nothing is in flight.
func (q *Queue) dispatch(ctx context.Context) {
	q.logger.Debug().Msg("Dispatcher started")
	defer q.logger.Debug().Msg("Dispatcher exited")

	for {
		q.mu.Lock()
		if ctx.Err() != nil || !q.processing {
			q.mu.Unlock()
			return
		}

		if len(q.pending) == 0 && q.inFlight == 0 {
			q.processing = false
			q.signalIdleLocked()
			ev := q.eventLocked(TopicDrained, nil)
			q.mu.Unlock()

			q.logger.Info().
				Int("completed", ev.Stats.Completed).
				Int("failed", ev.Stats.Failed).
				Msg("Queue drained")
			q.publish(ev)
			return
		}

		if !q.canDispatchLocked() {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		limiter := q.limiter
		q.mu.Unlock()

		// Global throttle: a token is released at most once per
		// DispatchDelay, whatever the number of workers.
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		q.mu.Lock()
		if ctx.Err() != nil || !q.processing {
			q.mu.Unlock()
			return
		}
		if !q.canDispatchLocked() {
			// Paused, saturated or drained while we were throttled.
			q.mu.Unlock()
			continue
		}
		job, ev, ok := q.startNextLocked()
		maxRetries := q.cfg.MaxRetries
		q.mu.Unlock()
		if !ok {
			if ev.Topic == TopicItemFailed {
				q.logger.Error().
					Str("item_id", ev.Item.ID).
					Int("attempts", ev.Item.Attempts).
					Int("max_retries", maxRetries).
					Msg("Retry dropped, attempts exceed lowered retry limit")
				q.publish(ev)
			}
			continue
		}

		q.logger.Debug().
			Str("item_id", job.ID).
			Int("attempt", job.Attempt).
			Int("in_flight", ev.Stats.InFlight).
			Msg("Item dispatched")
		q.publish(ev)
		go q.execute(job)
	}
}

// canDispatchLocked reports whether another attempt may start right now.
func (q *Queue) canDispatchLocked() bool {
	return !q.paused && !q.stopped && len(q.pending) > 0 && q.inFlight < q.cfg.Concurrency
}

// startNextLocked pops the head of the FIFO and marks it processing. A
// retrying item that has already used every attempt the current MaxRetries
// allows is failed instead; the returned event is then TopicItemFailed.
func (q *Queue) startNextLocked() (Job, Event, bool) {
	id := q.pending[0]
	q.pending = q.pending[1:]

	it, ok := q.items[id]
	if !ok {
		return Job{}, Event{}, false
	}
	if it.Status == StatusRetrying && it.Attempts >= q.cfg.MaxRetries+1 {
		if err := it.transition(StatusFailed); err != nil {
			q.logger.Error().Err(err).Msg("Cannot fail exhausted retry")
			return Job{}, Event{}, false
		}
		it.FinishedAt = time.Now()
		return Job{}, q.eventLocked(TopicItemFailed, it), false
	}
	if err := it.transition(StatusProcessing); err != nil {
		q.logger.Error().Err(err).Msg("Skipping item with unexpected status")
		return Job{}, Event{}, false
	}
	it.Attempts++
	it.StartedAt = time.Now()
	it.FinishedAt = time.Time{}

	q.inFlight++
	q.workers.Add(1)

	job := Job{ID: it.ID, Payload: it.Payload, Attempt: it.Attempts}
	return job, q.eventLocked(TopicItemDispatched, it), true
}
