// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single item.
type Status string

// Possible item status values.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
}

// IsTerminal reports whether no further attempt will be made for the item.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsPending reports whether the item is waiting in the dispatch FIFO.
func (s Status) IsPending() bool {
	return s == StatusQueued || s == StatusRetrying
}

func (s Status) String() string {
	return string(s)
}

// transitions is the item state machine. The dispatcher owns the
// pending -> processing edges, workers own the edges leaving processing,
// and control operations own the rest (Stop, RetryFailed).
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusRetrying, StatusFailed},
	StatusRetrying:   {StatusProcessing, StatusFailed},
	StatusFailed:     {StatusQueued},
	StatusCompleted:  {},
}

// canTransition reports whether from -> to is a legal edge.
func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Input is a unit of work submitted through AddItems.
type Input struct {
	ID      string `json:"id" yaml:"id"`
	Payload any    `json:"payload" yaml:"payload"`
}

// Item is the queue's record of one submitted unit of work.
// Values returned by the queue are copies.
type Item struct {
	ID         string    `json:"id"`
	Payload    any       `json:"payload,omitempty"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Duration returns the wall time of the last attempt, or zero if it has not
// finished.
func (it Item) Duration() time.Duration {
	if it.StartedAt.IsZero() || it.FinishedAt.IsZero() {
		return 0
	}
	return it.FinishedAt.Sub(it.StartedAt)
}

// transition moves the record to the next status, rejecting edges the state
// machine does not allow.
func (it *Item) transition(to Status) error {
	if !canTransition(it.Status, to) {
		return fmt.Errorf("%w: %s -> %s (item %s)", ErrInvalidTransition, it.Status, to, it.ID)
	}
	it.Status = to
	return nil
}

// Job is what a Processor receives for one attempt.
type Job struct {
	ID      string
	Payload any
	// Attempt is 1 for the first attempt.
	Attempt int
}
