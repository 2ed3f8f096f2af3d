// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import "time"

// minETASamples is the number of completions needed before an ETA is reported.
const minETASamples = 2

// Stats is a point-in-time snapshot derived from the item records.
type Stats struct {
	// Version increases with every snapshot a queue produces; subscribers
	// can drop snapshots older than one they already rendered.
	Version uint64 `json:"version"`

	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	// InFlight is the number of worker slots held by running attempts.
	InFlight int `json:"in_flight"`

	IsProcessing bool `json:"is_processing"`
	IsPaused     bool `json:"is_paused"`
	IsStopped    bool `json:"is_stopped"`

	// AverageDuration is the moving average over the ETA window; zero when
	// ETAKnown is false.
	AverageDuration time.Duration `json:"average_duration"`

	// EstimatedTimeRemaining is only meaningful when ETAKnown is true.
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	ETAKnown               bool          `json:"eta_known"`
}

// Count returns the number of items in status s.
func (s Stats) Count(st Status) int {
	switch st {
	case StatusQueued:
		return s.Queued
	case StatusProcessing:
		return s.Processing
	case StatusRetrying:
		return s.Retrying
	case StatusCompleted:
		return s.Completed
	case StatusFailed:
		return s.Failed
	}
	return 0
}

// Remaining is the number of items that have not reached a terminal state.
func (s Stats) Remaining() int {
	return s.Queued + s.Processing + s.Retrying
}

// Done is the number of items in a terminal state.
func (s Stats) Done() int {
	return s.Completed + s.Failed
}

// Progress returns the terminal fraction in [0, 1].
func (s Stats) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Done()) / float64(s.Total)
}

// ComputeStats derives counts and the ETA from a set of records.
// durations holds the wall time of recent successful attempts, oldest first;
// only the last cfg.ETAWindow entries are used. It has no side effects.
func ComputeStats(items []Item, cfg Config, durations []time.Duration) Stats {
	var s Stats
	for i := range items {
		s.add(items[i].Status)
	}
	s.InFlight = s.Processing
	s.finish(cfg, durations)
	return s
}

func (s *Stats) add(st Status) {
	s.Total++
	switch st {
	case StatusQueued:
		s.Queued++
	case StatusProcessing:
		s.Processing++
	case StatusRetrying:
		s.Retrying++
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	}
}

func (s *Stats) finish(cfg Config, durations []time.Duration) {
	s.EstimatedTimeRemaining, s.AverageDuration, s.ETAKnown = EstimateRemaining(
		s.Remaining(), durations, cfg.ETAWindow, cfg.Concurrency)
}

// EstimateRemaining computes remaining / throughput, where throughput is
// concurrency lanes each finishing one item per average duration. With fewer
// than two samples the estimate is indeterminate and ok is false.
func EstimateRemaining(remaining int, durations []time.Duration, window, concurrency int) (eta, avg time.Duration, ok bool) {
	if window > 0 && len(durations) > window {
		durations = durations[len(durations)-window:]
	}
	if len(durations) < minETASamples {
		return 0, 0, false
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	avg = sum / time.Duration(len(durations))

	if concurrency < 1 {
		concurrency = 1
	}
	eta = time.Duration(int64(avg) * int64(remaining) / int64(concurrency))
	return eta, avg, true
}
