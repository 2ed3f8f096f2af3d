// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_MixedFailuresWithoutRetries(t *testing.T) {
	proc := &recordingProcessor{
		delay: 10 * time.Millisecond,
		fail:  failFirst("item-2", "item-4"),
	}
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 2
		c.DispatchDelay = 0
		c.MaxRetries = 0
	})

	require.NoError(t, q.AddItems(inputs("item-1", "item-2", "item-3", "item-4")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	items := itemsByID(q)
	assert.Equal(t, StatusCompleted, items["item-1"].Status)
	assert.Equal(t, StatusFailed, items["item-2"].Status)
	assert.Equal(t, StatusCompleted, items["item-3"].Status)
	assert.Equal(t, StatusFailed, items["item-4"].Status)

	totalAttempts := 0
	for _, it := range items {
		totalAttempts += it.Attempts
	}
	assert.Equal(t, 4, totalAttempts)
	assert.Equal(t, 4, proc.callCount())
	assert.Contains(t, items["item-2"].Error, "transient failure")
	assert.Nil(t, items["item-2"].Result)
}

func TestScenario_PauseAfterFirstDispatch(t *testing.T) {
	proc := newGatedProcessor()
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 3
		c.DispatchDelay = 100 * time.Millisecond
	})
	t.Cleanup(proc.open)

	require.NoError(t, q.AddItems(inputs("a", "b", "c")...))
	require.NoError(t, q.Start())

	assert.Equal(t, "a", proc.awaitStart(t))
	q.Pause()

	// Longer than the throttle: the dispatcher would have started "b" by now.
	time.Sleep(300 * time.Millisecond)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 2, stats.Queued)
	assert.True(t, stats.IsPaused)
	assert.True(t, stats.IsProcessing)

	q.Resume()
	proc.open()
	waitIdle(t, q)

	stats = q.Stats()
	assert.Equal(t, 3, stats.Completed)
	assert.False(t, stats.IsProcessing)
}

func TestScenario_SucceedsOnThirdAttempt(t *testing.T) {
	proc := &recordingProcessor{
		fail: func(job Job) error {
			if job.Attempt < 3 {
				return fmt.Errorf("attempt %d failed", job.Attempt)
			}
			return nil
		},
	}
	q := newTestQueue(t, proc, func(c *Config) {
		c.MaxRetries = 2
	})

	require.NoError(t, q.AddItems(inputs("flaky")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	it, err := q.Item("flaky")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, it.Status)
	assert.Equal(t, 3, it.Attempts)
	assert.Empty(t, it.Error)
	assert.Equal(t, "result-flaky", it.Result)
	assert.False(t, it.FinishedAt.IsZero())
}

func TestScenario_StopDiscardsQueuedItems(t *testing.T) {
	proc := newGatedProcessor()
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 1
	})
	t.Cleanup(proc.open)

	require.NoError(t, q.AddItems(inputs("running", "queued-1", "queued-2")...))
	require.NoError(t, q.Start())
	assert.Equal(t, "running", proc.awaitStart(t))

	discarded := q.Stop()
	assert.Equal(t, 2, discarded)

	stats := q.Stats()
	assert.False(t, stats.IsProcessing)
	assert.True(t, stats.IsStopped)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Processing)

	proc.open()
	waitIdle(t, q)

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "running", items[0].ID)
	assert.Equal(t, StatusCompleted, items[0].Status)

	_, err := q.Item("queued-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing else was ever attempted.
	select {
	case id := <-proc.started:
		t.Fatalf("unexpected attempt for %s after stop", id)
	default:
	}
	assert.False(t, q.Stats().IsProcessing)
}

func TestScenario_RetryFailedResetsAttempts(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	proc := &recordingProcessor{
		fail: func(job Job) error {
			mu.Lock()
			defer mu.Unlock()
			if !healthy {
				return errAlways
			}
			return nil
		},
	}
	q := newTestQueue(t, proc, nil)

	require.NoError(t, q.AddItems(inputs("x", "y", "z")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)
	require.Equal(t, 3, q.Stats().Failed)

	mu.Lock()
	healthy = true
	mu.Unlock()

	require.Equal(t, 3, q.RetryFailed())
	for _, it := range q.Items() {
		assert.Equal(t, StatusQueued, it.Status)
		assert.Equal(t, 0, it.Attempts)
		assert.Empty(t, it.Error)
	}
	// RetryFailed alone never starts a run.
	assert.False(t, q.Stats().IsProcessing)

	require.NoError(t, q.Start())
	waitIdle(t, q)

	for _, it := range q.Items() {
		assert.Equal(t, StatusCompleted, it.Status)
		assert.Equal(t, 1, it.Attempts)
	}
	assert.Equal(t, 6, proc.callCount())
}

func TestConcurrencyBoundIsNeverExceeded(t *testing.T) {
	proc := &recordingProcessor{delay: 15 * time.Millisecond}
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 3
	})

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("item-%02d", i)
	}
	require.NoError(t, q.AddItems(inputs(ids...)...))

	var mu sync.Mutex
	maxProcessing := 0
	q.Subscribe(TopicAll, func(_ context.Context, data any) {
		ev := data.(Event)
		mu.Lock()
		if ev.Stats.Processing > maxProcessing {
			maxProcessing = ev.Stats.Processing
		}
		mu.Unlock()
	})

	require.NoError(t, q.Start())
	waitIdle(t, q)

	assert.LessOrEqual(t, int(proc.peak.Load()), 3)
	mu.Lock()
	assert.LessOrEqual(t, maxProcessing, 3)
	mu.Unlock()
	assert.Equal(t, 20, q.Stats().Completed)
}

func TestDispatchDelayThrottlesStarts(t *testing.T) {
	const delay = 40 * time.Millisecond
	const jitter = 10 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time
	proc := ProcessorFunc(func(_ context.Context, job Job) (any, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil, nil
	})
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 5
		c.DispatchDelay = delay
	})

	require.NoError(t, q.AddItems(inputs("a", "b", "c", "d", "e")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	items := q.Items()
	startedAt := make([]time.Time, 0, len(items))
	for _, it := range items {
		startedAt = append(startedAt, it.StartedAt)
	}
	sort.Slice(startedAt, func(i, j int) bool { return startedAt[i].Before(startedAt[j]) })
	for i := 1; i < len(startedAt); i++ {
		gap := startedAt[i].Sub(startedAt[i-1])
		assert.GreaterOrEqual(t, gap, delay-jitter, "gap between start %d and %d", i-1, i)
	}

	mu.Lock()
	assert.Len(t, starts, 5)
	mu.Unlock()
}

func TestRetryCeiling(t *testing.T) {
	proc := &recordingProcessor{fail: func(Job) error { return errAlways }}
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 2
		c.MaxRetries = 2
	})

	require.NoError(t, q.AddItems(inputs("a", "b", "c")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	for _, it := range q.Items() {
		assert.Equal(t, StatusFailed, it.Status)
		assert.Equal(t, 3, it.Attempts)
		assert.LessOrEqual(t, it.Attempts, q.Config().MaxRetries+1)
		assert.Equal(t, errAlways.Error(), it.Error)
	}
	assert.Equal(t, 9, proc.callCount())
}

func TestLoweredRetryLimitFailsPendingRetries(t *testing.T) {
	gate := make(chan struct{})
	blockedStarted := make(chan struct{})
	var flakyCalls atomic.Int32
	proc := ProcessorFunc(func(ctx context.Context, job Job) (any, error) {
		if job.ID == "flaky" {
			flakyCalls.Add(1)
			return nil, errAlways
		}
		close(blockedStarted)
		select {
		case <-gate:
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 1
		c.MaxRetries = 5
	})

	var failedEvents atomic.Int32
	q.Subscribe(TopicItemFailed, func(_ context.Context, data any) {
		if ev, ok := data.(Event); ok && ev.Item != nil && ev.Item.ID == "flaky" {
			failedEvents.Add(1)
		}
	})

	require.NoError(t, q.AddItems(inputs("flaky", "blocked")...))
	require.NoError(t, q.Start())

	select {
	case <-blockedStarted:
	case <-time.After(waitTimeout):
		t.Fatal("second item never started")
	}
	it, err := q.Item("flaky")
	require.NoError(t, err)
	require.Equal(t, StatusRetrying, it.Status)
	require.Equal(t, 1, it.Attempts)

	maxRetries := 0
	_, err = q.UpdateConfig(ConfigPatch{MaxRetries: &maxRetries})
	require.NoError(t, err)
	close(gate)
	waitIdle(t, q)

	it, err = q.Item("flaky")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, it.Status)
	assert.Equal(t, 1, it.Attempts)
	assert.Equal(t, errAlways.Error(), it.Error)
	assert.False(t, it.FinishedAt.IsZero())
	assert.Equal(t, int32(1), flakyCalls.Load())
	assert.Equal(t, int32(1), failedEvents.Load())

	for _, it := range q.Items() {
		assert.LessOrEqual(t, it.Attempts, q.Config().MaxRetries+1, it.ID)
	}
}

func TestRetriesGoToTheBackOfTheLine(t *testing.T) {
	proc := &recordingProcessor{fail: failFirst("a")}
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 1
		c.MaxRetries = 1
	})

	require.NoError(t, q.AddItems(inputs("a", "b", "c")...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	assert.Equal(t, []string{"a", "b", "c", "a"}, proc.callOrder())
	it, err := q.Item("a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, it.Status)
	assert.Equal(t, 2, it.Attempts)
}

func TestEveryItemReachesATerminalState(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var mu sync.Mutex
	proc := &recordingProcessor{
		delay: time.Millisecond,
		fail: func(Job) error {
			mu.Lock()
			defer mu.Unlock()
			if rng.Intn(3) == 0 {
				return errAlways
			}
			return nil
		},
	}
	q := newTestQueue(t, proc, func(c *Config) {
		c.Concurrency = 4
		c.MaxRetries = 1
	})

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("item-%02d", i)
	}
	require.NoError(t, q.AddItems(inputs(ids...)...))
	require.NoError(t, q.Start())
	waitIdle(t, q)

	stats := q.Stats()
	assert.Equal(t, 50, stats.Completed+stats.Failed)
	assert.Zero(t, stats.Queued)
	assert.Zero(t, stats.Processing)
	assert.Zero(t, stats.Retrying)
	for _, it := range q.Items() {
		assert.True(t, it.Status.IsTerminal(), "item %s is %s", it.ID, it.Status)
	}
}
