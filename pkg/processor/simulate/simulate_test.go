// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/batchq/pkg/processor"
	"github.com/vulntor/batchq/pkg/queue"
)

func TestProcess_Success(t *testing.T) {
	p := New(Config{Seed: 1})

	res, err := p.Process(context.Background(), queue.Job{ID: "a", Payload: "a <blue> vase", Attempt: 1})
	require.NoError(t, err)

	img, ok := res.(processor.Image)
	require.True(t, ok)
	assert.Equal(t, "image/svg+xml", img.MIMEType)
	assert.Equal(t, "a <blue> vase", img.Prompt)
	assert.Contains(t, string(img.Data), "a &lt;blue&gt; vase")
}

func TestProcess_AlwaysFails(t *testing.T) {
	p := New(Config{FailureRate: 1, Seed: 1})
	_, err := p.Process(context.Background(), queue.Job{ID: "a", Payload: "x", Attempt: 1})
	assert.ErrorIs(t, err, ErrSimulatedFailure)
}

func TestProcess_PayloadOverrides(t *testing.T) {
	p := New(Config{FailureRate: 1, Seed: 1})

	ok := map[string]any{"prompt": "x", "fail": false}
	_, err := p.Process(context.Background(), queue.Job{ID: "a", Payload: ok, Attempt: 1})
	assert.NoError(t, err)

	flaky := map[string]any{"prompt": "x", "fail_attempts": 2}
	for attempt, wantErr := range map[int]bool{1: true, 2: true, 3: false} {
		_, err := p.Process(context.Background(), queue.Job{ID: "b", Payload: flaky, Attempt: attempt})
		assert.Equal(t, wantErr, err != nil, "attempt %d", attempt)
	}
}

func TestProcess_LatencyOverride(t *testing.T) {
	p := New(Config{MinLatency: time.Hour, MaxLatency: time.Hour, Seed: 1})

	start := time.Now()
	_, err := p.Process(context.Background(), queue.Job{
		ID:      "a",
		Payload: map[string]any{"prompt": "x", "latency": "10ms"},
		Attempt: 1,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcess_ContextCancelled(t *testing.T) {
	p := New(Config{MinLatency: time.Hour, MaxLatency: time.Hour, Seed: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Process(ctx, queue.Job{ID: "a", Payload: "x", Attempt: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcess_MissingPrompt(t *testing.T) {
	p := New(Config{Seed: 1})
	_, err := p.Process(context.Background(), queue.Job{ID: "a", Payload: map[string]any{"sku": "1"}, Attempt: 1})
	assert.ErrorIs(t, err, processor.ErrNoPrompt)
}

func TestPlan_LatencyWithinBounds(t *testing.T) {
	p := New(Config{MinLatency: 10 * time.Millisecond, MaxLatency: 20 * time.Millisecond, Seed: 7})
	for i := 0; i < 100; i++ {
		latency, _ := p.plan(queue.Job{ID: "a", Payload: "x", Attempt: 1})
		assert.GreaterOrEqual(t, latency, 10*time.Millisecond)
		assert.Less(t, latency, 20*time.Millisecond)
	}
}

func TestWithQueue(t *testing.T) {
	p := New(Config{Seed: 3})
	q, err := queue.New(p, queue.Config{Concurrency: 2, MaxRetries: 2, ETAWindow: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close(context.Background()) })

	require.NoError(t, q.AddItems(
		queue.Input{ID: "ok", Payload: "fine"},
		queue.Input{ID: "flaky", Payload: map[string]any{"prompt": "x", "fail_attempts": 1}},
		queue.Input{ID: "bad", Payload: map[string]any{"prompt": "x", "fail": true}},
	))
	require.NoError(t, q.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))

	flaky, err := q.Item("flaky")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, flaky.Status)
	assert.Equal(t, 2, flaky.Attempts)

	bad, err := q.Item("bad")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, bad.Status)
	assert.Equal(t, 3, bad.Attempts)
}
