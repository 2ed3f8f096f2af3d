// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newTestQueue(t *testing.T, proc Processor, mutate func(*Config)) *Queue {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	if mutate != nil {
		mutate(&cfg)
	}

	q, err := New(proc, cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = q.Close(ctx)
	})
	return q
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, q.Wait(ctx), "queue did not become idle")
}

func inputs(ids ...string) []Input {
	out := make([]Input, 0, len(ids))
	for _, id := range ids {
		out = append(out, Input{ID: id, Payload: "payload-" + id})
	}
	return out
}

func itemsByID(q *Queue) map[string]Item {
	out := make(map[string]Item)
	for _, it := range q.Items() {
		out[it.ID] = it
	}
	return out
}

// recordingProcessor counts calls and tracks the peak number of concurrent
// Process calls. fail decides, per job, whether the attempt fails.
type recordingProcessor struct {
	mu      sync.Mutex
	calls   []Job
	delay   time.Duration
	fail    func(job Job) error
	current atomic.Int32
	peak    atomic.Int32
}

func (p *recordingProcessor) Process(ctx context.Context, job Job) (any, error) {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, job)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.fail != nil {
		if err := p.fail(job); err != nil {
			return nil, err
		}
	}
	return "result-" + job.ID, nil
}

func (p *recordingProcessor) callOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.ID)
	}
	return out
}

func (p *recordingProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// gatedProcessor blocks every attempt until release is closed and reports
// each start on started.
type gatedProcessor struct {
	started chan string
	release chan struct{}
	once    sync.Once
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
}

func (p *gatedProcessor) Process(ctx context.Context, job Job) (any, error) {
	p.started <- job.ID
	select {
	case <-p.release:
		return "done-" + job.ID, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedProcessor) open() {
	p.once.Do(func() { close(p.release) })
}

func (p *gatedProcessor) awaitStart(t *testing.T) string {
	t.Helper()
	select {
	case id := <-p.started:
		return id
	case <-time.After(waitTimeout):
		t.Fatal("no attempt started")
		return ""
	}
}

// failFirst fails the first attempt of each listed id.
func failFirst(ids ...string) func(Job) error {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(job Job) error {
		if set[job.ID] && job.Attempt == 1 {
			return fmt.Errorf("transient failure on %s", job.ID)
		}
		return nil
	}
}

var errAlways = errors.New("backend unavailable")
