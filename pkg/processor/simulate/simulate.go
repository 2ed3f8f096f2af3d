// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package simulate provides a processor that pretends to generate images.
// It sleeps for a random latency and fails at a configurable rate, which is
// enough to exercise throttling, retries and progress reporting without an
// external service.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/vulntor/batchq/pkg/processor"
	"github.com/vulntor/batchq/pkg/queue"
)

// ErrSimulatedFailure is returned for attempts chosen to fail.
var ErrSimulatedFailure = errors.New("simulated failure")

// Config controls latency and failure behaviour.
type Config struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	// Seed makes runs reproducible; zero seeds from the clock.
	Seed int64
}

// Processor implements queue.Processor.
//
// A map payload may override behaviour per item:
//
//	fail: true        every attempt fails
//	fail_attempts: 2  the first two attempts fail
//	latency: 50ms     fixed latency for this item
type Processor struct {
	cfg    Config
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

var _ queue.Processor = (*Processor)(nil)

// New creates a simulated processor.
func New(cfg Config) *Processor {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &Processor{
		cfg:    cfg,
		logger: log.With().Str("component", "processor.simulate").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Process sleeps, then either fails or returns a processor.Image.
func (p *Processor) Process(ctx context.Context, job queue.Job) (any, error) {
	prompt, err := processor.Prompt(job.Payload)
	if err != nil {
		return nil, err
	}

	latency, fail := p.plan(job)
	p.logger.Debug().
		Str("item_id", job.ID).
		Int("attempt", job.Attempt).
		Dur("latency", latency).
		Bool("fail", fail).
		Msg("Simulating attempt")

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if fail {
		return nil, fmt.Errorf("%w for %s (attempt %d)", ErrSimulatedFailure, job.ID, job.Attempt)
	}
	return processor.Image{
		Data:     placeholder(prompt),
		MIMEType: "image/svg+xml",
		Prompt:   prompt,
	}, nil
}

// plan picks latency and outcome for one attempt.
func (p *Processor) plan(job queue.Job) (time.Duration, bool) {
	p.mu.Lock()
	latency := p.cfg.MinLatency
	if spread := p.cfg.MaxLatency - p.cfg.MinLatency; spread > 0 {
		latency += time.Duration(p.rng.Int63n(int64(spread)))
	}
	fail := p.rng.Float64() < p.cfg.FailureRate
	p.mu.Unlock()

	if v, ok := processor.Field(job.Payload, "latency"); ok {
		if d, err := cast.ToDurationE(v); err == nil && d >= 0 {
			latency = d
		}
	}
	if v, ok := processor.Field(job.Payload, "fail"); ok {
		fail = cast.ToBool(v)
	}
	if v, ok := processor.Field(job.Payload, "fail_attempts"); ok {
		fail = job.Attempt <= cast.ToInt(v)
	}
	return latency, fail
}

func placeholder(prompt string) []byte {
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="512" height="512">`+
		`<rect width="100%%" height="100%%" fill="#e5e7eb"/>`+
		`<text x="50%%" y="50%%" text-anchor="middle" font-family="sans-serif" font-size="20">%s</text>`+
		`</svg>`, html.EscapeString(prompt)))
}
