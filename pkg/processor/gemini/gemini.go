// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package gemini generates one image per item with Google's Imagen models
// through the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/vulntor/batchq/pkg/processor"
	"github.com/vulntor/batchq/pkg/queue"
)

// Errors returned by the Gemini processor.
var (
	ErrMissingAPIKey = errors.New("gemini API key is required (set processor.gemini.api_key or GEMINI_API_KEY)")
	ErrNoImage       = errors.New("gemini returned no image")
	ErrFiltered      = errors.New("image filtered by safety policy")
)

// Config configures the processor.
type Config struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	AspectRatio string
}

// ImageGenerator is the subset of genai.Models used here.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Processor implements queue.Processor on top of an ImageGenerator.
type Processor struct {
	cfg       Config
	generator ImageGenerator
	logger    zerolog.Logger
}

var _ queue.Processor = (*Processor)(nil)

// New creates a processor backed by a real genai client.
func New(ctx context.Context, cfg Config) (*Processor, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return NewWithGenerator(cfg, client.Models), nil
}

// NewWithGenerator creates a processor using gen, e.g. a test double.
func NewWithGenerator(cfg Config, gen ImageGenerator) *Processor {
	return &Processor{
		cfg:       cfg,
		generator: gen,
		logger: log.With().
			Str("component", "processor.gemini").
			Str("model", cfg.Model).
			Logger(),
	}
}

// Process generates a single image for the item's prompt.
func (p *Processor) Process(ctx context.Context, job queue.Job) (any, error) {
	prompt, err := processor.Prompt(job.Payload)
	if err != nil {
		return nil, err
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.generator.GenerateImages(ctx, p.cfg.Model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      p.cfg.AspectRatio,
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image for %s: %w", job.ID, err)
	}

	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoImage, job.ID)
	}
	generated := resp.GeneratedImages[0]
	if generated.RAIFilteredReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrFiltered, generated.RAIFilteredReason)
	}
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoImage, job.ID)
	}

	mimeType := generated.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	p.logger.Debug().
		Str("item_id", job.ID).
		Int("bytes", len(generated.Image.ImageBytes)).
		Dur("duration", time.Since(start)).
		Msg("Image generated")

	return processor.Image{
		Data:     generated.Image.ImageBytes,
		MIMEType: mimeType,
		Prompt:   prompt,
	}, nil
}
