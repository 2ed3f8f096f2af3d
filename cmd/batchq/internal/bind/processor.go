package bind

import (
	"context"
	"fmt"

	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/processor/gemini"
	"github.com/vulntor/batchq/pkg/processor/simulate"
	"github.com/vulntor/batchq/pkg/queue"
)

// UnknownProcessorError is returned for a processor kind with no backend.
type UnknownProcessorError struct {
	Kind string
}

func (e *UnknownProcessorError) Error() string {
	return fmt.Sprintf("unknown processor %q (valid: simulate, gemini)", e.Kind)
}

// BindProcessor builds the item processor selected by cfg.Kind.
func BindProcessor(ctx context.Context, cfg config.ProcessorConfig) (queue.Processor, error) {
	switch cfg.Kind {
	case "", "simulate":
		return simulate.New(simulate.Config{
			MinLatency:  cfg.Simulate.MinLatency,
			MaxLatency:  cfg.Simulate.MaxLatency,
			FailureRate: cfg.Simulate.FailureRate,
			Seed:        cfg.Simulate.Seed,
		}), nil
	case "gemini":
		proc, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Timeout:     cfg.Gemini.Timeout,
			AspectRatio: cfg.Gemini.AspectRatio,
		})
		if err != nil {
			return nil, err
		}
		return proc, nil
	default:
		return nil, &UnknownProcessorError{Kind: cfg.Kind}
	}
}
