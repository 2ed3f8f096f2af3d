// pkg/config/types.go
package config

import (
	"time"

	"github.com/vulntor/batchq/pkg/queue"
)

// Config is the root configuration structure for batchq.
type Config struct {
	Log       LogConfig       `description:"Logging configuration" koanf:"log"`
	Queue     QueueConfig     `description:"Queue scheduling" koanf:"queue"`
	Processor ProcessorConfig `description:"Work performed for each item" koanf:"processor"`
	Output    OutputConfig    `description:"Where completed results are written" koanf:"output"`
	Server    ServerConfig    `description:"HTTP control API" koanf:"server"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace|debug|info|warn|error" koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: console|json" koanf:"format" validate:"oneof=console json"`
}

// QueueConfig mirrors queue.Config with koanf keys.
type QueueConfig struct {
	Concurrency   int           `description:"Maximum attempts in flight" koanf:"concurrency" validate:"min=1"`
	DispatchDelay time.Duration `description:"Minimum spacing between dispatch starts" koanf:"dispatch_delay" validate:"min=0"`
	MaxRetries    int           `description:"Extra attempts after a failure" koanf:"max_retries" validate:"min=0"`
	ETAWindow     int           `description:"Completions averaged for the ETA" koanf:"eta_window" validate:"min=2"`
}

// ToQueue converts to the queue package's Config.
func (c QueueConfig) ToQueue() queue.Config {
	return queue.Config{
		Concurrency:   c.Concurrency,
		DispatchDelay: c.DispatchDelay,
		MaxRetries:    c.MaxRetries,
		ETAWindow:     c.ETAWindow,
	}
}

// ProcessorConfig selects and configures the item processor.
type ProcessorConfig struct {
	Kind     string         `description:"Processor: simulate|gemini" koanf:"kind" validate:"oneof=simulate gemini"`
	Simulate SimulateConfig `description:"Simulated processor" koanf:"simulate"`
	Gemini   GeminiConfig   `description:"Gemini image generation" koanf:"gemini"`
}

// SimulateConfig configures the simulated processor.
type SimulateConfig struct {
	MinLatency  time.Duration `koanf:"min_latency" validate:"min=0"`
	MaxLatency  time.Duration `koanf:"max_latency" validate:"gtefield=MinLatency"`
	FailureRate float64       `koanf:"failure_rate" validate:"min=0,max=1"`
	Seed        int64         `koanf:"seed"`
}

// GeminiConfig configures the Gemini image processor. APIKey falls back to
// GEMINI_API_KEY when empty.
type GeminiConfig struct {
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=0"`
	AspectRatio string        `koanf:"aspect_ratio"`
}

// OutputConfig controls the results writer. An empty Dir disables writing.
type OutputConfig struct {
	Dir      string `description:"Results directory" koanf:"dir"`
	Manifest string `description:"Manifest file name inside Dir" koanf:"manifest" validate:"required"`
}

// ServerConfig holds configuration for 'batchq serve'.
type ServerConfig struct {
	Addr string `description:"Server listen address" koanf:"addr"`
	Port int    `description:"Server listen port" koanf:"port" validate:"min=1,max=65535"`

	ReadTimeout     time.Duration `description:"HTTP read timeout" koanf:"read_timeout"`
	WriteTimeout    time.Duration `description:"HTTP write timeout" koanf:"write_timeout"`
	ShutdownTimeout time.Duration `description:"Grace period for in-flight items on shutdown" koanf:"shutdown_timeout"`
}
