// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New()

// Manager handles loading and accessing application configuration.
type Manager struct {
	mu      sync.RWMutex
	k       *koanf.Koanf
	sources []ConfigSource
	current Config
}

// NewManager creates a Manager holding DefaultConfig until Load is called.
func NewManager() *Manager {
	return &Manager{
		k:       koanf.New("."),
		current: DefaultConfig(),
	}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
// These serve as the baseline configuration if no other sources override them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Queue: QueueConfig{
			Concurrency:   2,
			DispatchDelay: 0,
			MaxRetries:    2,
			ETAWindow:     5,
		},
		Processor: ProcessorConfig{
			Kind: "simulate",
			Simulate: SimulateConfig{
				MinLatency:  200 * time.Millisecond,
				MaxLatency:  800 * time.Millisecond,
				FailureRate: 0.1,
			},
			Gemini: GeminiConfig{
				Model:       "imagen-3.0-generate-002",
				Timeout:     2 * time.Minute,
				AspectRatio: "1:1",
			},
		},
		Output: OutputConfig{
			Manifest: "manifest.yaml",
		},
		Server: DefaultServerConfig(),
	}
}

// Load merges sources in priority order into a fresh koanf instance, then
// unmarshals and validates the result. On error the previous configuration
// stays in effect.
func (m *Manager) Load(sources ...ConfigSource) error {
	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.k = k
	m.sources = ordered
	m.current = cfg
	m.mu.Unlock()
	return nil
}

// Reload re-reads the sources passed to the last successful Load.
func (m *Manager) Reload() error {
	m.mu.RLock()
	sources := m.sources
	m.mu.RUnlock()
	if len(sources) == 0 {
		return errors.New("config: reload before load")
	}
	return m.Load(sources...)
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Koanf exposes the merged key space, e.g. for `config show`.
func (m *Manager) Koanf() *koanf.Koanf {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k
}

// FilePath returns the path of the file source, or "" if none was loaded.
func (m *Manager) FilePath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, src := range m.sources {
		if fs, ok := src.(*FileSource); ok {
			return fs.Path
		}
	}
	return ""
}

// ValidationError lists every rejected field of a configuration.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.Fields, "; ")
}

// Validate checks cfg against its validate tags.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]string, 0, len(verrs))}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields = append(out.Fields, fmt.Sprintf("%s must satisfy %s (got %v)", keyFor(fe.Namespace()), rule, fe.Value()))
	}
	return out
}

// keyFor turns a validator namespace (Config.Queue.ETAWindow) into the koanf
// key a user would set (queue.eta_window).
func keyFor(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DefaultConfigAsMap converts the DefaultConfig struct to a map for koanf's
// confmap.Provider, so every key exists before files and env are merged.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"queue.concurrency":    def.Queue.Concurrency,
		"queue.dispatch_delay": def.Queue.DispatchDelay,
		"queue.max_retries":    def.Queue.MaxRetries,
		"queue.eta_window":     def.Queue.ETAWindow,

		"processor.kind":                  def.Processor.Kind,
		"processor.simulate.min_latency":  def.Processor.Simulate.MinLatency,
		"processor.simulate.max_latency":  def.Processor.Simulate.MaxLatency,
		"processor.simulate.failure_rate": def.Processor.Simulate.FailureRate,
		"processor.simulate.seed":         def.Processor.Simulate.Seed,
		"processor.gemini.api_key":        def.Processor.Gemini.APIKey,
		"processor.gemini.model":          def.Processor.Gemini.Model,
		"processor.gemini.timeout":        def.Processor.Gemini.Timeout,
		"processor.gemini.aspect_ratio":   def.Processor.Gemini.AspectRatio,

		"output.dir":      def.Output.Dir,
		"output.manifest": def.Output.Manifest,

		"server.addr":             def.Server.Addr,
		"server.port":             def.Server.Port,
		"server.read_timeout":     def.Server.ReadTimeout,
		"server.write_timeout":    def.Server.WriteTimeout,
		"server.shutdown_timeout": def.Server.ShutdownTimeout,
	}
}
