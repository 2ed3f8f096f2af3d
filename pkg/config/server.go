package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// BindServerFlags binds server-specific flags to the provided FlagSet.
// Flags are namespaced under 'server.' so they map onto config keys as-is.
func BindServerFlags(flags *pflag.FlagSet) {
	defaults := DefaultServerConfig()

	flags.String("server.addr", defaults.Addr, "Server listen address (use 0.0.0.0 for all interfaces)")
	flags.Int("server.port", defaults.Port, "Server listen port")
	flags.Duration("server.read_timeout", defaults.ReadTimeout, "HTTP read timeout")
	flags.Duration("server.write_timeout", defaults.WriteTimeout, "HTTP write timeout")
	flags.Duration("server.shutdown_timeout", defaults.ShutdownTimeout, "Grace period for in-flight items on shutdown")
}

// BindQueueFlags binds the queue and processor flags shared by 'run' and
// 'serve'. Short names are translated to config keys by FlagKeys.
func BindQueueFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.IntP("concurrency", "n", defaults.Queue.Concurrency, "Maximum items processed at once")
	flags.Duration("delay", defaults.Queue.DispatchDelay, "Minimum time between two dispatch starts")
	flags.Int("retries", defaults.Queue.MaxRetries, "Extra attempts for a failing item")
	flags.StringP("processor", "p", defaults.Processor.Kind, "Processor: simulate or gemini")
	flags.StringP("output", "o", defaults.Output.Dir, "Directory for completed results (empty disables)")
}

// FlagKeys maps short flag names to config keys. Flags not listed here are
// expected to already be named after their key (e.g. server.port).
var FlagKeys = map[string]string{
	"concurrency": "queue.concurrency",
	"delay":       "queue.dispatch_delay",
	"retries":     "queue.max_retries",
	"processor":   "processor.kind",
	"output":      "output.dir",
	"log-level":   "log.level",
	"log-format":  "log.format",
}
