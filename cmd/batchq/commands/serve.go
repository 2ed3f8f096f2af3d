package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/bind"
	"github.com/vulntor/batchq/pkg/appctx"
	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/logging"
	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/results"
	serversvc "github.com/vulntor/batchq/pkg/server"
	"github.com/vulntor/batchq/pkg/server/app"
)

const serveOperation = "start server"

// newServeCommand creates the 'batchq serve' command.
//
// The server owns one queue and exposes it over HTTP:
//   - POST /api/v1/items, GET /api/v1/items[/{id}]
//   - POST /api/v1/queue/{start,pause,resume,stop,clear,retry-failed}
//   - GET /api/v1/queue/stats, GET|PATCH /api/v1/queue/config
//   - GET /healthz, GET /readyz
//
// Example usage:
//
//	batchq serve
//	batchq serve --server.addr 0.0.0.0 --server.port 8080 -n 4 -o out/
func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve a queue over an HTTP control API",
		GroupID: "queue",
		Long: `Start an HTTP server that owns a single queue. Items are submitted and
the queue is started, paused and reconfigured through the API.

The server runs until interrupted (Ctrl+C), then stops accepting requests
and gives in-flight items server.shutdown_timeout to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, ok := appctx.Config(cmd.Context())
			if !ok {
				return reportFailure(cmd, serveOperation, serversvc.ErrConfigUnavailable)
			}
			cfg := mgr.Get()

			serverCfg, err := bind.BindServerConfig(cfg)
			if err != nil {
				return reportFailure(cmd, serveOperation, err)
			}

			proc, err := bind.BindProcessor(cmd.Context(), cfg.Processor)
			if err != nil {
				return reportFailure(cmd, serveOperation, serversvc.WrapProcessorInit(err))
			}

			logger := logging.NewLogger("server", zerolog.InfoLevel)

			q, err := queue.New(proc, cfg.Queue.ToQueue(), queue.WithLogger(log.Logger))
			if err != nil {
				return reportFailure(cmd, serveOperation, serversvc.WrapQueueInit(err))
			}

			if cfg.Output.Dir != "" {
				writer, err := results.Open(cfg.Output.Dir, cfg.Output.Manifest, log.Logger)
				if err != nil {
					_ = q.Close(context.Background())
					return reportFailure(cmd, serveOperation, serversvc.WrapAppInit(err))
				}
				defer func() {
					if err := writer.Close(); err != nil {
						logger.Error().Err(err).Msg("Failed to write manifest")
					}
				}()
				q.Subscribe(queue.TopicItemCompleted, writer.Handler())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if mgr.FilePath() != "" {
				startConfigWatcher(ctx, mgr, q, logger)
			}

			serverApp, err := app.New(serverCfg, &app.Deps{Queue: q, Logger: logger})
			if err != nil {
				_ = q.Close(context.Background())
				return reportFailure(cmd, serveOperation, serversvc.WrapAppInit(err))
			}

			if err := serverApp.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return reportFailure(cmd, serveOperation, serversvc.WrapRuntime(err))
			}
			return nil
		},
	}

	config.BindQueueFlags(cmd.Flags())
	config.BindServerFlags(cmd.Flags())

	return cmd
}

// startConfigWatcher applies queue changes from the config file to q.
// Failing to watch is logged; the server keeps running.
func startConfigWatcher(ctx context.Context, mgr *config.Manager, q *queue.Queue, logger zerolog.Logger) {
	watcher, err := config.NewWatcher(mgr, func(cfg config.Config) {
		if _, err := q.UpdateConfig(queue.PatchFrom(cfg.Queue.ToQueue())); err != nil {
			logger.Warn().Err(err).Msg("Ignoring queue configuration from reloaded file")
		}
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Config watcher unavailable")
		return
	}

	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("Config watcher failed (queue config changes need a restart)")
		}
	}()
}
