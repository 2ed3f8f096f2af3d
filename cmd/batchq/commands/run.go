package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/bind"
	"github.com/vulntor/batchq/cmd/batchq/internal/format"
	"github.com/vulntor/batchq/pkg/appctx"
	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/runexec"
)

const runOperation = "run batch"

// newRunCommand creates the 'batchq run' command.
//
// Example usage:
//
//	batchq run items.yaml
//	batchq run items.yaml -n 4 --delay 250ms --retries 3 -o out/
//	cat items.json | batchq run - --format json
func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run <items-file>",
		Short:   "Process every item in a file and wait for the batch to finish",
		GroupID: "queue",
		Long: `Load items from a YAML or JSON file (or stdin with "-"), process them
through the queue and print a summary once every item is completed or failed.

Ctrl+C stops the run: queued items are discarded and in-flight items finish.
A second Ctrl+C cancels the in-flight items too.

With --watch, changes to the queue section of the config file are applied
while the run is in progress.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := format.FromCommand(cmd)

			opts, err := bind.BindRunOptions(cmd, args)
			if err != nil {
				return reportFailure(cmd, runOperation, fmt.Errorf("%w: %v", runexec.ErrNoItems, err))
			}

			mgr, ok := appctx.Config(cmd.Context())
			if !ok {
				return reportFailure(cmd, runOperation, runexec.WrapInvalidConfig(errors.New("configuration not loaded")))
			}
			cfg := mgr.Get()

			items, err := runexec.LoadItemsFile(opts.ItemsPath)
			if err != nil {
				return reportFailure(cmd, runOperation, err)
			}

			proc, err := bind.BindProcessor(cmd.Context(), cfg.Processor)
			if err != nil {
				var unknown *bind.UnknownProcessorError
				if errors.As(err, &unknown) {
					return reportFailure(cmd, runOperation, runexec.NewUnknownProcessorError(unknown.Kind))
				}
				return reportFailure(cmd, runOperation, runexec.WrapProcessorInit(err))
			}

			runCtx, stop := context.WithCancel(cmd.Context())
			defer stop()
			abort, abortNow := context.WithCancel(context.Background())
			defer abortNow()
			go handleInterrupts(runCtx, abort, stop, abortNow)

			var updates <-chan queue.Config
			if opts.Watch {
				updates = watchQueueConfig(runCtx, mgr)
			}

			svc := runexec.NewService()
			if opts.Progress && !formatter.IsJSON() {
				svc = svc.WithProgressSink(newProgressSink(os.Stderr, log.Logger, formatter.Color()))
			}

			res, runErr := svc.Run(runCtx, runexec.Params{
				Items:         items,
				Queue:         cfg.Queue.ToQueue(),
				Processor:     proc,
				OutputDir:     cfg.Output.Dir,
				Manifest:      cfg.Output.Manifest,
				ConfigUpdates: updates,
				Abort:         abort,
			})
			if res == nil {
				return reportFailure(cmd, runOperation, runErr)
			}

			if err := formatter.PrintRunSummary(newRunSummary(res, runErr)); err != nil {
				return err
			}
			if runErr != nil {
				return &reportedError{error: runErr}
			}
			return nil
		},
	}

	config.BindQueueFlags(cmd.Flags())
	cmd.Flags().Bool("progress", false, "Print live progress while items are processed")
	cmd.Flags().Bool("watch", false, "Apply queue changes from the config file during the run")

	return cmd
}

// handleInterrupts stops the run on the first signal and aborts in-flight
// items on the second.
func handleInterrupts(ctx, aborted context.Context, stop, abort context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Warn().Msg("Interrupt received, finishing in-flight items (press Ctrl+C again to abort)")
		stop()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("Aborting in-flight items")
		abort()
	case <-aborted.Done():
	}
}

// watchQueueConfig forwards the queue section of every successful config
// reload. Only the latest pending update is kept.
func watchQueueConfig(ctx context.Context, mgr *config.Manager) <-chan queue.Config {
	if mgr.FilePath() == "" {
		log.Warn().Msg("--watch has no effect without --config")
		return nil
	}

	updates := make(chan queue.Config, 1)
	watcher, err := config.NewWatcher(mgr, func(cfg config.Config) {
		next := cfg.Queue.ToQueue()
		for {
			select {
			case updates <- next:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
		return nil
	}

	go func() {
		if err := watcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()
	return updates
}

func newRunSummary(res *runexec.Result, err error) format.RunSummary {
	summary := format.RunSummary{
		Status:    res.Status,
		Total:     res.Stats.Total + res.Discarded,
		Completed: res.Stats.Completed,
		Failed:    res.Stats.Failed,
		Discarded: res.Discarded,
		Elapsed:   res.Elapsed,
		Manifest:  res.Manifest,
	}
	for _, it := range res.Failed() {
		summary.Errors = append(summary.Errors, format.ErrorDetail{
			ItemID:   it.ID,
			Attempts: it.Attempts,
			Error:    it.Error,
		})
	}
	if err != nil {
		summary.ErrorCode = runexec.ErrorCode(err)
		summary.Suggestions = runexec.Suggestions(err)
	}
	return summary
}
