package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/format"
	"github.com/vulntor/batchq/pkg/appctx"
	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/logging"
	"github.com/vulntor/batchq/pkg/paths"
	"github.com/vulntor/batchq/pkg/runexec"
)

const cliExecutable = "batchq"

// NewCommand constructs the top-level batchq CLI command, wiring global
// flags, configuration loading and logging.
func NewCommand() *cobra.Command {
	var (
		configFile string
		debug      bool
		outputFmt  string
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "batchq runs batches of items through a bounded, retrying work queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := format.ValidateMode(outputFmt); err != nil {
				return err
			}

			mgr := config.NewManager()
			if err := mgr.Load(config.DefaultSources(paths.ResolveConfigFile(configFile), cmd.Flags(), debug)...); err != nil {
				return runexec.WrapInvalidConfig(fmt.Errorf("load configuration: %w", err))
			}

			cfg := mgr.Get()
			if err := logging.ConfigureGlobalLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			log.Debug().Str("config", mgr.FilePath()).Msg("configuration loaded")

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default ./batchq.yaml, then the user config dir)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Shortcut for --log-level debug")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace|debug|info|warn|error")
	cmd.PersistentFlags().String("log-format", "", "Log format: console|json")
	cmd.PersistentFlags().StringVar(&outputFmt, "format", string(format.ModeTable), "Output format: table|json")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Print only essential output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.AddGroup(&cobra.Group{ID: "queue", Title: "Queue Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}
