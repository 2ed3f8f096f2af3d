package commands

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/format"
	"github.com/vulntor/batchq/pkg/appctx"
	"github.com/vulntor/batchq/pkg/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Manage configuration",
		GroupID: "core",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
BATCHQ_* environment variables and flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)
			mgr, ok := appctx.Config(cmd.Context())
			if !ok {
				return fmt.Errorf("configuration not loaded")
			}
			if formatter.IsJSON() {
				return formatter.PrintJSON(mgr.Koanf().Raw())
			}
			out, err := mgr.Koanf().Marshal(yaml.Parser())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	// Queue flags are bound so `config show --concurrency 8` previews an override.
	config.BindQueueFlags(show.Flags())
	config.BindServerFlags(show.Flags())

	cmd.AddCommand(show)
	return cmd
}
