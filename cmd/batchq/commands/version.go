package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/format"
	v "github.com/vulntor/batchq/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := v.Get()
			formatter := format.FromCommand(cmd)
			if formatter.IsJSON() {
				return formatter.PrintJSON(info)
			}

			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}
			_, _ = fmt.Fprintf(out, "%s version: %s\n", cliExecutable, info.Version)
			_, _ = fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			_, _ = fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
			_, err := fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
