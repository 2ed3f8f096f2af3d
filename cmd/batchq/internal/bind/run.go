package bind

import (
	"errors"

	"github.com/spf13/cobra"
)

// RunOptions holds the validated options of 'batchq run'.
type RunOptions struct {
	ItemsPath string
	Progress  bool
	Watch     bool
}

// BindRunOptions extracts run flags and the items file argument.
//
// Flags read:
//   - --progress: print live progress
//   - --watch: apply queue changes from the config file while running
func BindRunOptions(cmd *cobra.Command, args []string) (RunOptions, error) {
	if len(args) != 1 || args[0] == "" {
		return RunOptions{}, errors.New("expected exactly one items file (use - for stdin)")
	}

	progress, _ := cmd.Flags().GetBool("progress")
	watch, _ := cmd.Flags().GetBool("watch")

	return RunOptions{
		ItemsPath: args[0],
		Progress:  progress,
		Watch:     watch,
	}, nil
}
