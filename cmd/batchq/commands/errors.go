package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/batchq/cmd/batchq/internal/format"
	"github.com/vulntor/batchq/pkg/runexec"
	serversvc "github.com/vulntor/batchq/pkg/server"
)

// reportedError marks an error whose summary was already printed.
type reportedError struct {
	error
}

func (e *reportedError) Unwrap() error { return e.error }

// reportFailure prints a failure summary for operation and returns err
// marked as reported.
func reportFailure(cmd *cobra.Command, operation string, err error) error {
	code, suggestions := runexec.ErrorCode(err), runexec.Suggestions(err)
	if isServerError(err) {
		code, suggestions = serversvc.ErrorCode(err), serversvc.Suggestions(err)
	}
	_ = format.FromCommand(cmd).PrintTotalFailureSummary(operation, err, code, suggestions)
	return &reportedError{error: err}
}

func isServerError(err error) bool {
	var coded interface{ Code() string }
	return errors.As(err, &coded) && strings.HasPrefix(coded.Code(), "SERVER_")
}

// ExitCode maps any command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if isServerError(err) {
		return serversvc.ExitCode(err)
	}
	return runexec.ExitCode(err)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewCommand()
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		_ = format.FromCommand(cmd).PrintError(err)
	}
	return ExitCode(err)
}
