package runexec

import (
	"errors"
	"fmt"
)

// Sentinel errors for common CLI failures.
var (
	// ErrNoItems indicates that the items file held nothing to process.
	ErrNoItems = errors.New("no items to process")

	// ErrInterrupted indicates the run was stopped before every item finished.
	ErrInterrupted = errors.New("run interrupted")

	// ErrItemsFailed indicates the run finished with failed items.
	ErrItemsFailed = errors.New("some items failed")
)

// Error codes used by the CLI suggestion system.
const (
	errorCodeInvalidItems     = "INVALID_ITEMS"
	errorCodeItemsLoadFailed  = "ITEMS_LOAD_FAILED"
	errorCodeOutputLocked     = "OUTPUT_LOCKED"
	errorCodeOutputFailed     = "OUTPUT_FAILED"
	errorCodeProcessorInit    = "PROCESSOR_INIT_FAILED"
	errorCodeInvalidConfig    = "INVALID_CONFIG"
	errorCodeInterrupted      = "RUN_INTERRUPTED"
	errorCodePartialFailure   = "PARTIAL_FAILURE"
	errorCodeRunFailure       = "RUN_FAILURE"
	errorCodeDuplicateItem    = "DUPLICATE_ITEM"
	errorCodeProcessorUnknown = "UNKNOWN_PROCESSOR"
)

// codedError wraps an error with an explicit error code.
type codedError struct {
	error
	code string
}

func (e *codedError) Error() string {
	return e.error.Error()
}

func (e *codedError) Unwrap() error {
	return e.error
}

func (e *codedError) Code() string {
	return e.code
}

// WithErrorCode wraps err with a specific CLI error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves a run error into a CLI error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrNoItems):
		return errorCodeInvalidItems
	case errors.Is(err, ErrInterrupted):
		return errorCodeInterrupted
	case errors.Is(err, ErrItemsFailed):
		return errorCodePartialFailure
	}

	return errorCodeRunFailure
}

// ExitCode maps run errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInvalidItems,
		errorCodeItemsLoadFailed,
		errorCodeDuplicateItem,
		errorCodeInvalidConfig,
		errorCodeProcessorUnknown:
		return 2
	case errorCodeOutputLocked,
		errorCodeProcessorInit:
		return 7
	case errorCodePartialFailure:
		return 8
	case errorCodeInterrupted:
		return 130
	default:
		return 1
	}
}

// Suggestions provides CLI hints for run errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidItems, errorCodeItemsLoadFailed:
		return []string{
			"Items file is a YAML or JSON list:  - {id: sku-1, payload: {prompt: \"a red teapot\"}}",
			"Read items from stdin:              batchq run -",
		}
	case errorCodeDuplicateItem:
		return []string{
			"Give every item a unique id, or omit ids to have them generated",
		}
	case errorCodeOutputLocked:
		return []string{
			"Another batchq run is writing to this directory",
			"Write elsewhere:                    batchq run items.yaml --output <dir>",
		}
	case errorCodeOutputFailed:
		return []string{
			"Check that the output directory is writable",
		}
	case errorCodeProcessorInit:
		return []string{
			"Set the API key:                    export GEMINI_API_KEY=<key>",
			"Try without a backend:              batchq run items.yaml --processor simulate",
		}
	case errorCodeProcessorUnknown:
		return []string{
			"Valid processors: simulate, gemini",
		}
	case errorCodeInvalidConfig:
		return []string{
			"Check queue and processor values in the config file",
			"Print effective config with:        batchq run --log-level debug",
		}
	case errorCodePartialFailure:
		return []string{
			"Raise the retry ceiling:            batchq run items.yaml --retries 5",
			"Slow down dispatch:                 batchq run items.yaml --delay 500ms",
		}
	case errorCodeInterrupted:
		return []string{
			"Rerun the same file; completed results are kept in the manifest",
		}
	default:
		return []string{
			"Retry with verbose logs:            batchq run items.yaml --log-level debug",
		}
	}
}

// NewItemsLoadError annotates an items file that could not be read or parsed.
func NewItemsLoadError(path string, err error) error {
	return WithErrorCode(fmt.Errorf("load items from %s: %w", path, err), errorCodeItemsLoadFailed)
}

// NewFailedItemsError reports how many items ended failed.
func NewFailedItemsError(failed, total int) error {
	return WithErrorCode(fmt.Errorf("%w: %d of %d", ErrItemsFailed, failed, total), errorCodePartialFailure)
}

// WrapProcessorInit annotates processor construction failures.
func WrapProcessorInit(err error) error {
	return WithErrorCode(err, errorCodeProcessorInit)
}

// NewUnknownProcessorError reports an unsupported processor kind.
func NewUnknownProcessorError(kind string) error {
	return WithErrorCode(fmt.Errorf("unknown processor %q", kind), errorCodeProcessorUnknown)
}

// WrapInvalidConfig annotates configuration validation failures.
func WrapInvalidConfig(err error) error {
	return WithErrorCode(err, errorCodeInvalidConfig)
}
