// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// RunSummary represents the outcome of a batch run
type RunSummary struct {
	Status      string        `json:"status"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Discarded   int           `json:"discarded"`
	Elapsed     time.Duration `json:"elapsed"`
	Manifest    string        `json:"manifest,omitempty"`
	Errors      []ErrorDetail `json:"errors,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Suggestions []string      `json:"-"`
}

// ErrorDetail represents a single failed item
type ErrorDetail struct {
	ItemID   string `json:"item_id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

const (
	maxErrorsToShow = 5 // Maximum errors to display before truncating
)

// PrintRunSummary prints counts, the first failed items and suggestions
// Example output:
//
//	Summary:
//	  ✓ Completed: 48
//	  ✗ Failed:    2
//	  Elapsed:     1m12s
//	  Manifest:    out/manifest.yaml
//
//	Failed items:
//	  - sku-17 (3 attempts): quota exceeded
//
//	💡 Suggestions:
//	  → Raise the retry ceiling:  batchq run items.yaml --retries 5
func (f *formatter) PrintRunSummary(summary RunSummary) error {
	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":    summary.Status == "completed",
			"status":     summary.Status,
			"total":      summary.Total,
			"completed":  summary.Completed,
			"failed":     summary.Failed,
			"discarded":  summary.Discarded,
			"elapsed":    summary.Elapsed.Round(time.Millisecond).String(),
			"manifest":   summary.Manifest,
			"errors":     summary.Errors,
			"error_code": summary.ErrorCode,
		})
	}

	if f.quiet {
		// Quiet mode: only the counts
		_, err := fmt.Fprintf(f.stdout, "%d/%d\n", summary.Completed, summary.Total)
		return err
	}

	paint := func(fn func(string, ...any) string, format string, args ...any) string {
		if f.color {
			return fn(format, args...)
		}
		return fmt.Sprintf(format, args...)
	}

	var sb strings.Builder
	sb.WriteString("\nSummary:\n")
	sb.WriteString(paint(color.GreenString, "  ✓ Completed: %d\n", summary.Completed))
	if summary.Failed > 0 {
		sb.WriteString(paint(color.RedString, "  ✗ Failed:    %d\n", summary.Failed))
	}
	if summary.Discarded > 0 {
		sb.WriteString(paint(color.YellowString, "  ⚠ Discarded: %d\n", summary.Discarded))
	}
	sb.WriteString(fmt.Sprintf("  Elapsed:     %s\n", summary.Elapsed.Round(time.Millisecond)))
	if summary.Manifest != "" {
		sb.WriteString(fmt.Sprintf("  Manifest:    %s\n", summary.Manifest))
	}

	if len(summary.Errors) > 0 {
		sb.WriteString("\nFailed items:\n")
		for i, e := range summary.Errors {
			if i >= maxErrorsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more (use --format json for full list)\n", len(summary.Errors)-maxErrorsToShow))
				break
			}
			sb.WriteString(fmt.Sprintf("  - %s (%s): %s\n", e.ItemID, pluralize(e.Attempts, "attempt"), e.Error))
		}
	}

	writeSuggestions(&sb, summary.Suggestions)

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

// PrintTotalFailureSummary prints total failure with error and suggestions
// Example output:
//
//	✗ Failed to run batch: load items from items.yaml: no such file
//
//	💡 Suggestions:
//	  → Read items from stdin:  batchq run -
func (f *formatter) PrintTotalFailureSummary(operation string, err error, errorCode string, suggestions []string) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":    false,
			"operation":  operation,
			"error":      err.Error(),
			"error_code": errorCode,
		})
	}

	var sb strings.Builder

	errorMsg := fmt.Sprintf("✗ Failed to %s: %v", operation, err)
	if f.color {
		sb.WriteString(color.RedString("%s\n", errorMsg))
	} else {
		sb.WriteString(errorMsg + "\n")
	}

	writeSuggestions(&sb, suggestions)

	_, writeErr := f.stderr.Write([]byte(sb.String()))
	return writeErr
}

func writeSuggestions(sb *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	sb.WriteString("\n💡 Suggestions:\n")
	for _, s := range suggestions {
		sb.WriteString(fmt.Sprintf("  → %s\n", s))
	}
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
