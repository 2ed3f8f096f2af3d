// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by control operations.
var (
	// ErrInvalidConfig is returned when a configuration or patch fails validation.
	ErrInvalidConfig = errors.New("invalid queue configuration")

	// ErrInvalidItem is returned when a submitted item is malformed (e.g. empty id).
	ErrInvalidItem = errors.New("invalid item")

	// ErrDuplicateItem is returned when an id is already queued or in flight.
	ErrDuplicateItem = errors.New("duplicate item")

	// ErrQueueBusy is returned by operations that require an idle queue.
	ErrQueueBusy = errors.New("queue is busy")

	// ErrClosed is returned when using a queue after Close.
	ErrClosed = errors.New("queue is closed")

	// ErrNotFound is returned when an item id is unknown.
	ErrNotFound = errors.New("item not found")

	// ErrNilProcessor is returned by New when no processor is supplied.
	ErrNilProcessor = errors.New("processor cannot be nil")

	// ErrInvalidTransition marks an attempt to move an item between two
	// states the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ConfigError describes which configuration fields were rejected.
type ConfigError struct {
	Fields []FieldError
}

// FieldError is a single rejected configuration field.
type FieldError struct {
	Field string // Config field name, e.g. "Concurrency"
	Rule  string // Violated rule, e.g. "min=1"
	Value any    // Rejected value
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalidConfig.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s must satisfy %s (got %v)", f.Field, f.Rule, f.Value))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(parts, "; "))
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Is checks if the error matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// DuplicateItemError wraps ErrDuplicateItem with the offending ids.
type DuplicateItemError struct {
	IDs []string
}

// Error implements the error interface.
func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateItem, strings.Join(e.IDs, ", "))
}

// Unwrap returns the underlying error.
func (e *DuplicateItemError) Unwrap() error {
	return ErrDuplicateItem
}

// Is checks if the error matches ErrDuplicateItem.
func (e *DuplicateItemError) Is(target error) bool {
	return target == ErrDuplicateItem
}

// IsDuplicate reports whether err is or wraps ErrDuplicateItem.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateItem)
}

// IsInvalidConfig reports whether err is or wraps ErrInvalidConfig.
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
