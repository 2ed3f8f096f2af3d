// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package queue

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config controls scheduling. It is read by the dispatcher at every
// scheduling decision; changes never interrupt an in-flight attempt.
type Config struct {
	// Concurrency is the maximum number of attempts in flight at once.
	Concurrency int `json:"concurrency" validate:"min=1"`

	// DispatchDelay is the minimum time between two consecutive dispatch
	// starts, across all workers. Zero disables the throttle.
	DispatchDelay time.Duration `json:"dispatch_delay" validate:"min=0"`

	// MaxRetries is the number of additional attempts after the first
	// failure before an item is marked failed.
	MaxRetries int `json:"max_retries" validate:"min=0"`

	// ETAWindow is how many recent completions feed the ETA moving average.
	ETAWindow int `json:"eta_window" validate:"min=2"`
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:   2,
		DispatchDelay: 0,
		MaxRetries:    2,
		ETAWindow:     5,
	}
}

// Validate checks every field and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Fields: []FieldError{{Field: "config", Rule: err.Error()}}}
	}

	cfgErr := &ConfigError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		cfgErr.Fields = append(cfgErr.Fields, FieldError{
			Field: fe.Field(),
			Rule:  rule,
			Value: fe.Value(),
		})
	}
	return cfgErr
}

// ConfigPatch is a partial Config update. Nil fields are left unchanged.
type ConfigPatch struct {
	Concurrency   *int           `json:"concurrency,omitempty"`
	DispatchDelay *time.Duration `json:"dispatch_delay,omitempty"`
	MaxRetries    *int           `json:"max_retries,omitempty"`
	ETAWindow     *int           `json:"eta_window,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ConfigPatch) IsEmpty() bool {
	return p.Concurrency == nil && p.DispatchDelay == nil && p.MaxRetries == nil && p.ETAWindow == nil
}

// Apply merges the patch onto a copy of base and validates the result.
// base is never modified; on error the returned Config is base unchanged.
func (p ConfigPatch) Apply(base Config) (Config, error) {
	next := base
	if p.Concurrency != nil {
		next.Concurrency = *p.Concurrency
	}
	if p.DispatchDelay != nil {
		next.DispatchDelay = *p.DispatchDelay
	}
	if p.MaxRetries != nil {
		next.MaxRetries = *p.MaxRetries
	}
	if p.ETAWindow != nil {
		next.ETAWindow = *p.ETAWindow
	}
	if err := next.Validate(); err != nil {
		return base, err
	}
	return next, nil
}

// PatchFrom builds a patch that sets every field of cfg.
func PatchFrom(cfg Config) ConfigPatch {
	return ConfigPatch{
		Concurrency:   &cfg.Concurrency,
		DispatchDelay: &cfg.DispatchDelay,
		MaxRetries:    &cfg.MaxRetries,
		ETAWindow:     &cfg.ETAWindow,
	}
}
