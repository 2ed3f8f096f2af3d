package api

import (
	"errors"
	"time"
)

// ErrInvalidTimeout is returned when a timeout value is negative.
var ErrInvalidTimeout = errors.New("invalid timeout: must be >= 0")

// Config holds API-level configuration.
type Config struct {
	// HandlerTimeout bounds each /api/v1 request. Requests that exceed it
	// get 504 Gateway Timeout. Zero disables the limit.
	HandlerTimeout time.Duration
}

// DefaultConfig returns the default API configuration.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 30 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.HandlerTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
