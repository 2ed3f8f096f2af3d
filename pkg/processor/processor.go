// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package processor holds the types shared by the item processors that plug
// into a queue.
package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ErrNoPrompt is returned when a payload carries nothing to generate from.
var ErrNoPrompt = errors.New("payload has no prompt")

// Image is the result produced by image-generating processors.
type Image struct {
	Data     []byte `json:"-" yaml:"-"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Prompt   string `json:"prompt" yaml:"prompt"`
}

// Extension returns the file extension matching MIMEType, without the dot.
func (i Image) Extension() string {
	switch strings.ToLower(i.MIMEType) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return "bin"
	}
}

// Prompt extracts the generation prompt from an item payload. A string
// payload is the prompt itself; a map payload uses its "prompt" key, falling
// back to "name" and "title" so catalog rows can be submitted as-is.
func Prompt(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", ErrNoPrompt
	case string:
		if strings.TrimSpace(p) == "" {
			return "", ErrNoPrompt
		}
		return p, nil
	}

	fields, err := cast.ToStringMapE(payload)
	if err != nil {
		return "", fmt.Errorf("unsupported payload type %T: %w", payload, err)
	}
	for _, key := range []string{"prompt", "name", "title"} {
		if v, ok := fields[key]; ok {
			s, err := cast.ToStringE(v)
			if err != nil {
				return "", fmt.Errorf("payload field %q: %w", key, err)
			}
			if strings.TrimSpace(s) != "" {
				return s, nil
			}
		}
	}
	return "", ErrNoPrompt
}

// Field reads an optional string-keyed field from a map payload.
func Field(payload any, key string) (any, bool) {
	fields, err := cast.ToStringMapE(payload)
	if err != nil {
		return nil, false
	}
	v, ok := fields[key]
	return v, ok
}
