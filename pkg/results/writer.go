// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package results persists the output of completed items to a directory,
// together with a manifest.yaml the upload stage reads to find them.
package results

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/batchq/pkg/processor"
	"github.com/vulntor/batchq/pkg/queue"
)

// LockFile is created in the output directory while a Writer owns it.
const LockFile = ".batchq.lock"

// ErrLocked is returned when another process is writing to the same directory.
var ErrLocked = errors.New("output directory is locked by another batchq process")

// Manifest lists every result file in a directory.
type Manifest struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	Entries   []Entry   `yaml:"entries"`
}

// Entry describes one result file.
type Entry struct {
	ID          string    `yaml:"id"`
	File        string    `yaml:"file"`
	MIMEType    string    `yaml:"mime_type,omitempty"`
	Prompt      string    `yaml:"prompt,omitempty"`
	Bytes       int       `yaml:"bytes"`
	SHA256      string    `yaml:"sha256"`
	Attempts    int       `yaml:"attempts"`
	CompletedAt time.Time `yaml:"completed_at"`
}

// Writer writes result files and keeps the manifest in memory until Flush.
// It holds an exclusive lock on the directory from Open until Close.
type Writer struct {
	dir          string
	manifestPath string
	lock         *flock.Flock
	logger       zerolog.Logger

	mu      sync.Mutex
	entries []Entry
	index   map[string]int
}

// Open prepares dir for writing. An existing manifest is loaded so a rerun
// adds to, and replaces entries in, the previous output.
func Open(dir, manifestName string, logger zerolog.Logger) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("output directory cannot be empty")
	}
	if manifestName == "" {
		manifestName = "manifest.yaml"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	w := &Writer{
		dir:          dir,
		manifestPath: filepath.Join(dir, manifestName),
		lock:         lock,
		logger:       logger.With().Str("component", "results").Str("dir", dir).Logger(),
		index:        make(map[string]int),
	}
	if err := w.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return w, nil
}

func (w *Writer) load() error {
	data, err := os.ReadFile(w.manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", w.manifestPath, err)
	}
	for _, e := range m.Entries {
		w.putLocked(e)
	}
	w.logger.Debug().Int("entries", len(m.Entries)).Msg("Loaded existing manifest")
	return nil
}

// Write stores the result of a completed item and records it in the manifest.
func (w *Writer) Write(it queue.Item) (Entry, error) {
	if it.Status != queue.StatusCompleted {
		return Entry{}, fmt.Errorf("item %s is %s, not completed", it.ID, it.Status)
	}

	data, ext, mimeType, prompt, err := encode(it.Result)
	if err != nil {
		return Entry{}, fmt.Errorf("encode result of %s: %w", it.ID, err)
	}

	name := FileName(it.ID) + "." + ext
	if err := writeAtomic(filepath.Join(w.dir, name), data); err != nil {
		return Entry{}, err
	}

	sum := sha256.Sum256(data)
	entry := Entry{
		ID:          it.ID,
		File:        name,
		MIMEType:    mimeType,
		Prompt:      prompt,
		Bytes:       len(data),
		SHA256:      hex.EncodeToString(sum[:]),
		Attempts:    it.Attempts,
		CompletedAt: it.FinishedAt,
	}

	w.mu.Lock()
	w.putLocked(entry)
	w.mu.Unlock()

	w.logger.Debug().Str("item_id", it.ID).Str("file", name).Int("bytes", len(data)).Msg("Result written")
	return entry, nil
}

// Handler returns an event handler that writes each completed item as it
// finishes. Write errors are logged; the item keeps its completed status.
func (w *Writer) Handler() func(ctx context.Context, data any) {
	return func(_ context.Context, data any) {
		ev, ok := data.(queue.Event)
		if !ok || ev.Topic != queue.TopicItemCompleted || ev.Item == nil {
			return
		}
		if _, err := w.Write(*ev.Item); err != nil {
			w.logger.Error().Err(err).Str("item_id", ev.Item.ID).Msg("Failed to write result")
		}
	}
}

// Entries returns a copy of the manifest entries in write order.
func (w *Writer) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Entry(nil), w.entries...)
}

// Flush writes the manifest.
func (w *Writer) Flush() error {
	w.mu.Lock()
	m := Manifest{UpdatedAt: time.Now().UTC(), Entries: append([]Entry(nil), w.entries...)}
	w.mu.Unlock()

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeAtomic(w.manifestPath, data); err != nil {
		return err
	}
	w.logger.Info().Int("entries", len(m.Entries)).Str("manifest", w.manifestPath).Msg("Manifest written")
	return nil
}

// Close flushes the manifest and releases the directory lock.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	if err := w.lock.Unlock(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to unlock output directory: %w", err)
	}
	return flushErr
}

func (w *Writer) putLocked(e Entry) {
	if i, ok := w.index[e.ID]; ok {
		w.entries[i] = e
		return
	}
	w.index[e.ID] = len(w.entries)
	w.entries = append(w.entries, e)
}

// encode turns a processor result into file content.
func encode(result any) (data []byte, ext, mimeType, prompt string, err error) {
	switch r := result.(type) {
	case processor.Image:
		return r.Data, r.Extension(), r.MIMEType, r.Prompt, nil
	case *processor.Image:
		if r == nil {
			return nil, "", "", "", errors.New("nil image")
		}
		return r.Data, r.Extension(), r.MIMEType, r.Prompt, nil
	case []byte:
		return r, "bin", "application/octet-stream", "", nil
	case string:
		return []byte(r), "txt", "text/plain", "", nil
	case nil:
		return nil, "", "", "", errors.New("no result")
	default:
		out, err := yaml.Marshal(r)
		if err != nil {
			return nil, "", "", "", err
		}
		return out, "yaml", "application/yaml", "", nil
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName maps an item id to a safe base name. Ids that need escaping get
// a short hash suffix so two ids never share a file.
func FileName(id string) string {
	safe := unsafeChars.ReplaceAllString(id, "_")
	if safe == id && safe != "." && safe != ".." {
		return safe
	}
	sum := sha256.Sum256([]byte(id))
	return safe + "-" + hex.EncodeToString(sum[:4])
}

// writeAtomic writes through a temp file so readers never see partial data.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
