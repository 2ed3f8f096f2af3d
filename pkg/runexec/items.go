package runexec

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/batchq/pkg/queue"
)

// LoadItemsFile reads items from path, or from stdin when path is "-".
func LoadItemsFile(path string) ([]queue.Input, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, NewItemsLoadError(path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	items, err := LoadItems(r)
	if err != nil {
		if errors.Is(err, ErrNoItems) {
			return nil, err
		}
		return nil, NewItemsLoadError(path, err)
	}
	return items, nil
}

// LoadItems parses a YAML or JSON list of items. The list may also sit
// under a top-level "items" key. Each entry is one of:
//
//	- id: sku-1               # explicit id and payload
//	  payload: {prompt: "a red teapot"}
//	- prompt: "a blue vase"   # mapping without payload: the mapping is the payload
//	- "a green lamp"          # scalar: the value is the payload
//
// Entries without an id get a random UUID.
func LoadItems(r io.Reader) ([]queue.Input, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoItems
		}
		return nil, err
	}

	if m, ok := doc.(map[string]any); ok {
		inner, found := m["items"]
		if !found {
			return nil, errors.New(`expected a list of items or an "items" key`)
		}
		doc = inner
	}

	list, ok := doc.([]any)
	if !ok {
		if doc == nil {
			return nil, ErrNoItems
		}
		return nil, fmt.Errorf("expected a list of items, got %T", doc)
	}
	if len(list) == 0 {
		return nil, ErrNoItems
	}

	items := make([]queue.Input, 0, len(list))
	for i, entry := range list {
		in, err := toInput(entry)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, in)
	}
	return items, nil
}

func toInput(entry any) (queue.Input, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		if entry == nil {
			return queue.Input{}, errors.New("empty entry")
		}
		return queue.Input{ID: uuid.NewString(), Payload: entry}, nil
	}

	in := queue.Input{}
	if raw, found := m["id"]; found {
		id, err := cast.ToStringE(raw)
		if err != nil || id == "" {
			return queue.Input{}, fmt.Errorf("invalid id %v", raw)
		}
		in.ID = id
	} else {
		in.ID = uuid.NewString()
	}

	if payload, found := m["payload"]; found {
		in.Payload = payload
		return in, nil
	}

	rest := make(map[string]any, len(m))
	for k, v := range m {
		if k != "id" {
			rest[k] = v
		}
	}
	in.Payload = rest
	return in, nil
}
