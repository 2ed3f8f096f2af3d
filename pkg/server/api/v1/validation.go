package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/server/api"
)

var validate = validator.New()

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 8 << 20

// ListItemsQuery represents supported query params for GET /api/v1/items
type ListItemsQuery struct {
	Status queue.Status
	Limit  int
	Offset int
}

// ParseListItemsQuery parses and validates query params.
// Returns validated query with sane defaults (Limit=100) when omitted.
func ParseListItemsQuery(r *http.Request) (*ListItemsQuery, error) {
	q := r.URL.Query()
	var res ListItemsQuery

	if v := strings.TrimSpace(q.Get("status")); v != "" {
		if err := validate.Var(v, "oneof=queued processing retrying completed failed"); err != nil {
			return nil, &api.ValidationError{Field: "status", Reason: "must be one of: queued,processing,retrying,completed,failed"}
		}
		res.Status = queue.Status(v)
	}

	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &api.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		if err := validate.Var(n, "min=1,max=1000"); err != nil {
			return nil, &api.ValidationError{Field: "limit", Reason: "must be between 1 and 1000"}
		}
		res.Limit = n
	}

	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &api.ValidationError{Field: "offset", Reason: "must be an integer"}
		}
		if err := validate.Var(n, "min=0"); err != nil {
			return nil, &api.ValidationError{Field: "offset", Reason: "must be >= 0"}
		}
		res.Offset = n
	}

	if res.Limit == 0 {
		res.Limit = 100
	}

	return &res, nil
}

// AddItemsRequest is the body of POST /api/v1/items.
type AddItemsRequest struct {
	Items []queue.Input `json:"items" validate:"required,min=1"`
}

// ParseAddItems decodes and validates an AddItemsRequest.
func ParseAddItems(w http.ResponseWriter, r *http.Request) (*AddItemsRequest, error) {
	var req AddItemsRequest
	if err := decodeBody(w, r, &req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, &api.ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	return &req, nil
}

// ConfigPatchRequest is the body of PATCH /api/v1/queue/config.
// dispatch_delay accepts a duration string ("250ms") or a number of
// milliseconds.
type ConfigPatchRequest struct {
	Concurrency   *int `json:"concurrency,omitempty"`
	DispatchDelay any  `json:"dispatch_delay,omitempty"`
	MaxRetries    *int `json:"max_retries,omitempty"`
	ETAWindow     *int `json:"eta_window,omitempty"`
}

// ParseConfigPatch decodes the request body into a queue.ConfigPatch.
// Range checks are left to the queue, which reports every bad field.
func ParseConfigPatch(w http.ResponseWriter, r *http.Request) (queue.ConfigPatch, error) {
	var req ConfigPatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		return queue.ConfigPatch{}, err
	}

	patch := queue.ConfigPatch{
		Concurrency: req.Concurrency,
		MaxRetries:  req.MaxRetries,
		ETAWindow:   req.ETAWindow,
	}
	if req.DispatchDelay != nil {
		d, err := parseDelay(req.DispatchDelay)
		if err != nil {
			return queue.ConfigPatch{}, &api.ValidationError{Field: "dispatch_delay", Reason: err.Error()}
		}
		patch.DispatchDelay = &d
	}
	if patch.IsEmpty() {
		return queue.ConfigPatch{}, &api.ValidationError{Field: "body", Reason: "no configuration fields to update"}
	}
	return patch, nil
}

func parseDelay(v any) (time.Duration, error) {
	switch d := v.(type) {
	case float64:
		return time.Duration(d * float64(time.Millisecond)), nil
	case string:
		parsed, err := cast.ToDurationE(d)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", d)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("must be a duration string or milliseconds, got %T", v)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &api.ValidationError{Field: "body", Reason: "required"}
		}
		return &api.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
