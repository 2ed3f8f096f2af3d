package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/server/api"
)

// AddItemsResponse is returned by POST /api/v1/items.
type AddItemsResponse struct {
	Added int         `json:"added"`
	Stats queue.Stats `json:"stats"`
}

// ListItemsResponse is returned by GET /api/v1/items.
type ListItemsResponse struct {
	Items []queue.Item `json:"items"`
	Total int          `json:"total"` // matching items before limit/offset
}

// AddItemsHandler handles POST /api/v1/items
//
// Request body:
//
//	{"items": [{"id": "sku-1", "payload": {"prompt": "a red teapot"}}]}
//
// The batch is accepted or rejected as a whole: an empty id returns 400,
// an id already queued or in flight returns 409 with the ids in details.
func AddItemsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ParseAddItems(w, r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		if err := deps.Queue.AddItems(req.Items...); err != nil {
			api.WriteError(w, r, err)
			return
		}

		log.Info().
			Str("component", "api").
			Int("count", len(req.Items)).
			Msg("Items added")

		api.WriteJSON(w, http.StatusCreated, AddItemsResponse{
			Added: len(req.Items),
			Stats: deps.Queue.Stats(),
		})
	}
}

// ListItemsHandler handles GET /api/v1/items?status=&limit=&offset=
//
// Items are returned in submission order.
func ListItemsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := ParseListItemsQuery(r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		all := deps.Queue.Items()
		matched := make([]queue.Item, 0, len(all))
		for _, it := range all {
			if query.Status != "" && it.Status != query.Status {
				continue
			}
			matched = append(matched, it)
		}

		page := []queue.Item{}
		if query.Offset < len(matched) {
			end := min(query.Offset+query.Limit, len(matched))
			page = matched[query.Offset:end]
		}

		api.WriteJSON(w, http.StatusOK, ListItemsResponse{Items: page, Total: len(matched)})
	}
}

// GetItemHandler handles GET /api/v1/items/{id}
func GetItemHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			api.WriteError(w, r, &api.ValidationError{Field: "id", Reason: "required"})
			return
		}

		it, err := deps.Queue.Item(id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusOK, it)
	}
}
