package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/query"
	"github.com/hugh/schoolhub/internal/repository"
)

// ResourceHandler serves the CRUD routes of one entity type.
type ResourceHandler[T any] struct {
	repo repository.Repository[T]
}

func NewResourceHandler[T any](repo repository.Repository[T]) *ResourceHandler[T] {
	return &ResourceHandler[T]{repo: repo}
}

func (h *ResourceHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	entity := new(T)
	if err := decodeJSON(r, entity); err != nil {
		respond.Error(w, r, err)
		return
	}

	created, err := h.repo.Create(r.Context(), entity)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Success(w, http.StatusCreated, created)
}

func (h *ResourceHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, nil)
}

// ListBy lists the entities whose column equals the {param} URL parameter,
// e.g. the students of /classes/{id}/students.
func (h *ResourceHandler[T]) ListBy(param, column string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, param)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		h.list(w, r, repository.Filter{column: id})
	}
}

func (h *ResourceHandler[T]) list(w http.ResponseWriter, r *http.Request, base repository.Filter) {
	features, err := query.Parse(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	items, err := h.repo.List(r.Context(), base, features)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if len(features.Fields) == 0 {
		respond.List(w, items, len(items))
		return
	}

	projected := make([]map[string]json.RawMessage, 0, len(items))
	for i := range items {
		p, err := project(&items[i], features.Fields)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		projected = append(projected, p)
	}
	respond.List(w, projected, len(projected))
}

func (h *ResourceHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	entity, err := h.repo.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Success(w, http.StatusOK, entity)
}

// Update applies a partial update. PUT and PATCH behave the same.
func (h *ResourceHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var patch map[string]json.RawMessage
	if err := decodeJSON(r, &patch); err != nil {
		respond.Error(w, r, err)
		return
	}

	entity, err := h.repo.Update(r.Context(), id, patch)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Success(w, http.StatusOK, entity)
}

func (h *ResourceHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.NoContent(w)
}

// project keeps only the requested JSON fields of v. The id is always kept.
func project(v interface{}, fields []string) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(fields)+1)
	if id, ok := all["id"]; ok {
		out["id"] = id
	}
	for _, f := range fields {
		if val, ok := all[f]; ok {
			out[f] = val
		}
	}
	return out, nil
}

func urlID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid " + param + ": " + raw)
	}
	return id, nil
}

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Request body is empty")
		}
		return apperr.Validation("Invalid request body")
	}
	return nil
}
