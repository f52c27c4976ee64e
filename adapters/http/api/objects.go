package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
)

type revertAttributes struct {
	EntryID string `json:"entryId" validate:"required"`
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badParam(name, name+" must be true or false")
	}
	return b, nil
}

// objectOf loads an object and checks it belongs to the model in the URL.
func (h *Handler) objectOf(ctx context.Context, r *http.Request, includeDeleted bool) (schema.Model, object.DataObject, error) {
	m, err := h.svc.Schema.GetModel(ctx, chi.URLParam(r, "modelID"))
	if err != nil {
		return schema.Model{}, object.DataObject{}, err
	}
	id := chi.URLParam(r, "objectID")
	o, err := h.svc.Objects.Get(ctx, id, includeDeleted)
	if err != nil {
		return schema.Model{}, object.DataObject{}, err
	}
	if o.ModelID != m.ID {
		return schema.Model{}, object.DataObject{}, app.ErrNotFound
	}
	return m, o, nil
}

// ListObjects handles GET /models/{modelID}/objects. Soft-deleted objects
// are included with ?includeDeleted=true.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := boolParam(r, "includeDeleted")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Schema.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	objs, err := h.svc.Objects.List(r.Context(), m.ID, includeDeleted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteCollection(w, objectResources(m, objs), nil)
}

// ListDeletedObjects handles GET /models/{modelID}/objects/deleted.
func (h *Handler) ListDeletedObjects(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Schema.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	objs, err := h.svc.Objects.ListDeleted(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteCollection(w, objectResources(m, objs), nil)
}

// GetObject handles GET /models/{modelID}/objects/{objectID}.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := boolParam(r, "includeDeleted")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, o, err := h.objectOf(r.Context(), r, includeDeleted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, objectResource(o, m.Label(o.Data, o.ID)))
}

// CreateObject handles POST /models/{modelID}/objects.
func (h *Handler) CreateObject(w http.ResponseWriter, r *http.Request) {
	res, err := decodeRecord(r, TypeObject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Schema.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Objects.Create(r.Context(), m.ID, res.Attributes, Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.wrote("create")
	jsonapi.WriteCreated(w, objectResource(o, m.Label(o.Data, o.ID)), location(r, o.ID))
}

// UpdateObject handles PATCH /models/{modelID}/objects/{objectID}.
// Attributes are a partial record. A "state" relationship requests a
// workflow transition; an "owner" relationship reassigns the object.
func (h *Handler) UpdateObject(w http.ResponseWriter, r *http.Request) {
	res, err := decodeRecord(r, TypeObject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := app.UpdateInput{Data: res.Attributes}
	if rel, ok := res.Relationships["state"]; ok {
		in.StateID = relationshipID(rel)
	}
	if rel, ok := res.Relationships["owner"]; ok {
		in.OwnerID = relationshipID(rel)
	}

	m, current, err := h.objectOf(r.Context(), r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Objects.Update(r.Context(), m.ID, current.ID, in, Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.wrote("update")
	jsonapi.WriteResource(w, http.StatusOK, objectResource(o, m.Label(o.Data, o.ID)))
}

func relationshipID(rel jsonapi.Relationship) *string {
	id := ""
	if rel.Data != nil {
		id = rel.Data.ID
	}
	return &id
}

// DeleteObject handles DELETE /models/{modelID}/objects/{objectID}. The
// object moves to the recycle bin; with ?permanent=true an object already
// in the bin is destroyed with its history.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	permanent, err := boolParam(r, "permanent")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, o, err := h.objectOf(r.Context(), r, permanent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if permanent {
		err = h.svc.Objects.HardDelete(r.Context(), o.ID, Actor(r.Context()))
	} else {
		err = h.svc.Objects.SoftDelete(r.Context(), o.ID, Actor(r.Context()))
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if permanent {
		h.wrote("purge")
	} else {
		h.wrote("delete")
	}
	jsonapi.WriteNoContent(w)
}

// RestoreObject handles POST /models/{modelID}/objects/{objectID}/restore.
func (h *Handler) RestoreObject(w http.ResponseWriter, r *http.Request) {
	m, o, err := h.objectOf(r.Context(), r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err = h.svc.Objects.Restore(r.Context(), o.ID, Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.wrote("restore")
	jsonapi.WriteResource(w, http.StatusOK, objectResource(o, m.Label(o.Data, o.ID)))
}

// RevertObject handles POST /models/{modelID}/objects/{objectID}/revert.
func (h *Handler) RevertObject(w http.ResponseWriter, r *http.Request) {
	_, attrs, err := decode[revertAttributes](h, r, TypeRevert)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, o, err := h.objectOf(r.Context(), r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err = h.svc.Objects.Revert(r.Context(), o.ID, attrs.EntryID, Actor(r.Context()))
	if err != nil {
		h.reverted("rejected")
		h.fail(w, r, err)
		return
	}
	h.reverted("applied")
	h.wrote("revert")
	jsonapi.WriteResource(w, http.StatusOK, objectResource(o, m.Label(o.Data, o.ID)))
}

func (h *Handler) reverted(result string) {
	if h.metrics != nil {
		h.metrics.Reverts.WithLabelValues(result).Inc()
	}
}

// ObjectHistory handles GET /models/{modelID}/objects/{objectID}/history.
func (h *Handler) ObjectHistory(w http.ResponseWriter, r *http.Request) {
	_, o, err := h.objectOf(r.Context(), r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.Changelog.History(r.Context(), o.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jsonapi.Resource, len(entries))
	for i, e := range entries {
		out[i] = entryResource(e)
	}
	jsonapi.WriteCollection(w, out, nil)
}
