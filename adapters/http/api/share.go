package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type shareLinkAttributes struct {
	LinkType        string     `json:"linkType" validate:"required,oneof=view create update"`
	DataObjectID    string     `json:"dataObjectId" validate:"required_if=LinkType view,required_if=LinkType update,excluded_if=LinkType create"`
	ExpiresAt       *time.Time `json:"expiresAt"`
	ExpiresOnSubmit bool       `json:"expiresOnSubmit"`
}

// ListShareLinks handles GET /models/{modelID}/share-links.
func (h *Handler) ListShareLinks(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Schema.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	links, err := h.svc.Shares.ListLinks(r.Context(), m.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jsonapi.Resource, len(links))
	for i, l := range links {
		out[i] = h.linkResource(l)
	}
	jsonapi.WriteCollection(w, out, nil)
}

// CreateShareLink handles POST /models/{modelID}/share-links.
func (h *Handler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	_, attrs, err := decode[shareLinkAttributes](h, r, TypeShareLink)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := app.LinkInput{
		ModelID:         chi.URLParam(r, "modelID"),
		DataObjectID:    attrs.DataObjectID,
		Type:            share.LinkType(attrs.LinkType),
		ExpiresOnSubmit: attrs.ExpiresOnSubmit,
	}
	if attrs.ExpiresAt != nil {
		t := attrs.ExpiresAt.UTC()
		in.ExpiresAt = &t
	}
	l, err := h.svc.Shares.CreateLink(r.Context(), in, Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteCreated(w, h.linkResource(l), "")
}

// DeleteShareLink handles DELETE /share-links/{token}.
func (h *Handler) DeleteShareLink(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Shares.DeleteLink(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteNoContent(w)
}

// ResolveShare handles GET /share/{token}. It returns the model definition
// the holder fills in and, for view and update links, the current record.
func (h *Handler) ResolveShare(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Shares.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.shareFailed(w, r, err)
		return
	}

	props := make([]propertyAttributes, len(res.Model.Properties))
	for i, p := range res.Model.Properties {
		props[i] = propertyFrom(p)
	}
	b := jsonapi.NewResource(TypeShare, res.Link.ID).
		Attr("linkType", string(res.Link.Type)).
		Attr("expiresAt", optionalTime(res.Link.ExpiresAt)).
		Attr("model", map[string]any{
			"name":        res.Model.Name,
			"description": res.Model.Description,
			"properties":  props,
		})
	if res.Object != nil {
		b.Attr("record", res.Object.Data).
			Meta("label", res.Model.Label(res.Object.Data, ""))
	}
	jsonapi.WriteResource(w, http.StatusOK, b.Build())
}

// SubmitShare handles POST /share/{token}. Field problems are reported so
// the holder can correct the submission; every other failure is the same
// 404 so the caller cannot tell a missing link from an expired one.
func (h *Handler) SubmitShare(w http.ResponseWriter, r *http.Request) {
	res, err := decodeRecord(r, TypeObject)
	if err != nil {
		h.submitted("invalid")
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Shares.Submit(r.Context(), chi.URLParam(r, "token"), res.Attributes)
	if err != nil {
		var (
			ve *app.ValidationError
			ue *app.UniqueViolationError
		)
		switch {
		case errors.As(err, &ve):
			h.submitted("invalid")
			jsonapi.WriteError(w, fieldErrors(ve)...)
			return
		case errors.As(err, &ue):
			h.submitted("invalid")
			jsonapi.WriteError(w, jsonapi.ErrValidation(ue.Field, "This value is already taken", nil))
			return
		}
		h.submitted("refused")
		h.shareFailed(w, r, err)
		return
	}

	h.submitted("accepted")
	h.wrote("share")
	jsonapi.WriteResource(w, http.StatusOK, jsonapi.NewResource(TypeObject, o.ID).Attrs(o.Data).Build())
}

// shareFailed hides the cause of a share failure from the anonymous caller.
func (h *Handler) shareFailed(w http.ResponseWriter, r *http.Request, err error) {
	var pe *app.PersistenceError
	ev := h.logger.Debug()
	if errors.As(err, &pe) {
		ev = h.logger.Error()
	}
	ev.Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("share link request refused")
	jsonapi.WriteError(w, jsonapi.ErrNotFound("share link"))
}

func (h *Handler) submitted(result string) {
	if h.metrics != nil {
		h.metrics.ShareSubmissions.WithLabelValues(result).Inc()
	}
}
