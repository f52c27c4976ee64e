package api

import (
	"net/http"
	"strconv"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
)

type propertyAttributes struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name" validate:"required,max=64"`
	Type                string   `json:"type" validate:"required,oneof=string number boolean date datetime time markdown image rating relationship"`
	Required            bool     `json:"required"`
	IsUnique            bool     `json:"isUnique"`
	MinValue            *float64 `json:"minValue,omitempty"`
	MaxValue            *float64 `json:"maxValue,omitempty"`
	Precision           *int     `json:"precision,omitempty" validate:"omitempty,gte=0,lte=10"`
	Unit                string   `json:"unit,omitempty" validate:"max=32"`
	RelationshipType    string   `json:"relationshipType,omitempty" validate:"omitempty,oneof=one many"`
	RelatedModelID      string   `json:"relatedModelId,omitempty"`
	AutoSetOnCreate     bool     `json:"autoSetOnCreate"`
	AutoSetOnUpdate     bool     `json:"autoSetOnUpdate"`
	DefaultValue        any      `json:"defaultValue,omitempty"`
	ValidationRulesetID string   `json:"validationRulesetId,omitempty"`
}

func (p propertyAttributes) property() schema.Property {
	return schema.Property{
		ID:                  p.ID,
		Name:                p.Name,
		Type:                schema.PropertyType(p.Type),
		Required:            p.Required,
		IsUnique:            p.IsUnique,
		MinValue:            p.MinValue,
		MaxValue:            p.MaxValue,
		Precision:           p.Precision,
		Unit:                p.Unit,
		RelationshipType:    schema.RelationshipType(p.RelationshipType),
		RelatedModelID:      p.RelatedModelID,
		AutoSetOnCreate:     p.AutoSetOnCreate,
		AutoSetOnUpdate:     p.AutoSetOnUpdate,
		DefaultValue:        p.DefaultValue,
		ValidationRulesetID: p.ValidationRulesetID,
	}
}

func propertyFrom(p schema.Property) propertyAttributes {
	return propertyAttributes{
		ID:                  p.ID,
		Name:                p.Name,
		Type:                string(p.Type),
		Required:            p.Required,
		IsUnique:            p.IsUnique,
		MinValue:            p.MinValue,
		MaxValue:            p.MaxValue,
		Precision:           p.Precision,
		Unit:                p.Unit,
		RelationshipType:    string(p.RelationshipType),
		RelatedModelID:      p.RelatedModelID,
		AutoSetOnCreate:     p.AutoSetOnCreate,
		AutoSetOnUpdate:     p.AutoSetOnUpdate,
		DefaultValue:        p.DefaultValue,
		ValidationRulesetID: p.ValidationRulesetID,
	}
}

type modelAttributes struct {
	Name                 string               `json:"name" validate:"required,max=128"`
	Description          string               `json:"description"`
	DisplayPropertyNames []string             `json:"displayPropertyNames"`
	GroupID              string               `json:"groupId"`
	WorkflowID           string               `json:"workflowId"`
	Properties           []propertyAttributes `json:"properties" validate:"dive"`
}

func (a modelAttributes) input(id string) app.ModelInput {
	props := make([]schema.Property, len(a.Properties))
	for i, p := range a.Properties {
		props[i] = p.property()
	}
	return app.ModelInput{
		ID:                   id,
		Name:                 a.Name,
		Description:          a.Description,
		DisplayPropertyNames: a.DisplayPropertyNames,
		GroupID:              a.GroupID,
		WorkflowID:           a.WorkflowID,
		Properties:           props,
	}
}

// ListModels handles GET /models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.Schema.ListModels(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jsonapi.Resource, len(models))
	for i, m := range models {
		out[i] = modelResource(m)
	}
	jsonapi.WriteCollection(w, out, nil)
}

// GetModel handles GET /models/{modelID}.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Schema.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, modelResource(m))
}

// CreateModel handles POST /models.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	_, attrs, err := decode[modelAttributes](h, r, TypeModel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Schema.UpsertModel(r.Context(), attrs.input(""), Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteCreated(w, modelResource(m), location(r, m.ID))
}

// ReplaceModel handles PUT /models/{modelID}. The property list replaces
// the stored one; properties keep their identity through their id.
func (h *Handler) ReplaceModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")
	id, attrs, err := decode[modelAttributes](h, r, TypeModel)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if id != "" && id != modelID {
		h.fail(w, r, malformed("resource id does not match the URL"))
		return
	}
	m, err := h.svc.Schema.UpsertModel(r.Context(), attrs.input(modelID), Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, modelResource(m))
}

// DeleteModel handles DELETE /models/{modelID}. Models that still hold
// records need ?force=true, which destroys the records and their history.
func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		var err error
		if force, err = strconv.ParseBool(v); err != nil {
			h.fail(w, r, badParam("force", "force must be true or false"))
			return
		}
	}
	if err := h.svc.Schema.DeleteModel(r.Context(), chi.URLParam(r, "modelID"), force, Actor(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteNoContent(w)
}

type rulesetAttributes struct {
	Name         string `json:"name" validate:"required,max=128"`
	RegexPattern string `json:"regexPattern" validate:"required,max=1024"`
	Description  string `json:"description"`
}

// ListRulesets handles GET /rulesets.
func (h *Handler) ListRulesets(w http.ResponseWriter, r *http.Request) {
	rulesets, err := h.svc.Schema.ListRulesets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jsonapi.Resource, len(rulesets))
	for i, rs := range rulesets {
		out[i] = rulesetResource(rs)
	}
	jsonapi.WriteCollection(w, out, nil)
}

// GetRuleset handles GET /rulesets/{rulesetID}.
func (h *Handler) GetRuleset(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Schema.GetRuleset(r.Context(), chi.URLParam(r, "rulesetID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, rulesetResource(rs))
}

// CreateRuleset handles POST /rulesets.
func (h *Handler) CreateRuleset(w http.ResponseWriter, r *http.Request) {
	h.saveRuleset(w, r, "")
}

// ReplaceRuleset handles PUT /rulesets/{rulesetID}.
func (h *Handler) ReplaceRuleset(w http.ResponseWriter, r *http.Request) {
	h.saveRuleset(w, r, chi.URLParam(r, "rulesetID"))
}

func (h *Handler) saveRuleset(w http.ResponseWriter, r *http.Request, id string) {
	_, attrs, err := decode[rulesetAttributes](h, r, TypeRuleset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rs, err := h.svc.Schema.UpsertRuleset(r.Context(), schema.ValidationRuleset{
		ID:           id,
		Name:         attrs.Name,
		RegexPattern: attrs.RegexPattern,
		Description:  attrs.Description,
	}, Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if id == "" {
		jsonapi.WriteCreated(w, rulesetResource(rs), location(r, rs.ID))
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, rulesetResource(rs))
}

// DeleteRuleset handles DELETE /rulesets/{rulesetID}.
func (h *Handler) DeleteRuleset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Schema.DeleteRuleset(r.Context(), chi.URLParam(r, "rulesetID"), Actor(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteNoContent(w)
}
