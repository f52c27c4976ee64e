package api

import (
	"net/http"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
)

type stateAttributes struct {
	ID            string   `json:"id"`
	Name          string   `json:"name" validate:"required,max=64"`
	IsInitial     bool     `json:"isInitial"`
	TransitionsTo []string `json:"transitionsTo"`
}

type workflowAttributes struct {
	Name        string            `json:"name" validate:"required,max=128"`
	Description string            `json:"description"`
	States      []stateAttributes `json:"states" validate:"required,min=1,dive"`
}

func (a workflowAttributes) input(id string) app.WorkflowInput {
	states := make([]app.StateInput, len(a.States))
	for i, s := range a.States {
		states[i] = app.StateInput{ID: s.ID, Name: s.Name, IsInitial: s.IsInitial, TransitionsTo: s.TransitionsTo}
	}
	return app.WorkflowInput{ID: id, Name: a.Name, Description: a.Description, States: states}
}

// ListWorkflows handles GET /workflows.
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.svc.Workflows.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jsonapi.Resource, len(workflows))
	for i, wf := range workflows {
		out[i] = workflowResource(wf)
	}
	jsonapi.WriteCollection(w, out, nil)
}

// GetWorkflow handles GET /workflows/{workflowID}.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.svc.Workflows.Get(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, workflowResource(wf))
}

// CreateWorkflow handles POST /workflows.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	h.saveWorkflow(w, r, "")
}

// ReplaceWorkflow handles PUT /workflows/{workflowID}. Objects whose state
// is dropped move to the initial state.
func (h *Handler) ReplaceWorkflow(w http.ResponseWriter, r *http.Request) {
	h.saveWorkflow(w, r, chi.URLParam(r, "workflowID"))
}

func (h *Handler) saveWorkflow(w http.ResponseWriter, r *http.Request, id string) {
	_, attrs, err := decode[workflowAttributes](h, r, TypeWorkflow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	wf, err := h.svc.Workflows.Upsert(r.Context(), attrs.input(id), Actor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if id == "" {
		jsonapi.WriteCreated(w, workflowResource(wf), location(r, wf.ID))
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, workflowResource(wf))
}

// DeleteWorkflow handles DELETE /workflows/{workflowID}.
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Workflows.Delete(r.Context(), chi.URLParam(r, "workflowID"), Actor(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	jsonapi.WriteNoContent(w)
}
