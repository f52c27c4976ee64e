package app

import (
	"context"
	"errors"
	"strings"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// WorkflowService manages workflow definitions and cascades state-set
// changes to the objects of every model using them.
type WorkflowService struct {
	store   ports.Store
	objects *ObjectService
	ids     ports.IDGenerator
	clock   ports.Clock
	logger  zerolog.Logger
}

// NewWorkflowService creates a new workflow service.
func NewWorkflowService(store ports.Store, objects *ObjectService, ids ports.IDGenerator, clock ports.Clock, logger zerolog.Logger) *WorkflowService {
	return &WorkflowService{
		store:   store,
		objects: objects,
		ids:     ids,
		clock:   clock,
		logger:  logger.With().Str("service", "workflow").Logger(),
	}
}

// StateInput describes one state. ID keeps an existing state; leave it
// empty for a new one. TransitionsTo names target states by id or name.
type StateInput struct {
	ID            string
	Name          string
	IsInitial     bool
	TransitionsTo []string
}

// WorkflowInput is a full workflow definition. Empty ID creates.
type WorkflowInput struct {
	ID          string
	Name        string
	Description string
	States      []StateInput
}

// Get returns a workflow.
func (s *WorkflowService) Get(ctx context.Context, id string) (workflow.Workflow, error) {
	w, err := s.store.Workflows().Get(ctx, id)
	if err != nil {
		return workflow.Workflow{}, classify("get workflow", lookup("workflow", id, err))
	}
	return w, nil
}

// List returns all workflows.
func (s *WorkflowService) List(ctx context.Context) ([]workflow.Workflow, error) {
	ws, err := s.store.Workflows().List(ctx)
	return ws, classify("list workflows", err)
}

// Upsert creates or replaces a workflow with its states and transitions.
// Objects whose state disappeared are moved to the initial state.
func (s *WorkflowService) Upsert(ctx context.Context, in WorkflowInput, actor string) (workflow.Workflow, error) {
	var out workflow.Workflow
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		w, err := s.upsert(ctx, tx, in, actor)
		out = w
		return err
	})
	if err != nil {
		return workflow.Workflow{}, classify("upsert workflow", err)
	}
	return out, nil
}

func (s *WorkflowService) upsert(ctx context.Context, tx ports.Repos, in WorkflowInput, actor string) (workflow.Workflow, error) {
	now := s.clock.Now().UTC()

	var prev *workflow.Workflow
	if in.ID != "" {
		w, err := tx.Workflows().Get(ctx, in.ID)
		if err != nil {
			return workflow.Workflow{}, lookup("workflow", in.ID, err)
		}
		prev = &w
	}

	name := strings.TrimSpace(in.Name)
	if other, err := tx.Workflows().GetByName(ctx, name); err == nil && (prev == nil || other.ID != prev.ID) {
		return workflow.Workflow{}, ErrNameTaken
	} else if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return workflow.Workflow{}, err
	}

	w := workflow.Workflow{
		ID:          in.ID,
		Name:        name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev == nil {
		w.ID = s.ids.New()
	} else {
		w.CreatedAt = prev.CreatedAt
	}

	if err := s.buildStates(&w, prev, in.States); err != nil {
		return workflow.Workflow{}, err
	}
	if r := workflow.Check(w); !r.Valid {
		return workflow.Workflow{}, checkErrors(r.Errors, "")
	}

	if err := tx.Workflows().Save(ctx, w); err != nil {
		return workflow.Workflow{}, err
	}

	moved := 0
	if prev != nil {
		models, err := tx.Models().ListByWorkflow(ctx, w.ID)
		if err != nil {
			return workflow.Workflow{}, err
		}
		for _, m := range models {
			n, err := s.objects.recomputeStates(ctx, tx, m, &w, actor)
			if err != nil {
				return workflow.Workflow{}, err
			}
			moved += n
		}
	}

	entry := changelog.StructuralEntry{
		ID:         s.ids.New(),
		EntityType: changelog.EntityWorkflow,
		EntityID:   w.ID,
		ChangeType: changelog.ChangeCreate,
		Changes:    workflowChanges(prev, w),
		ChangedBy:  actor,
		ChangedAt:  now,
	}
	if prev != nil {
		entry.ChangeType = changelog.ChangeUpdate
	}
	if err := tx.Structural().Append(ctx, entry); err != nil {
		return workflow.Workflow{}, err
	}

	if moved > 0 {
		s.logger.Info().Str("workflow_id", w.ID).Int("objects", moved).Msg("object states recomputed")
	}
	return w, nil
}

// buildStates assigns ids to new states and resolves transition targets.
// A supplied state id must belong to the previous version of w.
func (s *WorkflowService) buildStates(w *workflow.Workflow, prev *workflow.Workflow, states []StateInput) error {
	byName := make(map[string]string, len(states))
	seen := make(map[string]bool, len(states))
	var ve ValidationError
	for i, in := range states {
		id := in.ID
		switch {
		case id == "":
			id = s.ids.New()
		case prev == nil || !prev.HasState(id):
			ve.Fields = append(ve.Fields, FieldError{Field: "states." + in.Name + ".id", Message: "state does not belong to this workflow", RejectedValue: id})
		case seen[id]:
			ve.Fields = append(ve.Fields, FieldError{Field: "states." + in.Name + ".id", Message: "state id used twice", RejectedValue: id})
		}
		seen[id] = true
		w.States = append(w.States, workflow.State{
			ID:         id,
			WorkflowID: w.ID,
			Name:       strings.TrimSpace(in.Name),
			IsInitial:  in.IsInitial,
			OrderIndex: i,
		})
		byName[strings.TrimSpace(in.Name)] = id
	}
	if len(ve.Fields) > 0 {
		return &ve
	}

	for i, in := range states {
		from := w.States[i].ID
		for _, ref := range in.TransitionsTo {
			to := ref
			if !w.HasState(ref) {
				id, ok := byName[ref]
				if !ok {
					return &ValidationError{Fields: []FieldError{{Field: "states." + in.Name + ".transitionsTo", Message: "unknown target state", RejectedValue: ref}}}
				}
				to = id
			}
			w.Transitions = append(w.Transitions, workflow.Transition{FromStateID: from, ToStateID: to})
		}
	}
	return nil
}

// Delete removes a workflow, detaching it from every model and clearing
// the state of their objects.
func (s *WorkflowService) Delete(ctx context.Context, id, actor string) error {
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		w, err := tx.Workflows().Get(ctx, id)
		if err != nil {
			return lookup("workflow", id, err)
		}
		models, err := tx.Models().ListByWorkflow(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		for _, m := range models {
			m.WorkflowID = ""
			m.UpdatedAt = now
			if err := tx.Models().Save(ctx, m); err != nil {
				return err
			}
			if _, err := s.objects.recomputeStates(ctx, tx, m, nil, actor); err != nil {
				return err
			}
		}
		if err := tx.Workflows().Delete(ctx, id); err != nil {
			return err
		}
		return tx.Structural().Append(ctx, changelog.StructuralEntry{
			ID:         s.ids.New(),
			EntityType: changelog.EntityWorkflow,
			EntityID:   id,
			ChangeType: changelog.ChangeDelete,
			Changes:    []changelog.FieldChange{{Property: "name", Old: w.Name}},
			ChangedBy:  actor,
			ChangedAt:  now,
		})
	})
	return classify("delete workflow", err)
}

func workflowChanges(prev *workflow.Workflow, w workflow.Workflow) []changelog.FieldChange {
	if prev == nil {
		return []changelog.FieldChange{
			{Property: "name", New: w.Name},
			{Property: "states", New: stateNames(w)},
		}
	}
	var changes []changelog.FieldChange
	if prev.Name != w.Name {
		changes = append(changes, changelog.FieldChange{Property: "name", Old: prev.Name, New: w.Name})
	}
	if prev.Description != w.Description {
		changes = append(changes, changelog.FieldChange{Property: "description", Old: prev.Description, New: w.Description})
	}
	before, after := stateNames(*prev), stateNames(w)
	if strings.Join(before, "\x00") != strings.Join(after, "\x00") {
		changes = append(changes, changelog.FieldChange{Property: "states", Old: before, New: after})
	}
	if len(prev.Transitions) != len(w.Transitions) || !sameTransitions(*prev, w) {
		changes = append(changes, changelog.FieldChange{Property: "transitions", Old: len(prev.Transitions), New: len(w.Transitions)})
	}
	return changes
}

func stateNames(w workflow.Workflow) []string {
	names := make([]string, len(w.States))
	for i, st := range w.States {
		names[i] = st.Name
	}
	return names
}

func sameTransitions(a, b workflow.Workflow) bool {
	for _, t := range a.Transitions {
		if !b.CanTransition(t.FromStateID, t.ToStateID) {
			return false
		}
	}
	return true
}
