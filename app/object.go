// Package app provides application services that orchestrate domain logic.
// Every mutation runs inside one ports.Store transaction spanning the
// schema lookups, validation, the record write and its changelog entry.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// ObjectService manages data objects: validated writes, the recycle bin
// and revert.
type ObjectService struct {
	store     ports.Store
	validator *Validator
	ids       ports.IDGenerator
	clock     ports.Clock
	logger    zerolog.Logger
}

// NewObjectService creates a new object service.
func NewObjectService(store ports.Store, validator *Validator, ids ports.IDGenerator, clock ports.Clock, logger zerolog.Logger) *ObjectService {
	return &ObjectService{
		store:     store,
		validator: validator,
		ids:       ids,
		clock:     clock,
		logger:    logger.With().Str("service", "object").Logger(),
	}
}

// UpdateInput is a partial update. Nil pointers leave the field alone.
type UpdateInput struct {
	Data    map[string]any
	StateID *string
	OwnerID *string
}

// Get returns an object. Soft-deleted objects are NotFound unless
// includeDeleted is set.
func (s *ObjectService) Get(ctx context.Context, id string, includeDeleted bool) (object.DataObject, error) {
	o, err := s.store.Objects().Get(ctx, id)
	if err != nil {
		return object.DataObject{}, classify("get object", lookup("object", id, err))
	}
	if o.IsDeleted && !includeDeleted {
		return object.DataObject{}, notFound("object", id)
	}
	return o, nil
}

// List returns the objects of a model.
func (s *ObjectService) List(ctx context.Context, modelID string, includeDeleted bool) ([]object.DataObject, error) {
	if _, err := s.store.Models().Get(ctx, modelID); err != nil {
		return nil, classify("list objects", lookup("model", modelID, err))
	}
	objs, err := s.store.Objects().List(ctx, modelID, includeDeleted)
	return objs, classify("list objects", err)
}

// ListDeleted returns the recycle bin of a model.
func (s *ObjectService) ListDeleted(ctx context.Context, modelID string) ([]object.DataObject, error) {
	all, err := s.List(ctx, modelID, true)
	if err != nil {
		return nil, err
	}
	deleted := all[:0]
	for _, o := range all {
		if o.IsDeleted {
			deleted = append(deleted, o)
		}
	}
	return deleted, nil
}

// Create validates record and stores a new object of the model.
func (s *ObjectService) Create(ctx context.Context, modelID string, record map[string]any, actor string) (object.DataObject, error) {
	var out object.DataObject
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := s.create(ctx, tx, modelID, record, actor)
		out = o
		return err
	})
	if err != nil {
		return object.DataObject{}, classify("create object", err)
	}
	s.logger.Debug().Str("object_id", out.ID).Str("model_id", modelID).Msg("object created")
	return out, nil
}

func (s *ObjectService) create(ctx context.Context, tx ports.Repos, modelID string, record map[string]any, actor string) (object.DataObject, error) {
	m, err := tx.Models().Get(ctx, modelID)
	if err != nil {
		return object.DataObject{}, lookup("model", modelID, err)
	}

	data, err := s.validator.Validate(ctx, tx, m, record, nil)
	if err != nil {
		return object.DataObject{}, err
	}

	wf, err := workflowOf(ctx, tx, m)
	if err != nil {
		return object.DataObject{}, err
	}

	now := s.clock.Now().UTC()
	o := object.DataObject{
		ID:        s.ids.New(),
		ModelID:   m.ID,
		Data:      data,
		StateID:   workflow.Recompute(wf, ""),
		OwnerID:   actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Objects().Create(ctx, o); err != nil {
		return object.DataObject{}, err
	}

	entry := s.entry(o, changelog.ChangeCreate, changelog.Snapshot(o, autoStamped(m)), actor, now)
	if err := tx.Changelog().Append(ctx, entry); err != nil {
		return object.DataObject{}, err
	}
	return o, nil
}

// Update validates the touched fields, applies an optional state change and
// records the resulting diff. An update that changes nothing writes nothing.
func (s *ObjectService) Update(ctx context.Context, modelID, id string, in UpdateInput, actor string) (object.DataObject, error) {
	var out object.DataObject
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := s.update(ctx, tx, modelID, id, in, actor)
		out = o
		return err
	})
	return out, classify("update object", err)
}

func (s *ObjectService) update(ctx context.Context, tx ports.Repos, modelID, id string, in UpdateInput, actor string) (object.DataObject, error) {
	existing, err := liveObject(ctx, tx, id)
	if err != nil {
		return object.DataObject{}, err
	}
	if modelID != "" && existing.ModelID != modelID {
		return object.DataObject{}, notFound("object", id)
	}

	m, err := tx.Models().Get(ctx, existing.ModelID)
	if err != nil {
		return object.DataObject{}, lookup("model", existing.ModelID, err)
	}

	touched, err := s.validator.Validate(ctx, tx, m, in.Data, &existing)
	if err != nil {
		return object.DataObject{}, err
	}

	wf, err := workflowOf(ctx, tx, m)
	if err != nil {
		return object.DataObject{}, err
	}

	after := existing.Clone()
	for name, val := range touched {
		after.SetValue(name, val)
	}
	if in.StateID != nil {
		next, err := workflow.Resolve(wf, existing.StateID, *in.StateID)
		if err != nil {
			return object.DataObject{}, err
		}
		after.StateID = next
	}
	if in.OwnerID != nil {
		after.OwnerID = *in.OwnerID
	}

	changes := changelog.Diff(existing, after, auditedFields(m, in.Data))
	if len(changes) == 0 {
		return existing, nil
	}
	labelStates(changes, wf)

	now := s.clock.Now().UTC()
	after.UpdatedAt = now
	if err := tx.Objects().Update(ctx, after); err != nil {
		return object.DataObject{}, err
	}
	entry := s.entry(after, changelog.ChangeUpdate, changelog.DiffPayload{Fields: changes}, actor, now)
	if err := tx.Changelog().Append(ctx, entry); err != nil {
		return object.DataObject{}, err
	}
	return after, nil
}

// SoftDelete moves an object to the recycle bin, keeping a full snapshot
// in the changelog.
func (s *ObjectService) SoftDelete(ctx context.Context, id, actor string) error {
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := liveObject(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		deleted := o.SoftDelete(now)
		if err := tx.Objects().Update(ctx, deleted); err != nil {
			return err
		}
		return tx.Changelog().Append(ctx, s.entry(o, changelog.ChangeDelete, changelog.Snapshot(o, nil), actor, now))
	})
	return classify("delete object", err)
}

// Restore takes an object out of the recycle bin. Unique properties are
// rechecked since another record may have claimed the value meanwhile.
func (s *ObjectService) Restore(ctx context.Context, id, actor string) (object.DataObject, error) {
	var out object.DataObject
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := tx.Objects().Get(ctx, id)
		if err != nil {
			return lookup("object", id, err)
		}
		if !o.IsDeleted {
			return ErrNotDeleted
		}
		m, err := tx.Models().Get(ctx, o.ModelID)
		if err != nil {
			return lookup("model", o.ModelID, err)
		}
		if err := s.validator.CheckUnique(ctx, tx, m, o.Data, o.ID); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		out = o.Restore(now)
		if err := tx.Objects().Update(ctx, out); err != nil {
			return err
		}
		return tx.Changelog().Append(ctx, s.entry(out, changelog.ChangeRestore, changelog.EmptyPayload{}, actor, now))
	})
	if err != nil {
		return object.DataObject{}, classify("restore object", err)
	}
	return out, nil
}

// HardDelete physically removes an object from the recycle bin together
// with its changelog and share links.
func (s *ObjectService) HardDelete(ctx context.Context, id, actor string) error {
	var entries int
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := tx.Objects().Get(ctx, id)
		if err != nil {
			return lookup("object", id, err)
		}
		if !o.IsDeleted {
			return ErrNotDeleted
		}
		if entries, err = tx.Changelog().DeleteByObject(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Links().DeleteByObject(ctx, id); err != nil {
			return err
		}
		return tx.Objects().Delete(ctx, id)
	})
	if err != nil {
		return classify("hard delete object", err)
	}
	s.logger.Info().Str("object_id", id).Str("actor", actor).Int("changelog_entries", entries).Msg("object permanently deleted")
	return nil
}

// recomputeStates moves every object of m, recycle bin included, to a state
// valid for wf. Each change is logged like a normal state edit.
func (s *ObjectService) recomputeStates(ctx context.Context, tx ports.Repos, m schema.Model, wf *workflow.Workflow, actor string) (int, error) {
	objs, err := tx.Objects().List(ctx, m.ID, true)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now().UTC()
	changed := 0
	for _, o := range objs {
		next := workflow.Recompute(wf, o.StateID)
		if next == o.StateID {
			continue
		}
		after := o.Clone()
		after.StateID = next
		after.UpdatedAt = now
		if err := tx.Objects().Update(ctx, after); err != nil {
			return changed, err
		}
		changes := []changelog.FieldChange{{Property: object.FieldWorkflowState, Old: o.Value(object.FieldWorkflowState), New: after.Value(object.FieldWorkflowState)}}
		labelStates(changes, wf)
		if err := tx.Changelog().Append(ctx, s.entry(after, changelog.ChangeUpdate, changelog.DiffPayload{Fields: changes}, actor, now)); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (s *ObjectService) entry(o object.DataObject, ct changelog.ChangeType, p changelog.Payload, actor string, at time.Time) changelog.Entry {
	return changelog.Entry{
		ID:           s.ids.New(),
		DataObjectID: o.ID,
		ModelID:      o.ModelID,
		ChangedAt:    at,
		ChangedBy:    actor,
		ChangeType:   ct,
		Payload:      p,
	}
}

// liveObject loads an object that is not in the recycle bin.
func liveObject(ctx context.Context, tx ports.Repos, id string) (object.DataObject, error) {
	o, err := tx.Objects().Get(ctx, id)
	if err != nil {
		return object.DataObject{}, lookup("object", id, err)
	}
	if o.IsDeleted {
		return object.DataObject{}, notFound("object", id)
	}
	return o, nil
}

// workflowOf loads the model's workflow, or nil when it has none.
func workflowOf(ctx context.Context, tx ports.Repos, m schema.Model) (*workflow.Workflow, error) {
	if !m.HasWorkflow() {
		return nil, nil
	}
	wf, err := tx.Workflows().Get(ctx, m.WorkflowID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func autoStamped(m schema.Model) map[string]bool {
	skip := make(map[string]bool)
	for _, p := range m.Properties {
		if p.IsAutoStamped() {
			skip[p.Name] = true
		}
	}
	return skip
}

// auditedFields lists the data fields an update may have changed, minus
// auto-stamps, in property order.
func auditedFields(m schema.Model, data map[string]any) []string {
	var names []string
	for _, p := range m.Properties {
		if _, ok := data[p.Name]; ok && !p.IsAutoStamped() {
			names = append(names, p.Name)
		}
	}
	return names
}

func labelStates(changes []changelog.FieldChange, wf *workflow.Workflow) {
	if wf == nil {
		return
	}
	for i, c := range changes {
		if c.Property != object.FieldWorkflowState {
			continue
		}
		if id, ok := c.Old.(string); ok {
			changes[i].OldLabel = wf.StateName(id)
		}
		if id, ok := c.New.(string); ok {
			changes[i].NewLabel = wf.StateName(id)
		}
	}
}
