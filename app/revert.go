package app

import (
	"context"
	"fmt"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
)

// Revert applies the inverse of a past changelog entry and records it as a
// new REVERT_* entry. When the object already matches the target the call
// succeeds without writing anything.
func (s *ObjectService) Revert(ctx context.Context, objectID, entryID, actor string) (object.DataObject, error) {
	var out object.DataObject
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		o, err := s.revert(ctx, tx, objectID, entryID, actor)
		out = o
		return err
	})
	if err != nil {
		return object.DataObject{}, classify("revert object", err)
	}
	return out, nil
}

func (s *ObjectService) revert(ctx context.Context, tx ports.Repos, objectID, entryID, actor string) (object.DataObject, error) {
	target, err := tx.Changelog().Get(ctx, entryID)
	if err != nil {
		return object.DataObject{}, lookup("changelog entry", entryID, err)
	}
	if target.DataObjectID != objectID {
		return object.DataObject{}, notFound("changelog entry", entryID)
	}

	if target.ChangeType.IsRevert() {
		return object.DataObject{}, ErrRevertOfRevert
	}
	revertType, ok := target.ChangeType.RevertType()
	if !ok {
		return object.DataObject{}, ErrCreateNotRevertible
	}

	current, err := tx.Objects().Get(ctx, objectID)
	if err != nil {
		return object.DataObject{}, lookup("object", objectID, err)
	}
	m, err := tx.Models().Get(ctx, current.ModelID)
	if err != nil {
		return object.DataObject{}, lookup("model", current.ModelID, err)
	}
	wf, err := workflowOf(ctx, tx, m)
	if err != nil {
		return object.DataObject{}, err
	}

	var (
		after   object.DataObject
		changes []changelog.FieldChange
		changed bool
	)
	switch p := target.Payload.(type) {
	case changelog.DiffPayload:
		after, err = s.invertUpdate(ctx, tx, m, wf, current, p)
		if err != nil {
			return object.DataObject{}, err
		}
		changes = changelog.Diff(current, after, changelog.FieldNames(current.Data, after.Data))
		changed = len(changes) > 0
	case changelog.SnapshotPayload:
		after, err = s.invertDelete(ctx, tx, m, wf, current, p)
		if err != nil {
			return object.DataObject{}, err
		}
		changes = changelog.Diff(current, after, changelog.FieldNames(current.Data, after.Data))
		changed = current.IsDeleted || len(changes) > 0
	case changelog.EmptyPayload:
		if current.IsDeleted {
			return current, nil
		}
		after = current.SoftDelete(s.clock.Now().UTC())
		changed = true
	default:
		return object.DataObject{}, fmt.Errorf("entry %s has unexpected payload %T", entryID, p)
	}

	if !changed {
		return current, nil
	}
	labelStates(changes, wf)

	now := s.clock.Now().UTC()
	after.UpdatedAt = now
	if err := tx.Objects().Update(ctx, after); err != nil {
		return object.DataObject{}, err
	}
	payload := changelog.RevertPayload{RevertOf: target.ID, Fields: changes}
	if err := tx.Changelog().Append(ctx, s.entry(after, revertType, payload, actor, now)); err != nil {
		return object.DataObject{}, err
	}

	s.logger.Info().
		Str("object_id", objectID).
		Str("entry_id", entryID).
		Str("change_type", string(revertType)).
		Msg("change reverted")
	return after, nil
}

// invertUpdate sets every field of an UPDATE diff back to its old value.
// State changes skip transition rules but must still name a state of the
// model's current workflow. Fields whose property was removed since are
// ignored; the rest are validated as a normal update.
func (s *ObjectService) invertUpdate(ctx context.Context, tx ports.Repos, m schema.Model, wf *workflow.Workflow, current object.DataObject, p changelog.DiffPayload) (object.DataObject, error) {
	if current.IsDeleted {
		return object.DataObject{}, notFound("object", current.ID)
	}

	after := current.Clone()
	data := make(map[string]any)
	for _, fc := range p.Fields {
		switch fc.Property {
		case object.FieldWorkflowState:
			state, _ := fc.Old.(string)
			if state != "" && (wf == nil || !wf.HasState(state)) {
				return object.DataObject{}, &TransitionError{
					From:   stateName(wf, current.StateID),
					To:     fc.OldLabel,
					Reason: "state no longer exists in the model's workflow",
				}
			}
			after.StateID = state
		case object.FieldOwner:
			owner, _ := fc.Old.(string)
			after.OwnerID = owner
		default:
			if _, ok := m.Property(fc.Property); ok {
				data[fc.Property] = fc.Old
			}
		}
	}

	touched, err := s.validator.Validate(ctx, tx, m, data, &current)
	if err != nil {
		return object.DataObject{}, err
	}
	for name, val := range touched {
		if _, reverted := data[name]; reverted {
			after.SetValue(name, val)
		}
	}
	return after, nil
}

// invertDelete rebuilds an object from a DELETE snapshot and takes it out
// of the recycle bin.
func (s *ObjectService) invertDelete(ctx context.Context, tx ports.Repos, m schema.Model, wf *workflow.Workflow, current object.DataObject, p changelog.SnapshotPayload) (object.DataObject, error) {
	after := current.Restore(s.clock.Now().UTC())
	after.Data = object.CloneData(p.Data)
	after.StateID = workflow.Recompute(wf, p.StateID)
	after.OwnerID = p.OwnerID

	if err := s.validator.CheckUnique(ctx, tx, m, after.Data, after.ID); err != nil {
		return object.DataObject{}, err
	}
	return after, nil
}

func stateName(wf *workflow.Workflow, id string) string {
	if wf == nil {
		return id
	}
	return wf.StateName(id)
}
