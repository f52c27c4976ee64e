package app

import (
	"context"
	"errors"
	"strings"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// SchemaService is the schema registry: models, their properties and the
// validation rulesets they reference.
type SchemaService struct {
	store   ports.Store
	objects *ObjectService
	ids     ports.IDGenerator
	clock   ports.Clock
	logger  zerolog.Logger
}

// NewSchemaService creates a new schema service.
func NewSchemaService(store ports.Store, objects *ObjectService, ids ports.IDGenerator, clock ports.Clock, logger zerolog.Logger) *SchemaService {
	return &SchemaService{
		store:   store,
		objects: objects,
		ids:     ids,
		clock:   clock,
		logger:  logger.With().Str("service", "schema").Logger(),
	}
}

// ModelInput is a full model definition. Empty ID creates. Properties
// replace the stored set entirely.
type ModelInput struct {
	ID                   string
	Name                 string
	Description          string
	DisplayPropertyNames []string
	GroupID              string
	WorkflowID           string
	Properties           []schema.Property
}

// GetModel returns a model with its properties.
func (s *SchemaService) GetModel(ctx context.Context, id string) (schema.Model, error) {
	m, err := s.store.Models().Get(ctx, id)
	if err != nil {
		return schema.Model{}, classify("get model", lookup("model", id, err))
	}
	return m, nil
}

// ListModels returns every model.
func (s *SchemaService) ListModels(ctx context.Context) ([]schema.Model, error) {
	ms, err := s.store.Models().List(ctx)
	return ms, classify("list models", err)
}

// UpsertModel creates or replaces a model. When the workflow reference
// changes, every object of the model gets a state valid for the new
// workflow in the same transaction.
func (s *SchemaService) UpsertModel(ctx context.Context, in ModelInput, actor string) (schema.Model, error) {
	var out schema.Model
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		m, err := s.upsertModel(ctx, tx, in, actor)
		out = m
		return err
	})
	if err != nil {
		return schema.Model{}, classify("upsert model", err)
	}
	s.logger.Debug().Str("model_id", out.ID).Int("properties", len(out.Properties)).Msg("model saved")
	return out, nil
}

func (s *SchemaService) upsertModel(ctx context.Context, tx ports.Repos, in ModelInput, actor string) (schema.Model, error) {
	now := s.clock.Now().UTC()

	var prev *schema.Model
	if in.ID != "" {
		m, err := tx.Models().Get(ctx, in.ID)
		if err != nil {
			return schema.Model{}, lookup("model", in.ID, err)
		}
		prev = &m
	}

	m := schema.Model{
		ID:                   in.ID,
		Name:                 strings.TrimSpace(in.Name),
		Description:          in.Description,
		DisplayPropertyNames: in.DisplayPropertyNames,
		GroupID:              in.GroupID,
		WorkflowID:           in.WorkflowID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if prev == nil {
		m.ID = s.ids.New()
	} else {
		m.CreatedAt = prev.CreatedAt
	}

	if other, err := tx.Models().GetByName(ctx, m.Name); err == nil && other.ID != m.ID {
		return schema.Model{}, ErrNameTaken
	} else if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return schema.Model{}, err
	}

	props := make([]schema.Property, len(in.Properties))
	for i, p := range in.Properties {
		p.Name = strings.TrimSpace(p.Name)
		if p.ID == "" {
			p.ID = s.ids.New()
		}
		props[i] = p
	}
	m = m.WithProperties(props)

	if r := schema.CheckModel(m); !r.Valid {
		return schema.Model{}, checkErrors(r.Errors, "")
	}
	if err := s.checkReferences(ctx, tx, m); err != nil {
		return schema.Model{}, err
	}

	if err := tx.Models().Save(ctx, m); err != nil {
		return schema.Model{}, err
	}

	if prev != nil && prev.WorkflowID != m.WorkflowID {
		wf, err := workflowOf(ctx, tx, m)
		if err != nil {
			return schema.Model{}, err
		}
		n, err := s.objects.recomputeStates(ctx, tx, m, wf, actor)
		if err != nil {
			return schema.Model{}, err
		}
		s.logger.Info().Str("model_id", m.ID).Int("objects", n).Msg("workflow reassigned")
	}

	entry := changelog.StructuralEntry{
		ID:         s.ids.New(),
		EntityType: changelog.EntityModel,
		EntityID:   m.ID,
		ChangeType: changelog.ChangeCreate,
		Changes:    modelChanges(prev, m),
		ChangedBy:  actor,
		ChangedAt:  now,
	}
	if prev != nil {
		entry.ChangeType = changelog.ChangeUpdate
	}
	if err := tx.Structural().Append(ctx, entry); err != nil {
		return schema.Model{}, err
	}
	return m, nil
}

// checkReferences verifies the workflow, related models and rulesets a
// model points at. Rulesets are compiled so a broken pattern surfaces now
// as a configuration error rather than on the first write.
func (s *SchemaService) checkReferences(ctx context.Context, tx ports.Repos, m schema.Model) error {
	ve := &ValidationError{}

	if m.WorkflowID != "" {
		if _, err := tx.Workflows().Get(ctx, m.WorkflowID); errors.Is(err, ports.ErrNotFound) {
			ve.Fields = append(ve.Fields, FieldError{Field: "workflowId", Message: "workflow does not exist", RejectedValue: m.WorkflowID})
		} else if err != nil {
			return err
		}
	}

	for _, p := range m.Properties {
		if p.Type == schema.TypeRelationship && p.RelatedModelID != m.ID {
			if _, err := tx.Models().Get(ctx, p.RelatedModelID); errors.Is(err, ports.ErrNotFound) {
				ve.Fields = append(ve.Fields, FieldError{Field: "properties." + p.Name + ".relatedModelId", Message: "model does not exist", RejectedValue: p.RelatedModelID})
			} else if err != nil {
				return err
			}
		}
		if p.ValidationRulesetID != "" {
			rs, err := tx.Rulesets().Get(ctx, p.ValidationRulesetID)
			if errors.Is(err, ports.ErrNotFound) {
				ve.Fields = append(ve.Fields, FieldError{Field: "properties." + p.Name + ".validationRulesetId", Message: "validation ruleset does not exist", RejectedValue: p.ValidationRulesetID})
				continue
			}
			if err != nil {
				return err
			}
			if _, err := rs.Compile(); err != nil {
				return &ConfigError{Subject: "validation ruleset " + rs.Name, Err: err}
			}
		}
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// DeleteModel removes a model. A model that still has live objects is only
// deleted with force, which destroys the objects and their changelog.
// Models referenced by another model's relationship are never deleted.
func (s *SchemaService) DeleteModel(ctx context.Context, id string, force bool, actor string) error {
	var objects, entries int
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		m, err := tx.Models().Get(ctx, id)
		if err != nil {
			return lookup("model", id, err)
		}

		all, err := tx.Models().List(ctx)
		if err != nil {
			return err
		}
		for _, other := range all {
			if other.ID == id {
				continue
			}
			for _, p := range other.Properties {
				if p.Type == schema.TypeRelationship && p.RelatedModelID == id {
					return ErrModelInUse
				}
			}
		}

		live, err := tx.Objects().Count(ctx, id, false)
		if err != nil {
			return err
		}
		if live > 0 && !force {
			return ErrModelInUse
		}

		if entries, err = tx.Changelog().DeleteByModel(ctx, id); err != nil {
			return err
		}
		if objects, err = tx.Objects().DeleteByModel(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Links().DeleteByModel(ctx, id); err != nil {
			return err
		}
		if err := tx.Models().Delete(ctx, id); err != nil {
			return err
		}
		return tx.Structural().Append(ctx, changelog.StructuralEntry{
			ID:         s.ids.New(),
			EntityType: changelog.EntityModel,
			EntityID:   id,
			ChangeType: changelog.ChangeDelete,
			Changes: []changelog.FieldChange{
				{Property: "name", Old: m.Name},
				{Property: "objectsDestroyed", New: objects},
				{Property: "changelogEntriesDestroyed", New: entries},
			},
			ChangedBy: actor,
			ChangedAt: s.clock.Now().UTC(),
		})
	})
	if err != nil {
		return classify("delete model", err)
	}
	if objects > 0 {
		s.logger.Warn().
			Str("model_id", id).
			Str("actor", actor).
			Int("objects", objects).
			Int("changelog_entries", entries).
			Msg("model deleted with its data and audit history")
	}
	return nil
}

// ListRulesets returns every validation ruleset.
func (s *SchemaService) ListRulesets(ctx context.Context) ([]schema.ValidationRuleset, error) {
	rs, err := s.store.Rulesets().List(ctx)
	return rs, classify("list rulesets", err)
}

// GetRuleset returns a validation ruleset.
func (s *SchemaService) GetRuleset(ctx context.Context, id string) (schema.ValidationRuleset, error) {
	rs, err := s.store.Rulesets().Get(ctx, id)
	if err != nil {
		return schema.ValidationRuleset{}, classify("get ruleset", lookup("validation ruleset", id, err))
	}
	return rs, nil
}

// UpsertRuleset creates or replaces a validation ruleset. A pattern that
// does not compile is a configuration error; a missing name or pattern is
// a validation error.
func (s *SchemaService) UpsertRuleset(ctx context.Context, in schema.ValidationRuleset, actor string) (schema.ValidationRuleset, error) {
	var out schema.ValidationRuleset
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		now := s.clock.Now().UTC()
		in.Name = strings.TrimSpace(in.Name)

		var prev *schema.ValidationRuleset
		if in.ID != "" {
			rs, err := tx.Rulesets().Get(ctx, in.ID)
			if err != nil {
				return lookup("validation ruleset", in.ID, err)
			}
			prev = &rs
			in.CreatedAt = rs.CreatedAt
		} else {
			in.ID = s.ids.New()
			in.CreatedAt = now
		}
		in.UpdatedAt = now

		if _, err := in.Compile(); err != nil {
			return &ConfigError{Subject: "validation ruleset " + in.Name, Err: err}
		}
		if r := schema.CheckRuleset(in); !r.Valid {
			return checkErrors(r.Errors, "")
		}
		if other, err := tx.Rulesets().GetByName(ctx, in.Name); err == nil && other.ID != in.ID {
			return ErrNameTaken
		} else if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return err
		}

		if err := tx.Rulesets().Save(ctx, in); err != nil {
			return err
		}
		out = in

		entry := changelog.StructuralEntry{
			ID:         s.ids.New(),
			EntityType: changelog.EntityRuleset,
			EntityID:   in.ID,
			ChangeType: changelog.ChangeCreate,
			ChangedBy:  actor,
			ChangedAt:  now,
		}
		if prev == nil {
			entry.Changes = []changelog.FieldChange{{Property: "name", New: in.Name}, {Property: "regexPattern", New: in.RegexPattern}}
		} else {
			entry.ChangeType = changelog.ChangeUpdate
			entry.Changes = rulesetChanges(*prev, in)
		}
		return tx.Structural().Append(ctx, entry)
	})
	if err != nil {
		return schema.ValidationRuleset{}, classify("upsert ruleset", err)
	}
	return out, nil
}

// DeleteRuleset removes a ruleset that no property references.
func (s *SchemaService) DeleteRuleset(ctx context.Context, id, actor string) error {
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		rs, err := tx.Rulesets().Get(ctx, id)
		if err != nil {
			return lookup("validation ruleset", id, err)
		}
		refs, err := tx.Models().CountByRuleset(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrRulesetInUse
		}
		if err := tx.Rulesets().Delete(ctx, id); err != nil {
			return err
		}
		return tx.Structural().Append(ctx, changelog.StructuralEntry{
			ID:         s.ids.New(),
			EntityType: changelog.EntityRuleset,
			EntityID:   id,
			ChangeType: changelog.ChangeDelete,
			Changes:    []changelog.FieldChange{{Property: "name", Old: rs.Name}},
			ChangedBy:  actor,
			ChangedAt:  s.clock.Now().UTC(),
		})
	})
	return classify("delete ruleset", err)
}

func modelChanges(prev *schema.Model, m schema.Model) []changelog.FieldChange {
	if prev == nil {
		names := make([]string, len(m.Properties))
		for i, p := range m.Properties {
			names[i] = p.Name
		}
		return []changelog.FieldChange{
			{Property: "name", New: m.Name},
			{Property: "properties.added", New: names},
		}
	}

	var changes []changelog.FieldChange
	add := func(field string, old, cur any, differ bool) {
		if differ {
			changes = append(changes, changelog.FieldChange{Property: field, Old: old, New: cur})
		}
	}
	add("name", prev.Name, m.Name, prev.Name != m.Name)
	add("description", prev.Description, m.Description, prev.Description != m.Description)
	add("groupId", prev.GroupID, m.GroupID, prev.GroupID != m.GroupID)
	add("workflowId", prev.WorkflowID, m.WorkflowID, prev.WorkflowID != m.WorkflowID)
	add("displayPropertyNames", prev.DisplayPropertyNames, m.DisplayPropertyNames,
		strings.Join(prev.DisplayPropertyNames, "\x00") != strings.Join(m.DisplayPropertyNames, "\x00"))

	d := schema.DiffProperties(prev.Properties, m.Properties)
	if d.IsEmpty() {
		return changes
	}
	add("properties.added", nil, d.Added, len(d.Added) > 0)
	add("properties.removed", d.Removed, nil, len(d.Removed) > 0)
	add("properties.changed", nil, d.Changed, len(d.Changed) > 0)
	return changes
}

func rulesetChanges(prev, cur schema.ValidationRuleset) []changelog.FieldChange {
	var changes []changelog.FieldChange
	if prev.Name != cur.Name {
		changes = append(changes, changelog.FieldChange{Property: "name", Old: prev.Name, New: cur.Name})
	}
	if prev.RegexPattern != cur.RegexPattern {
		changes = append(changes, changelog.FieldChange{Property: "regexPattern", Old: prev.RegexPattern, New: cur.RegexPattern})
	}
	if prev.Description != cur.Description {
		changes = append(changes, changelog.FieldChange{Property: "description", Old: prev.Description, New: cur.Description})
	}
	return changes
}
