package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/artpar/recordbase/domain/schema"
)

type modelStore struct{ r repos }

const modelColumns = `id, name, description, display_property_names, group_id, workflow_id, created_at, updated_at`

const propertyColumns = `id, model_id, name, type, required, is_unique, order_index,
	min_value, max_value, decimals, unit, relationship_type, related_model_id,
	auto_set_on_create, auto_set_on_update, default_value, validation_ruleset_id`

// Get retrieves a model with its properties.
func (s modelStore) Get(ctx context.Context, id string) (schema.Model, error) {
	m, err := scanModel(s.r.queryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id))
	if err != nil {
		return schema.Model{}, notFound(err)
	}
	return s.withProperties(ctx, m)
}

// GetByName retrieves a model by name.
func (s modelStore) GetByName(ctx context.Context, name string) (schema.Model, error) {
	m, err := scanModel(s.r.queryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE name = ?`, name))
	if err != nil {
		return schema.Model{}, notFound(err)
	}
	return s.withProperties(ctx, m)
}

// List returns all models ordered by name.
func (s modelStore) List(ctx context.Context) ([]schema.Model, error) {
	return s.list(ctx, `SELECT `+modelColumns+` FROM models ORDER BY name`)
}

// ListByWorkflow returns the models attached to a workflow.
func (s modelStore) ListByWorkflow(ctx context.Context, workflowID string) ([]schema.Model, error) {
	return s.list(ctx, `SELECT `+modelColumns+` FROM models WHERE workflow_id = ? ORDER BY name`, workflowID)
}

func (s modelStore) list(ctx context.Context, query string, args ...any) ([]schema.Model, error) {
	rows, err := s.r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	models, err := collect(rows, scanModel)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i], err = s.withProperties(ctx, models[i]); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// CountByRuleset counts properties referencing a ruleset.
func (s modelStore) CountByRuleset(ctx context.Context, rulesetID string) (int, error) {
	return s.r.count(ctx, `SELECT COUNT(*) FROM properties WHERE validation_ruleset_id = ?`, rulesetID)
}

// Save upserts the model row and replaces its properties.
func (s modelStore) Save(ctx context.Context, m schema.Model) error {
	names, err := json.Marshal(nonNil(m.DisplayPropertyNames))
	if err != nil {
		return err
	}
	_, err = s.r.exec(ctx, `
		INSERT INTO models (`+modelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			display_property_names = excluded.display_property_names,
			group_id = excluded.group_id,
			workflow_id = excluded.workflow_id,
			updated_at = excluded.updated_at
	`, m.ID, m.Name, m.Description, string(names), nullString(m.GroupID), nullString(m.WorkflowID),
		m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	if _, err := s.r.exec(ctx, `DELETE FROM properties WHERE model_id = ?`, m.ID); err != nil {
		return fmt.Errorf("clear properties: %w", err)
	}
	for _, p := range m.Properties {
		if err := s.insertProperty(ctx, m.ID, p); err != nil {
			return fmt.Errorf("save property %s: %w", p.Name, err)
		}
	}
	return nil
}

func (s modelStore) insertProperty(ctx context.Context, modelID string, p schema.Property) error {
	var def sql.NullString
	if p.DefaultValue != nil {
		raw, err := json.Marshal(p.DefaultValue)
		if err != nil {
			return err
		}
		def = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.r.exec(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, modelID, p.Name, string(p.Type), p.Required, p.IsUnique, p.OrderIndex,
		nullFloat(p.MinValue), nullFloat(p.MaxValue), nullInt(p.Precision), p.Unit,
		nullString(string(p.RelationshipType)), nullString(p.RelatedModelID),
		p.AutoSetOnCreate, p.AutoSetOnUpdate, def, nullString(p.ValidationRulesetID))
	return err
}

// Delete removes a model and its properties.
func (s modelStore) Delete(ctx context.Context, id string) error {
	if _, err := s.r.exec(ctx, `DELETE FROM properties WHERE model_id = ?`, id); err != nil {
		return err
	}
	return s.r.execOne(ctx, `DELETE FROM models WHERE id = ?`, id)
}

func (s modelStore) withProperties(ctx context.Context, m schema.Model) (schema.Model, error) {
	rows, err := s.r.query(ctx, `SELECT `+propertyColumns+` FROM properties WHERE model_id = ? ORDER BY order_index`, m.ID)
	if err != nil {
		return schema.Model{}, err
	}
	m.Properties, err = collect(rows, scanProperty)
	return m, err
}

func scanModel(row scanner) (schema.Model, error) {
	var (
		m                 schema.Model
		names             string
		groupID, workflow sql.NullString
	)
	err := row.Scan(&m.ID, &m.Name, &m.Description, &names, &groupID, &workflow, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return schema.Model{}, err
	}
	if names != "" {
		if err := json.Unmarshal([]byte(names), &m.DisplayPropertyNames); err != nil {
			return schema.Model{}, fmt.Errorf("model %s display names: %w", m.ID, err)
		}
	}
	m.GroupID = groupID.String
	m.WorkflowID = workflow.String
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func scanProperty(row scanner) (schema.Property, error) {
	var (
		p                    schema.Property
		typ                  string
		minV, maxV           sql.NullFloat64
		decimals             sql.NullInt64
		relType, relModel    sql.NullString
		def, ruleset         sql.NullString
	)
	err := row.Scan(&p.ID, &p.ModelID, &p.Name, &typ, &p.Required, &p.IsUnique, &p.OrderIndex,
		&minV, &maxV, &decimals, &p.Unit, &relType, &relModel,
		&p.AutoSetOnCreate, &p.AutoSetOnUpdate, &def, &ruleset)
	if err != nil {
		return schema.Property{}, err
	}
	p.Type = schema.PropertyType(typ)
	if minV.Valid {
		p.MinValue = &minV.Float64
	}
	if maxV.Valid {
		p.MaxValue = &maxV.Float64
	}
	if decimals.Valid {
		n := int(decimals.Int64)
		p.Precision = &n
	}
	p.RelationshipType = schema.RelationshipType(relType.String)
	p.RelatedModelID = relModel.String
	p.ValidationRulesetID = ruleset.String
	if def.Valid {
		if err := json.Unmarshal([]byte(def.String), &p.DefaultValue); err != nil {
			return schema.Property{}, fmt.Errorf("property %s default: %w", p.ID, err)
		}
	}
	return p, nil
}

type rulesetStore struct{ r repos }

const rulesetColumns = `id, name, regex_pattern, description, created_at, updated_at`

// Get retrieves a ruleset by ID.
func (s rulesetStore) Get(ctx context.Context, id string) (schema.ValidationRuleset, error) {
	rs, err := scanRuleset(s.r.queryRow(ctx, `SELECT `+rulesetColumns+` FROM validation_rulesets WHERE id = ?`, id))
	return rs, notFound(err)
}

// GetByName retrieves a ruleset by name.
func (s rulesetStore) GetByName(ctx context.Context, name string) (schema.ValidationRuleset, error) {
	rs, err := scanRuleset(s.r.queryRow(ctx, `SELECT `+rulesetColumns+` FROM validation_rulesets WHERE name = ?`, name))
	return rs, notFound(err)
}

// List returns all rulesets ordered by name.
func (s rulesetStore) List(ctx context.Context) ([]schema.ValidationRuleset, error) {
	rows, err := s.r.query(ctx, `SELECT `+rulesetColumns+` FROM validation_rulesets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRuleset)
}

// Save upserts a ruleset.
func (s rulesetStore) Save(ctx context.Context, rs schema.ValidationRuleset) error {
	_, err := s.r.exec(ctx, `
		INSERT INTO validation_rulesets (`+rulesetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			regex_pattern = excluded.regex_pattern,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, rs.ID, rs.Name, rs.RegexPattern, rs.Description, rs.CreatedAt.UTC(), rs.UpdatedAt.UTC())
	return err
}

// Delete removes a ruleset.
func (s rulesetStore) Delete(ctx context.Context, id string) error {
	return s.r.execOne(ctx, `DELETE FROM validation_rulesets WHERE id = ?`, id)
}

func scanRuleset(row scanner) (schema.ValidationRuleset, error) {
	var rs schema.ValidationRuleset
	if err := row.Scan(&rs.ID, &rs.Name, &rs.RegexPattern, &rs.Description, &rs.CreatedAt, &rs.UpdatedAt); err != nil {
		return schema.ValidationRuleset{}, err
	}
	rs.CreatedAt = rs.CreatedAt.UTC()
	rs.UpdatedAt = rs.UpdatedAt.UTC()
	return rs, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
