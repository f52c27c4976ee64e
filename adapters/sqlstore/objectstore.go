package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/artpar/recordbase/domain/object"
)

type objectStore struct{ r repos }

const objectColumns = `id, model_id, data, state_id, owner_id, is_deleted, deleted_at, created_at, updated_at`

// Get retrieves an object by ID, including soft-deleted ones.
func (s objectStore) Get(ctx context.Context, id string) (object.DataObject, error) {
	o, err := scanObject(s.r.queryRow(ctx, `SELECT `+s.columns()+` FROM data_objects WHERE id = ?`, id))
	return o, notFound(err)
}

// List returns a model's objects, oldest first.
func (s objectStore) List(ctx context.Context, modelID string, includeDeleted bool) ([]object.DataObject, error) {
	query := `SELECT ` + s.columns() + ` FROM data_objects WHERE model_id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = ?`
	}
	query += ` ORDER BY created_at, id`

	args := []any{modelID}
	if !includeDeleted {
		args = append(args, false)
	}
	rows, err := s.r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanObject)
}

// Count counts a model's objects.
func (s objectStore) Count(ctx context.Context, modelID string, includeDeleted bool) (int, error) {
	if includeDeleted {
		return s.r.count(ctx, `SELECT COUNT(*) FROM data_objects WHERE model_id = ?`, modelID)
	}
	return s.r.count(ctx, `SELECT COUNT(*) FROM data_objects WHERE model_id = ? AND is_deleted = ?`, modelID, false)
}

// FindByField looks for a live object whose field holds value.
func (s objectStore) FindByField(ctx context.Context, modelID, field string, value any, excludeID string) (string, error) {
	text, err := fieldText(value)
	if err != nil {
		return "", err
	}
	var id string
	err = s.r.queryRow(ctx, `
		SELECT id FROM data_objects
		WHERE model_id = ? AND is_deleted = ? AND id <> ? AND `+s.r.d.JSONText("data")+` = ?
		ORDER BY created_at
		LIMIT 1
	`, modelID, false, excludeID, s.r.d.JSONPath(field), text).Scan(&id)
	return id, notFound(err)
}

// Create stores a new object.
func (s objectStore) Create(ctx context.Context, o object.DataObject) error {
	data, err := encodeData(o.Data)
	if err != nil {
		return err
	}
	_, err = s.r.exec(ctx, `
		INSERT INTO data_objects (`+objectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.ModelID, data, nullString(o.StateID), nullString(o.OwnerID),
		o.IsDeleted, nullTime(o.DeletedAt), o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	return nil
}

// Update overwrites an existing object.
func (s objectStore) Update(ctx context.Context, o object.DataObject) error {
	data, err := encodeData(o.Data)
	if err != nil {
		return err
	}
	return s.r.execOne(ctx, `
		UPDATE data_objects
		SET data = ?, state_id = ?, owner_id = ?, is_deleted = ?, deleted_at = ?, updated_at = ?
		WHERE id = ?
	`, data, nullString(o.StateID), nullString(o.OwnerID), o.IsDeleted, nullTime(o.DeletedAt),
		o.UpdatedAt.UTC(), o.ID)
}

// Delete physically removes an object.
func (s objectStore) Delete(ctx context.Context, id string) error {
	return s.r.execOne(ctx, `DELETE FROM data_objects WHERE id = ?`, id)
}

// DeleteByModel physically removes every object of a model.
func (s objectStore) DeleteByModel(ctx context.Context, modelID string) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM data_objects WHERE model_id = ?`, modelID)
}

// columns reads data back as text so both engines scan into []byte.
func (s objectStore) columns() string {
	return `id, model_id, ` + s.r.d.JSONColumn("data") + `, state_id, owner_id, is_deleted, deleted_at, created_at, updated_at`
}

func scanObject(row scanner) (object.DataObject, error) {
	var (
		o              object.DataObject
		data           []byte
		state, owner   sql.NullString
		deletedAt      sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ModelID, &data, &state, &owner, &o.IsDeleted, &deletedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return object.DataObject{}, err
	}
	o.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &o.Data); err != nil {
			return object.DataObject{}, fmt.Errorf("object %s data: %w", o.ID, err)
		}
	}
	o.StateID = state.String
	o.OwnerID = owner.String
	o.DeletedAt = timePtr(deletedAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode object data: %w", err)
	}
	return string(raw), nil
}

// fieldText renders a value the way the engines' JSON text extraction does:
// strings bare, everything else as JSON.
func fieldText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode lookup value: %w", err)
	}
	return string(raw), nil
}
