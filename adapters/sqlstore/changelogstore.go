package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/artpar/recordbase/domain/changelog"
)

type changelogStore struct{ r repos }

const entryColumns = `id, data_object_id, model_id, changed_at, changed_by, change_type`

// Append adds an entry. Rows are ordered by an insertion sequence, so
// entries written within the same clock tick still list newest first.
func (s changelogStore) Append(ctx context.Context, e changelog.Entry) error {
	if err := changelog.CheckPayload(e.ChangeType, e.Payload); err != nil {
		return err
	}
	payload, err := changelog.EncodePayload(e.Payload)
	if err != nil {
		return err
	}
	_, err = s.r.exec(ctx, `
		INSERT INTO changelog_entries (`+entryColumns+`, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.DataObjectID, e.ModelID, e.ChangedAt.UTC(), nullString(e.ChangedBy),
		string(e.ChangeType), string(payload))
	if err != nil {
		return fmt.Errorf("append changelog entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s changelogStore) Get(ctx context.Context, id string) (changelog.Entry, error) {
	e, err := scanEntry(s.r.queryRow(ctx, `SELECT `+s.columns()+` FROM changelog_entries WHERE id = ?`, id))
	return e, notFound(err)
}

// List returns matching entries, newest first, with the total match count.
func (s changelogStore) List(ctx context.Context, f changelog.Filter) ([]changelog.Entry, int, error) {
	f = f.Normalize()
	var w where
	w.eq("data_object_id", f.EntityID)
	w.eq("model_id", f.ModelID)
	w.eq("changed_by", f.UserID)
	w.timeRange("changed_at", f)

	total, err := s.r.count(ctx, `SELECT COUNT(*) FROM changelog_entries`+w.sql(), w.args...)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}
	rows, err := s.r.query(ctx,
		`SELECT `+s.columns()+` FROM changelog_entries`+w.sql()+` ORDER BY seq DESC LIMIT ? OFFSET ?`,
		append(w.args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collect(rows, scanEntry)
	return entries, total, err
}

// DeleteByObject removes an object's entries.
func (s changelogStore) DeleteByObject(ctx context.Context, objectID string) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM changelog_entries WHERE data_object_id = ?`, objectID)
}

// DeleteByModel removes the entries of a model's objects.
func (s changelogStore) DeleteByModel(ctx context.Context, modelID string) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM changelog_entries WHERE model_id = ?`, modelID)
}

func (s changelogStore) columns() string {
	return entryColumns + `, ` + s.r.d.JSONColumn("payload")
}

func scanEntry(row scanner) (changelog.Entry, error) {
	var (
		e       changelog.Entry
		by      sql.NullString
		ct      string
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.DataObjectID, &e.ModelID, &e.ChangedAt, &by, &ct, &payload); err != nil {
		return changelog.Entry{}, err
	}
	e.ChangedAt = e.ChangedAt.UTC()
	e.ChangedBy = by.String
	e.ChangeType = changelog.ChangeType(ct)
	p, err := changelog.DecodePayload(e.ChangeType, payload)
	if err != nil {
		return changelog.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.Payload = p
	return e, nil
}

type structuralStore struct{ r repos }

const structuralColumns = `id, entity_type, entity_id, change_type, changed_by, changed_at`

// Append adds a structural entry.
func (s structuralStore) Append(ctx context.Context, e changelog.StructuralEntry) error {
	changes := e.Changes
	if changes == nil {
		changes = []changelog.FieldChange{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode structural changes: %w", err)
	}
	_, err = s.r.exec(ctx, `
		INSERT INTO structural_changelog (`+structuralColumns+`, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.EntityType), e.EntityID, string(e.ChangeType), nullString(e.ChangedBy),
		e.ChangedAt.UTC(), string(raw))
	return err
}

// List returns matching structural entries, newest first.
func (s structuralStore) List(ctx context.Context, f changelog.Filter) ([]changelog.StructuralEntry, int, error) {
	f = f.Normalize()
	var w where
	if f.EntityType.IsStructural() {
		w.eq("entity_type", string(f.EntityType))
	}
	w.eq("entity_id", f.EntityID)
	w.eq("changed_by", f.UserID)
	w.timeRange("changed_at", f)

	total, err := s.r.count(ctx, `SELECT COUNT(*) FROM structural_changelog`+w.sql(), w.args...)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}
	rows, err := s.r.query(ctx,
		`SELECT `+structuralColumns+`, `+s.r.d.JSONColumn("changes")+` FROM structural_changelog`+w.sql()+
			` ORDER BY seq DESC LIMIT ? OFFSET ?`,
		append(w.args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := collect(rows, scanStructural)
	return entries, total, err
}

func scanStructural(row scanner) (changelog.StructuralEntry, error) {
	var (
		e        changelog.StructuralEntry
		et, ct   string
		by       sql.NullString
		changes  []byte
	)
	if err := row.Scan(&e.ID, &et, &e.EntityID, &ct, &by, &e.ChangedAt, &changes); err != nil {
		return changelog.StructuralEntry{}, err
	}
	e.EntityType = changelog.EntityType(et)
	e.ChangeType = changelog.ChangeType(ct)
	e.ChangedBy = by.String
	e.ChangedAt = e.ChangedAt.UTC()
	if len(changes) > 0 {
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return changelog.StructuralEntry{}, fmt.Errorf("structural entry %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// where accumulates AND-ed conditions for the changelog filters.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(col, v string) {
	if v == "" {
		return
	}
	w.conds = append(w.conds, col+" = ?")
	w.args = append(w.args, v)
}

func (w *where) timeRange(col string, f changelog.Filter) {
	if f.From != nil {
		w.conds = append(w.conds, col+" >= ?")
		w.args = append(w.args, f.From.UTC())
	}
	if f.To != nil {
		w.conds = append(w.conds, col+" <= ?")
		w.args = append(w.args, f.To.UTC())
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
