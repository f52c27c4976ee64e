package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/recordbase/domain/share"
)

type linkStore struct{ r repos }

const linkColumns = `id, type, model_id, data_object_id, created_by, created_at, expires_at, expires_on_submit`

// Get retrieves a link by token.
func (s linkStore) Get(ctx context.Context, id string) (share.Link, error) {
	l, err := scanLink(s.r.queryRow(ctx, `SELECT `+linkColumns+` FROM share_links WHERE id = ?`, id))
	return l, notFound(err)
}

// Create stores a new link.
func (s linkStore) Create(ctx context.Context, l share.Link) error {
	_, err := s.r.exec(ctx, `
		INSERT INTO share_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, string(l.Type), l.ModelID, nullString(l.DataObjectID), l.CreatedBy,
		l.CreatedAt.UTC(), nullTime(l.ExpiresAt), l.ExpiresOnSubmit)
	return err
}

// Delete removes a link; ErrNotFound tells a losing concurrent submit apart.
func (s linkStore) Delete(ctx context.Context, id string) error {
	return s.r.execOne(ctx, `DELETE FROM share_links WHERE id = ?`, id)
}

// ListByModel returns a model's links, newest first.
func (s linkStore) ListByModel(ctx context.Context, modelID string) ([]share.Link, error) {
	rows, err := s.r.query(ctx, `
		SELECT `+linkColumns+` FROM share_links
		WHERE model_id = ?
		ORDER BY created_at DESC
	`, modelID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanLink)
}

// DeleteByModel removes a model's links.
func (s linkStore) DeleteByModel(ctx context.Context, modelID string) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM share_links WHERE model_id = ?`, modelID)
}

// DeleteByObject removes the links bound to an object.
func (s linkStore) DeleteByObject(ctx context.Context, objectID string) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM share_links WHERE data_object_id = ?`, objectID)
}

// DeleteExpired removes links whose expiry is at or before now.
func (s linkStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.r.execCount(ctx, `DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC())
}

func scanLink(row scanner) (share.Link, error) {
	var (
		l         share.Link
		typ       string
		objectID  sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&l.ID, &typ, &l.ModelID, &objectID, &l.CreatedBy, &l.CreatedAt, &expiresAt, &l.ExpiresOnSubmit)
	if err != nil {
		return share.Link{}, err
	}
	l.Type = share.LinkType(typ)
	l.DataObjectID = objectID.String
	l.CreatedAt = l.CreatedAt.UTC()
	l.ExpiresAt = timePtr(expiresAt)
	return l, nil
}
