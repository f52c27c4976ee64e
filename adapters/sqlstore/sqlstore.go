// Package sqlstore implements the storage ports on database/sql. The SQLite
// and Postgres adapters supply a Dialect and their own migrations; all
// queries are written once here with ? placeholders.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/recordbase/ports"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = ports.ErrNotFound

// Dialect holds the few things that differ between SQL engines.
type Dialect struct {
	Name string

	// Numbered switches ? placeholders to $1, $2, ...
	Numbered bool

	// JSONText returns an expression extracting field from the JSON column
	// col as text. The field name is bound as the next query argument,
	// whose value is JSONPath(field).
	JSONText func(col string) string
	JSONPath func(field string) string

	// JSONColumn returns a select expression reading a JSON column as text.
	JSONColumn func(col string) string

	// TxOptions are used for every InTx transaction.
	TxOptions *sql.TxOptions

	// Retryable reports whether a failed transaction may be run again,
	// e.g. after a serialization failure.
	Retryable func(err error) bool
}

// maxTxAttempts bounds InTx retries on retryable failures.
const maxTxAttempts = 3

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ports.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	repos
}

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, repos: repos{q: db, d: d}}
}

// DB exposes the underlying pool for health checks and metrics.
func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn in a transaction. Serialization failures are retried a few
// times; fn must therefore be safe to run more than once.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Repos) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.inTx(ctx, fn)
		if err == nil || s.dialect.Retryable == nil || !s.dialect.Retryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx ports.Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(repos{q: tx, d: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ ports.Store = (*Store)(nil)

// repos binds every store to one querier.
type repos struct {
	q querier
	d Dialect
}

func (r repos) Models() ports.ModelStore             { return modelStore{r} }
func (r repos) Rulesets() ports.RulesetStore         { return rulesetStore{r} }
func (r repos) Workflows() ports.WorkflowStore       { return workflowStore{r} }
func (r repos) Objects() ports.ObjectStore           { return objectStore{r} }
func (r repos) Changelog() ports.ChangelogStore      { return changelogStore{r} }
func (r repos) Structural() ports.StructuralLogStore { return structuralStore{r} }
func (r repos) Links() ports.LinkStore               { return linkStore{r} }

func (r repos) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.rebind(query), args...)
}

func (r repos) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.rebind(query), args...)
}

func (r repos) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (r repos) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// execCount runs a statement and returns the number of rows touched.
func (r repos) execCount(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r repos) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r repos) rebind(query string) string {
	if !r.d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// collect scans every row with scan.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
