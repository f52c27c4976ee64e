// Package postgres provides the PostgreSQL storage engine.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/artpar/recordbase/adapters/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Serialization and deadlock failures; the transaction may be retried.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Dialect is the PostgreSQL flavour of the shared SQL store. Transactions
// run SERIALIZABLE so uniqueness checks and single-use links hold under
// concurrency.
var Dialect = sqlstore.Dialect{
	Name:     "postgres",
	Numbered: true,
	JSONText: func(col string) string {
		return "(" + col + " ->> ?::text)"
	},
	JSONPath:   func(field string) string { return field },
	JSONColumn: func(col string) string { return col + "::text" },
	TxOptions:  &sql.TxOptions{Isolation: sql.LevelSerializable},
	Retryable:  isSerializationFailure,
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	*sql.DB
	dsn string
}

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to PostgreSQL through the pgx driver and verifies the
// connection.
func Open(ctx context.Context, dsn string, opts Options) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, dsn: dsn}, nil
}

// Store returns the storage ports backed by this database.
func (db *DB) Store() *sqlstore.Store {
	return sqlstore.New(db.DB, Dialect)
}

// Migrate applies all pending migrations.
func (db *DB) Migrate() error {
	return db.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// Version reports the current migration version and whether the last
// migration failed halfway.
func (db *DB) Version() (version uint, dirty bool, err error) {
	err = db.withMigrator(func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

// withMigrator runs fn against a migrator on its own pool; closing the
// migrator closes the pool it was given.
func (db *DB) withMigrator(fn func(m *migrate.Migrate) error) error {
	conn, err := sql.Open("pgx", db.dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := migratepgx.WithInstance(conn, &migratepgx.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	return fn(m)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
