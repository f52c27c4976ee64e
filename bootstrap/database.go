package bootstrap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/artpar/recordbase/adapters/postgres"
	"github.com/artpar/recordbase/adapters/sqlite"
	"github.com/artpar/recordbase/adapters/sqlstore"
	"github.com/artpar/recordbase/config"
)

// Database is an opened storage engine.
type Database struct {
	Driver string
	Store  *sqlstore.Store

	migrate func() error
	version func() (string, error)
}

// OpenDatabase connects to the engine named by cfg.Driver. Migrations are
// not applied; call Migrate.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Database{
			Driver:  cfg.Driver,
			Store:   db.Store(),
			migrate: db.Migrate,
			version: func() (string, error) {
				versions, err := db.Versions()
				if err != nil || len(versions) == 0 {
					return "none", err
				}
				return versions[len(versions)-1], nil
			},
		}, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DSN, postgres.Options{MaxOpenConns: cfg.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		return &Database{
			Driver:  cfg.Driver,
			Store:   db.Store(),
			migrate: db.Migrate,
			version: func() (string, error) {
				v, dirty, err := db.Version()
				if err != nil {
					return "", err
				}
				if v == 0 {
					return "none", nil
				}
				s := strconv.FormatUint(uint64(v), 10)
				if dirty {
					s += " (dirty)"
				}
				return s, nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate applies pending migrations.
func (d *Database) Migrate() error {
	if err := d.migrate(); err != nil {
		return fmt.Errorf("migrate %s: %w", d.Driver, err)
	}
	return nil
}

// Version reports the latest applied migration.
func (d *Database) Version() (string, error) {
	return d.version()
}

// Close closes the connection pool.
func (d *Database) Close() error {
	return d.Store.Close()
}
