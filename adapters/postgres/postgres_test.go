package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/artpar/recordbase/adapters/postgres"
	"github.com/artpar/recordbase/adapters/storetest"
	"github.com/artpar/recordbase/ports"
)

// Set RECORDBASE_PG_TESTS=1 to run against a throwaway container, or
// RECORDBASE_TEST_DATABASE_URL to use an existing server.
var testDSN string

func TestMain(m *testing.M) {
	testDSN = os.Getenv("RECORDBASE_TEST_DATABASE_URL")
	var teardown func(context.Context, ...testcontainers.TerminateOption) error
	if testDSN == "" && os.Getenv("RECORDBASE_PG_TESTS") != "" {
		var err error
		teardown, testDSN, err = startContainer()
		if err != nil {
			log.Fatalf("could not start postgres container: %v", err)
		}
	}

	code := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Printf("could not stop postgres container: %v", err)
		}
	}
	os.Exit(code)
}

func startContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	const (
		dbName = "recordbase_test"
		dbUser = "user"
		dbPwd  = "password"
	)
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start container: %w", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		return c.Terminate, "", fmt.Errorf("container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return c.Terminate, "", fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)
	return c.Terminate, dsn, nil
}

var tables = []string{
	"share_links", "structural_changelog", "changelog_entries", "data_objects",
	"properties", "models", "workflow_transitions", "workflow_states",
	"workflows", "validation_rulesets",
}

func openTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	if testDSN == "" {
		t.Skip("postgres tests disabled; set RECORDBASE_PG_TESTS=1")
	}
	ctx := context.Background()
	db, err := postgres.Open(ctx, testDSN, postgres.Options{MaxOpenConns: 10})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table); err != nil {
			db.Close()
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store {
		return openTestDB(t).Store()
	})
}

func TestMigrate_Version(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	version, dirty, err := db.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Version = %d (dirty %v), want 1", version, dirty)
	}
}
