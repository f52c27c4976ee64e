package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/recordbase/adapters/clock"
	"github.com/artpar/recordbase/adapters/idgen"
	"github.com/artpar/recordbase/adapters/random"
	"github.com/artpar/recordbase/adapters/sqlite"
	"github.com/artpar/recordbase/adapters/storetest"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recordbase-test.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store {
		return setupTestDB(t).Store()
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	versions, err := db.Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) == 0 || versions[0] != "001_init" {
		t.Errorf("versions = %v", versions)
	}

	applied := make(map[string]bool)
	for _, v := range versions {
		applied[v] = true
	}
	pending, err := sqlite.Pending(applied)
	if err != nil || len(pending) != 0 {
		t.Errorf("Pending = %v, %v", pending, err)
	}
}

type services struct {
	objects   *app.ObjectService
	schema    *app.SchemaService
	workflows *app.WorkflowService
	shares    *app.ShareService
	history   *app.ChangelogService
}

func newServices(t *testing.T) services {
	t.Helper()
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := db.Store()
	clk := clock.NewFake(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)).WithStep(time.Millisecond)
	ids := idgen.UUID{}
	logger := zerolog.Nop()
	objects := app.NewObjectService(store, app.NewValidator(clk, logger), ids, clk, logger)
	return services{
		objects:   objects,
		schema:    app.NewSchemaService(store, objects, ids, clk, logger),
		workflows: app.NewWorkflowService(store, objects, ids, clk, logger),
		shares:    app.NewShareService(store, objects, random.Real{}, clk, logger, app.ShareServiceConfig{}),
		history:   app.NewChangelogService(store, logger),
	}
}

func TestServices_UniqueCheckUsesStoredJSON(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	m, err := s.schema.UpsertModel(ctx, app.ModelInput{
		Name: "Contact",
		Properties: []schema.Property{
			{Name: "email", Type: schema.TypeString, IsUnique: true},
		},
	}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}

	first, err := s.objects.Create(ctx, m.ID, map[string]any{"email": "ada@example.com"}, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = s.objects.Create(ctx, m.ID, map[string]any{"email": "ada@example.com"}, "alice")
	var uv *app.UniqueViolationError
	if !errors.As(err, &uv) || uv.Field != "email" {
		t.Fatalf("duplicate err = %v, want UniqueViolationError on email", err)
	}

	if err := s.objects.SoftDelete(ctx, first.ID, "alice"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := s.objects.Create(ctx, m.ID, map[string]any{"email": "ada@example.com"}, "alice"); err != nil {
		t.Errorf("create after soft delete: %v", err)
	}
}

func TestServices_ForeignStateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	a, err := s.workflows.Upsert(ctx, app.WorkflowInput{
		Name:   "A",
		States: []app.StateInput{{Name: "Open", IsInitial: true}},
	}, "admin")
	if err != nil {
		t.Fatalf("Upsert A: %v", err)
	}

	_, err = s.workflows.Upsert(ctx, app.WorkflowInput{
		Name:   "B",
		States: []app.StateInput{{ID: a.States[0].ID, Name: "Start", IsInitial: true}},
	}, "admin")
	var ve *app.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := ve.Field("states.Start.id"); !ok {
		t.Errorf("no error on states.Start.id in %v", ve)
	}
}

func TestServices_RevertRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	m, err := s.schema.UpsertModel(ctx, app.ModelInput{
		Name:       "Doc",
		Properties: []schema.Property{{Name: "title", Type: schema.TypeString}},
	}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}
	o, err := s.objects.Create(ctx, m.ID, map[string]any{"title": "draft"}, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.objects.Update(ctx, m.ID, o.ID, app.UpdateInput{Data: map[string]any{"title": "final"}}, "bob"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	entries, err := s.history.History(ctx, o.ID)
	if err != nil || len(entries) != 2 || entries[0].ChangeType != changelog.ChangeUpdate {
		t.Fatalf("History = %+v, %v", entries, err)
	}

	reverted, err := s.objects.Revert(ctx, o.ID, entries[0].ID, "carol")
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if reverted.Data["title"] != "draft" {
		t.Errorf("title = %v, want draft", reverted.Data["title"])
	}

	entries, _ = s.history.History(ctx, o.ID)
	p, ok := entries[0].Payload.(changelog.RevertPayload)
	if !ok || entries[0].ChangedBy != "carol" || p.RevertOf == "" {
		t.Errorf("latest entry = %+v", entries[0])
	}
}

func TestServices_SingleUseLinkUnderContention(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	m, err := s.schema.UpsertModel(ctx, app.ModelInput{
		Name:       "Lead",
		Properties: []schema.Property{{Name: "name", Type: schema.TypeString, Required: true}},
	}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}
	link, err := s.shares.CreateLink(ctx, app.LinkInput{ModelID: m.ID, Type: share.LinkCreate, ExpiresOnSubmit: true}, "alice")
	if err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.shares.Submit(ctx, link.ID, map[string]any{"name": "x"}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("%d submissions succeeded, want 1", success)
	}
	leads, _ := s.objects.List(ctx, m.ID, true)
	if len(leads) != 1 {
		t.Errorf("%d leads stored, want 1", len(leads))
	}
}
