package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/recordbase/adapters/clock"
	"github.com/artpar/recordbase/adapters/idgen"
	"github.com/artpar/recordbase/adapters/memory"
	"github.com/artpar/recordbase/adapters/random"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	store     *memory.Store
	clock     *clock.Fake
	random    *random.Fake
	objects   *app.ObjectService
	schema    *app.SchemaService
	workflows *app.WorkflowService
	shares    *app.ShareService
	changelog *app.ChangelogService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	clk := clock.NewFake(t0).WithStep(time.Second)
	ids := idgen.NewSequential("id_")
	rnd := random.NewFake()
	logger := zerolog.Nop()

	objects := app.NewObjectService(store, app.NewValidator(clk, logger), ids, clk, logger)
	return &testEnv{
		store:     store,
		clock:     clk,
		random:    rnd,
		objects:   objects,
		schema:    app.NewSchemaService(store, objects, ids, clk, logger),
		workflows: app.NewWorkflowService(store, objects, ids, clk, logger),
		shares:    app.NewShareService(store, objects, rnd, clk, logger, app.ShareServiceConfig{}),
		changelog: app.NewChangelogService(store, logger),
	}
}

func (e *testEnv) model(t *testing.T, name string, props ...schema.Property) schema.Model {
	t.Helper()
	m, err := e.schema.UpsertModel(context.Background(), app.ModelInput{Name: name, Properties: props}, "admin")
	if err != nil {
		t.Fatalf("UpsertModel(%s): %v", name, err)
	}
	return m
}

func (e *testEnv) create(t *testing.T, modelID string, record map[string]any) object.DataObject {
	t.Helper()
	o, err := e.objects.Create(context.Background(), modelID, record, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return o
}

// history returns the object's changelog, oldest first.
func (e *testEnv) history(t *testing.T, objectID string) []changelog.Entry {
	t.Helper()
	entries, err := e.changelog.History(context.Background(), objectID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}

func (e *testEnv) lastEntry(t *testing.T, objectID string) changelog.Entry {
	t.Helper()
	h := e.history(t, objectID)
	if len(h) == 0 {
		t.Fatalf("object %s has no changelog", objectID)
	}
	return h[len(h)-1]
}

func str(name string) schema.Property {
	return schema.Property{Name: name, Type: schema.TypeString}
}

func requiredStr(name string) schema.Property {
	return schema.Property{Name: name, Type: schema.TypeString, Required: true}
}

func uniqueStr(name string) schema.Property {
	return schema.Property{Name: name, Type: schema.TypeString, IsUnique: true}
}

func number(name string, min, max float64) schema.Property {
	return schema.Property{Name: name, Type: schema.TypeNumber, MinValue: &min, MaxValue: &max}
}

func ptr[T any](v T) *T { return &v }

func wantValidation(t *testing.T, err error, fields ...string) *app.ValidationError {
	t.Helper()
	var ve *app.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	for _, f := range fields {
		if _, ok := ve.Field(f); !ok {
			t.Errorf("no error on field %q in %v", f, ve)
		}
	}
	return ve
}
