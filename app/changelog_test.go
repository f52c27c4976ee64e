package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/changelog"
)

func TestChangelog_ListFilters(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.model(t, "Doc", str("title"))
	a := e.create(t, m.ID, map[string]any{"title": "a"})
	mid := e.clock.Now()
	b, _ := e.objects.Create(ctx, m.ID, map[string]any{"title": "b"}, "bob")
	_, _ = e.objects.Update(ctx, m.ID, a.ID, app.UpdateInput{Data: map[string]any{"title": "a2"}}, "bob")

	tests := []struct {
		name  string
		f     changelog.Filter
		total int
	}{
		{"all objects", changelog.Filter{}, 3},
		{"by object", changelog.Filter{EntityID: a.ID}, 2},
		{"by user", changelog.Filter{UserID: "bob"}, 2},
		{"by model", changelog.Filter{ModelID: m.ID}, 3},
		{"from", changelog.Filter{From: &mid}, 2},
		{"to", changelog.Filter{To: &mid}, 1},
		{"object and user", changelog.Filter{EntityID: b.ID, UserID: "alice"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := e.changelog.List(ctx, tt.f)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Total != tt.total || len(page.Entries) != tt.total {
				t.Errorf("total = %d (%d rows), want %d", page.Total, len(page.Entries), tt.total)
			}
			if page.Structural != nil {
				t.Error("object query returned structural rows")
			}
		})
	}
}

func TestChangelog_NewestFirstAndPaged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.model(t, "Doc", str("title"))
	o := e.create(t, m.ID, map[string]any{"title": "v0"})
	for _, v := range []string{"v1", "v2", "v3", "v4"} {
		if _, err := e.objects.Update(ctx, m.ID, o.ID, app.UpdateInput{Data: map[string]any{"title": v}}, "alice"); err != nil {
			t.Fatal(err)
		}
	}

	page, err := e.changelog.List(ctx, changelog.Filter{EntityID: o.ID, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 5 || len(page.Entries) != 2 {
		t.Fatalf("page = %d rows of %d", len(page.Entries), page.Total)
	}
	for i := 1; i < len(page.Entries); i++ {
		if page.Entries[i].ChangedAt.After(page.Entries[i-1].ChangedAt) {
			t.Error("entries not newest first")
		}
	}
	if fc := page.Entries[0].Payload.(changelog.DiffPayload).Fields[0]; fc.New != "v2" {
		t.Errorf("page 2 first change = %+v, want v2", fc)
	}
}

func TestChangelog_RejectsBadFilters(t *testing.T) {
	e := newEnv(t)
	from := t0.Add(time.Hour)
	to := t0

	for name, f := range map[string]changelog.Filter{
		"unknown entity type": {EntityType: "invoice"},
		"inverted range":      {From: &from, To: &to},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.changelog.List(context.Background(), f)
			wantValidation(t, err)
		})
	}
}

func TestChangelog_StructuralByUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.model(t, "Doc", str("title"))
	if _, err := e.workflows.Upsert(ctx, app.WorkflowInput{Name: "W", States: []app.StateInput{{Name: "s", IsInitial: true}}}, "carol"); err != nil {
		t.Fatal(err)
	}

	page, err := e.changelog.List(ctx, changelog.Filter{EntityType: changelog.EntityWorkflow, UserID: "carol"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || page.Structural[0].ChangeType != changelog.ChangeCreate {
		t.Errorf("structural = %+v", page.Structural)
	}
	if page.Entries != nil {
		t.Error("structural query returned object rows")
	}
}
