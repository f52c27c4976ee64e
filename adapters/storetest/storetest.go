// Package storetest is a conformance suite for ports.Store implementations.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
)

// Opener returns an empty, migrated store. The suite closes it.
type Opener func(t *testing.T) ports.Store

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// Run exercises every repository of the store returned by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(*testing.T, ports.Store)
	}{
		{"InTxCommitAndRollback", testInTx},
		{"Models", testModels},
		{"Rulesets", testRulesets},
		{"Workflows", testWorkflows},
		{"Objects", testObjects},
		{"FindByField", testFindByField},
		{"Changelog", testChangelog},
		{"Structural", testStructural},
		{"Links", testLinks},
		{"ConcurrentLinkDelete", testConcurrentLinkDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func write(t *testing.T, s ports.Store, fn func(ctx context.Context, tx ports.Repos) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.InTx(ctx, func(tx ports.Repos) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func wantNotFound(t *testing.T, what string, err error) {
	t.Helper()
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("%s err = %v, want ErrNotFound", what, err)
	}
}

func testInTx(t *testing.T, s ports.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx ports.Repos) error {
		if err := tx.Rulesets().Save(ctx, ruleset("r1", "zip")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}
	_, err = s.Rulesets().Get(ctx, "r1")
	wantNotFound(t, "rolled back ruleset", err)

	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		return tx.Rulesets().Save(ctx, ruleset("r1", "zip"))
	})
	if _, err := s.Rulesets().Get(ctx, "r1"); err != nil {
		t.Errorf("committed ruleset: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func ruleset(id, name string) schema.ValidationRuleset {
	return schema.ValidationRuleset{ID: id, Name: name, RegexPattern: `^\d{5}$`, CreatedAt: base, UpdatedAt: base}
}

func testModels(t *testing.T, s ports.Store) {
	ctx := context.Background()
	min, max, decimals := 1.0, 10.0, 2
	m := schema.Model{
		ID:                   "m1",
		Name:                 "Book",
		Description:          "things to read",
		DisplayPropertyNames: []string{"title"},
		WorkflowID:           "w1",
		CreatedAt:            base,
		UpdatedAt:            base,
		Properties: []schema.Property{
			{ID: "p1", ModelID: "m1", Name: "title", Type: schema.TypeString, Required: true, IsUnique: true, OrderIndex: 0, ValidationRulesetID: "r1"},
			{ID: "p2", ModelID: "m1", Name: "rating", Type: schema.TypeNumber, OrderIndex: 1, MinValue: &min, MaxValue: &max, Precision: &decimals, Unit: "stars", DefaultValue: 5.0},
			{ID: "p3", ModelID: "m1", Name: "author", Type: schema.TypeRelationship, OrderIndex: 2, RelationshipType: schema.RelationshipOne, RelatedModelID: "m2"},
			{ID: "p4", ModelID: "m1", Name: "added", Type: schema.TypeDateTime, OrderIndex: 3, AutoSetOnCreate: true},
		},
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Models().Save(ctx, m) })

	got, err := s.Models().Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
	got.CreatedAt, got.UpdatedAt = m.CreatedAt, m.UpdatedAt
	if !reflect.DeepEqual(got, m) {
		t.Errorf("Get = %+v\nwant %+v", got, m)
	}

	byName, err := s.Models().GetByName(ctx, "Book")
	if err != nil || byName.ID != "m1" {
		t.Errorf("GetByName = %v, %v", byName.ID, err)
	}
	if n, _ := s.Models().CountByRuleset(ctx, "r1"); n != 1 {
		t.Errorf("CountByRuleset = %d, want 1", n)
	}
	if ms, _ := s.Models().ListByWorkflow(ctx, "w1"); len(ms) != 1 {
		t.Errorf("ListByWorkflow = %d models", len(ms))
	}

	m.Properties = m.Properties[:1]
	m.WorkflowID = ""
	m.UpdatedAt = base.Add(time.Minute)
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		if err := tx.Models().Save(ctx, m); err != nil {
			return err
		}
		return tx.Models().Save(ctx, schema.Model{ID: "m0", Name: "Author", CreatedAt: base, UpdatedAt: base})
	})
	got, _ = s.Models().Get(ctx, "m1")
	if len(got.Properties) != 1 || got.WorkflowID != "" {
		t.Errorf("after update = %+v", got)
	}
	if ms, _ := s.Models().ListByWorkflow(ctx, "w1"); len(ms) != 0 {
		t.Errorf("ListByWorkflow after detach = %d models", len(ms))
	}
	list, _ := s.Models().List(ctx)
	if len(list) != 2 || list[0].Name != "Author" || list[1].Name != "Book" {
		t.Errorf("List not ordered by name: %+v", list)
	}

	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Models().Delete(ctx, "m1") })
	_, err = s.Models().Get(ctx, "m1")
	wantNotFound(t, "deleted model", err)
	if n, _ := s.Models().CountByRuleset(ctx, "r1"); n != 0 {
		t.Errorf("properties survived model delete: %d", n)
	}
	err = s.InTx(ctx, func(tx ports.Repos) error { return tx.Models().Delete(ctx, "m1") })
	wantNotFound(t, "second delete", err)
}

func testRulesets(t *testing.T, s ports.Store) {
	ctx := context.Background()
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		if err := tx.Rulesets().Save(ctx, ruleset("r2", "zip")); err != nil {
			return err
		}
		return tx.Rulesets().Save(ctx, ruleset("r1", "email"))
	})

	rs, err := s.Rulesets().GetByName(ctx, "zip")
	if err != nil || rs.ID != "r2" || rs.RegexPattern != `^\d{5}$` {
		t.Errorf("GetByName = %+v, %v", rs, err)
	}
	list, _ := s.Rulesets().List(ctx)
	if len(list) != 2 || list[0].Name != "email" {
		t.Errorf("List = %+v", list)
	}

	rs.RegexPattern = `^\d{4}$`
	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Rulesets().Save(ctx, rs) })
	if got, _ := s.Rulesets().Get(ctx, "r2"); got.RegexPattern != `^\d{4}$` {
		t.Errorf("pattern = %q after update", got.RegexPattern)
	}

	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Rulesets().Delete(ctx, "r2") })
	_, err = s.Rulesets().Get(ctx, "r2")
	wantNotFound(t, "deleted ruleset", err)
}

func testWorkflows(t *testing.T, s ports.Store) {
	ctx := context.Background()
	w := workflow.Workflow{
		ID:   "w1",
		Name: "Task Flow",
		States: []workflow.State{
			{ID: "s1", WorkflowID: "w1", Name: "Open", IsInitial: true, OrderIndex: 0},
			{ID: "s2", WorkflowID: "w1", Name: "Done", OrderIndex: 1},
		},
		Transitions: []workflow.Transition{{FromStateID: "s1", ToStateID: "s2"}},
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Workflows().Save(ctx, w) })

	got, err := s.Workflows().GetByName(ctx, "Task Flow")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	got.CreatedAt, got.UpdatedAt = w.CreatedAt, w.UpdatedAt
	if !reflect.DeepEqual(got, w) {
		t.Errorf("GetByName = %+v\nwant %+v", got, w)
	}
	if !got.CanTransition("s1", "s2") || got.CanTransition("s2", "s1") {
		t.Error("transitions not directed")
	}

	w.States = w.States[:1]
	w.Transitions = nil
	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Workflows().Save(ctx, w) })
	got, _ = s.Workflows().Get(ctx, "w1")
	if len(got.States) != 1 || len(got.Transitions) != 0 {
		t.Errorf("after update = %+v", got)
	}
	if list, _ := s.Workflows().List(ctx); len(list) != 1 {
		t.Errorf("List = %d workflows", len(list))
	}

	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Workflows().Delete(ctx, "w1") })
	_, err = s.Workflows().Get(ctx, "w1")
	wantNotFound(t, "deleted workflow", err)
}

func dataObject(id, modelID string, at time.Time, data map[string]any) object.DataObject {
	return object.DataObject{ID: id, ModelID: modelID, Data: data, CreatedAt: at, UpdatedAt: at}
}

func testObjects(t *testing.T, s ports.Store) {
	ctx := context.Background()
	a := dataObject("o1", "m1", base, map[string]any{"title": "a", "qty": 3.0, "tags": []any{"x", "y"}})
	a.StateID = "s1"
	a.OwnerID = "alice"
	b := dataObject("o2", "m1", base.Add(time.Second), map[string]any{"title": "b"})
	c := dataObject("o3", "m2", base, map[string]any{})
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		for _, o := range []object.DataObject{a, b, c} {
			if err := tx.Objects().Create(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.Objects().Get(ctx, "o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got.Data, a.Data) || got.StateID != "s1" || got.OwnerID != "alice" || got.DeletedAt != nil {
		t.Errorf("Get = %+v", got)
	}

	deleted := b.SoftDelete(base.Add(time.Minute))
	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Objects().Update(ctx, deleted) })

	live, _ := s.Objects().List(ctx, "m1", false)
	if len(live) != 1 || live[0].ID != "o1" {
		t.Errorf("List live = %+v", live)
	}
	all, _ := s.Objects().List(ctx, "m1", true)
	if len(all) != 2 || all[0].ID != "o1" || all[1].ID != "o2" {
		t.Errorf("List all = %+v", all)
	}
	if !all[1].IsDeleted || all[1].DeletedAt == nil || !all[1].DeletedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("soft-deleted = %+v", all[1])
	}
	if n, _ := s.Objects().Count(ctx, "m1", false); n != 1 {
		t.Errorf("Count live = %d", n)
	}
	if n, _ := s.Objects().Count(ctx, "m1", true); n != 2 {
		t.Errorf("Count all = %d", n)
	}

	err = s.InTx(ctx, func(tx ports.Repos) error {
		return tx.Objects().Update(ctx, dataObject("missing", "m1", base, nil))
	})
	wantNotFound(t, "update missing", err)

	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Objects().Delete(ctx, "o3") })
	_, err = s.Objects().Get(ctx, "o3")
	wantNotFound(t, "hard-deleted object", err)

	var n int
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		var err error
		n, err = tx.Objects().DeleteByModel(ctx, "m1")
		return err
	})
	if n != 2 {
		t.Errorf("DeleteByModel = %d, want 2", n)
	}
}

func testFindByField(t *testing.T, s ports.Store) {
	ctx := context.Background()
	gone := dataObject("o3", "m1", base, map[string]any{"email": "old@example.com"}).SoftDelete(base)
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		for _, o := range []object.DataObject{
			dataObject("o1", "m1", base, map[string]any{"email": "ada@example.com", "first name": "Ada"}),
			dataObject("o2", "m2", base, map[string]any{"email": "bob@example.com"}),
			gone,
		} {
			if err := tx.Objects().Create(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})

	tests := []struct {
		name      string
		model     string
		field     string
		value     any
		excludeID string
		want      string
	}{
		{"match", "m1", "email", "ada@example.com", "", "o1"},
		{"field with space", "m1", "first name", "Ada", "", "o1"},
		{"excluded", "m1", "email", "ada@example.com", "o1", ""},
		{"other model", "m1", "email", "bob@example.com", "", ""},
		{"soft-deleted", "m1", "email", "old@example.com", "", ""},
		{"no value", "m1", "email", "nobody@example.com", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Objects().FindByField(ctx, tt.model, tt.field, tt.value, tt.excludeID)
			if tt.want == "" {
				wantNotFound(t, "FindByField", err)
				return
			}
			if err != nil || id != tt.want {
				t.Errorf("FindByField = %q, %v; want %q", id, err, tt.want)
			}
		})
	}
}

func testChangelog(t *testing.T, s ports.Store) {
	ctx := context.Background()
	entries := []changelog.Entry{
		{ID: "e1", DataObjectID: "o1", ModelID: "m1", ChangedAt: base, ChangedBy: "alice", ChangeType: changelog.ChangeCreate,
			Payload: changelog.SnapshotPayload{Data: map[string]any{"title": "a"}, StateID: "s1"}},
		{ID: "e2", DataObjectID: "o1", ModelID: "m1", ChangedAt: base.Add(time.Second), ChangedBy: "bob", ChangeType: changelog.ChangeUpdate,
			Payload: changelog.DiffPayload{Fields: []changelog.FieldChange{{Property: "title", Old: "a", New: "b"}}}},
		{ID: "e3", DataObjectID: "o1", ModelID: "m1", ChangedAt: base.Add(time.Second), ChangeType: changelog.ChangeRevertUpdate,
			Payload: changelog.RevertPayload{RevertOf: "e2", Fields: []changelog.FieldChange{{Property: "title", Old: "b", New: "a"}}}},
		{ID: "e4", DataObjectID: "o2", ModelID: "m2", ChangedAt: base.Add(2 * time.Second), ChangedBy: "bob", ChangeType: changelog.ChangeRestore,
			Payload: changelog.EmptyPayload{}},
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		for _, e := range entries {
			if err := tx.Changelog().Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	e, err := s.Changelog().Get(ctx, "e3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.ChangedBy != "" || !reflect.DeepEqual(e.Payload, entries[2].Payload) {
		t.Errorf("Get = %+v", e)
	}
	_, err = s.Changelog().Get(ctx, "nope")
	wantNotFound(t, "missing entry", err)

	from := base.Add(time.Second)
	tests := []struct {
		name  string
		f     changelog.Filter
		want  []string
		total int
	}{
		{"all newest first", changelog.Filter{}, []string{"e4", "e3", "e2", "e1"}, 4},
		{"object", changelog.Filter{EntityID: "o1"}, []string{"e3", "e2", "e1"}, 3},
		{"model", changelog.Filter{ModelID: "m2"}, []string{"e4"}, 1},
		{"user", changelog.Filter{UserID: "bob"}, []string{"e4", "e2"}, 2},
		{"from inclusive", changelog.Filter{From: &from}, []string{"e4", "e3", "e2"}, 3},
		{"to inclusive", changelog.Filter{To: &from}, []string{"e3", "e2", "e1"}, 3},
		{"second page", changelog.Filter{Page: 2, PageSize: 3}, []string{"e1"}, 4},
		{"past the end", changelog.Filter{Page: 3, PageSize: 3}, nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.Changelog().List(ctx, tt.f)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if total != tt.total || !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("List = %v (total %d), want %v (total %d)", ids, total, tt.want, tt.total)
			}
		})
	}

	var n int
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		var err error
		n, err = tx.Changelog().DeleteByObject(ctx, "o1")
		return err
	})
	if n != 3 {
		t.Errorf("DeleteByObject = %d, want 3", n)
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		var err error
		n, err = tx.Changelog().DeleteByModel(ctx, "m2")
		return err
	})
	if n != 1 {
		t.Errorf("DeleteByModel = %d, want 1", n)
	}
}

func testStructural(t *testing.T, s ports.Store) {
	ctx := context.Background()
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		for _, e := range []changelog.StructuralEntry{
			{ID: "s1", EntityType: changelog.EntityModel, EntityID: "m1", ChangeType: changelog.ChangeCreate, ChangedBy: "admin", ChangedAt: base,
				Changes: []changelog.FieldChange{{Property: "name", New: "Book"}}},
			{ID: "s2", EntityType: changelog.EntityWorkflow, EntityID: "w1", ChangeType: changelog.ChangeCreate, ChangedBy: "carol", ChangedAt: base},
			{ID: "s3", EntityType: changelog.EntityModel, EntityID: "m1", ChangeType: changelog.ChangeUpdate, ChangedBy: "admin", ChangedAt: base.Add(time.Second)},
		} {
			if err := tx.Structural().Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	got, total, err := s.Structural().List(ctx, changelog.Filter{EntityType: changelog.EntityModel, EntityID: "m1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || got[0].ID != "s3" || got[1].ID != "s1" {
		t.Errorf("List model = %+v", got)
	}
	if len(got[1].Changes) != 1 || got[1].Changes[0].New != "Book" {
		t.Errorf("changes = %+v", got[1].Changes)
	}
	if _, total, _ := s.Structural().List(ctx, changelog.Filter{EntityType: changelog.EntityWorkflow, UserID: "carol"}); total != 1 {
		t.Errorf("List workflow by carol = %d", total)
	}
}

func testLinks(t *testing.T, s ports.Store) {
	ctx := context.Background()
	soon := base.Add(time.Hour)
	later := base.Add(48 * time.Hour)
	links := []share.Link{
		{ID: "tok-a", Type: share.LinkCreate, ModelID: "m1", CreatedBy: "alice", CreatedAt: base, ExpiresAt: &soon, ExpiresOnSubmit: true},
		{ID: "tok-b", Type: share.LinkUpdate, ModelID: "m1", DataObjectID: "o1", CreatedBy: "alice", CreatedAt: base.Add(time.Second), ExpiresAt: &later},
		{ID: "tok-c", Type: share.LinkView, ModelID: "m1", DataObjectID: "o2", CreatedBy: "alice", CreatedAt: base.Add(2 * time.Second)},
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		for _, l := range links {
			if err := tx.Links().Create(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := s.Links().Get(ctx, "tok-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.ExpiresOnSubmit || got.ExpiresAt == nil || !got.ExpiresAt.Equal(soon) || got.DataObjectID != "" {
		t.Errorf("Get = %+v", got)
	}
	list, _ := s.Links().ListByModel(ctx, "m1")
	if len(list) != 3 || list[0].ID != "tok-c" {
		t.Errorf("ListByModel = %+v", list)
	}

	var n int
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		var err error
		n, err = tx.Links().DeleteExpired(ctx, soon)
		return err
	})
	if n != 1 {
		t.Errorf("DeleteExpired at expiry = %d, want 1", n)
	}
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		var err error
		n, err = tx.Links().DeleteByObject(ctx, "o1")
		return err
	})
	if n != 1 {
		t.Errorf("DeleteByObject = %d, want 1", n)
	}

	write(t, s, func(ctx context.Context, tx ports.Repos) error { return tx.Links().Delete(ctx, "tok-c") })
	err = s.InTx(ctx, func(tx ports.Repos) error { return tx.Links().Delete(ctx, "tok-c") })
	wantNotFound(t, "second delete", err)
	if list, _ := s.Links().ListByModel(ctx, "m1"); len(list) != 0 {
		t.Errorf("links left: %+v", list)
	}
}

// testConcurrentLinkDelete checks that of several transactions deleting the
// same link, exactly one sees it.
func testConcurrentLinkDelete(t *testing.T, s ports.Store) {
	ctx := context.Background()
	write(t, s, func(ctx context.Context, tx ports.Repos) error {
		return tx.Links().Create(ctx, share.Link{ID: "once", Type: share.LinkCreate, ModelID: "m1", CreatedAt: base, ExpiresOnSubmit: true})
	})

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx ports.Repos) error {
				if _, err := tx.Links().Get(ctx, "once"); err != nil {
					return err
				}
				return tx.Links().Delete(ctx, "once")
			})
			if err == nil {
				won.Add(1)
			} else if !errors.Is(err, ports.ErrNotFound) {
				t.Errorf("loser err = %v, want ErrNotFound", err)
			}
		}()
	}
	wg.Wait()
	if won.Load() != 1 {
		t.Errorf("%d transactions deleted the link, want 1", won.Load())
	}
}
