package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/ports"
)

func TestStore_InTxCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(tx ports.Repos) error {
		return tx.Models().Save(ctx, schema.Model{ID: "m1", Name: "Task"})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}

	m, err := s.Models().Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Name != "Task" {
		t.Errorf("Name = %q", m.Name)
	}
}

func TestStore_InTxRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx ports.Repos) error {
		if err := tx.Objects().Create(ctx, object.DataObject{ID: "o1", ModelID: "m1"}); err != nil {
			return err
		}
		if _, err := tx.Objects().Get(ctx, "o1"); err != nil {
			t.Errorf("write not visible inside tx: %v", err)
		}
		if _, err := s.Objects().Get(ctx, "o1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("uncommitted write visible outside tx: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	if _, err := s.Objects().Get(ctx, "o1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled back object still present: %v", err)
	}
}

func TestObjectStore_FindByField(t *testing.T) {
	s := New()
	ctx := context.Background()
	objs := s.Objects()

	now := time.Now()
	_ = objs.Create(ctx, object.DataObject{ID: "a", ModelID: "m", Data: map[string]any{"email": "x@y.z"}})
	_ = objs.Create(ctx, object.DataObject{ID: "b", ModelID: "m", Data: map[string]any{"email": "gone@y.z"}, IsDeleted: true, DeletedAt: &now})
	_ = objs.Create(ctx, object.DataObject{ID: "c", ModelID: "other", Data: map[string]any{"email": "x@y.z"}})

	tests := []struct {
		name    string
		value   string
		exclude string
		wantID  string
	}{
		{"match", "x@y.z", "", "a"},
		{"excluded self", "x@y.z", "a", ""},
		{"deleted ignored", "gone@y.z", "", ""},
		{"no match", "nobody", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := objs.FindByField(ctx, "m", "email", tt.value, tt.exclude)
			if tt.wantID == "" {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("FindByField() = %q, %v; want ErrNotFound", id, err)
				}
				return
			}
			if err != nil || id != tt.wantID {
				t.Errorf("FindByField() = %q, %v; want %q", id, err, tt.wantID)
			}
		})
	}
}

func TestObjectStore_ListOrderAndDeleted(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"z", "a", "m"} {
		_ = s.Objects().Create(ctx, object.DataObject{ID: id, ModelID: "m"})
	}
	_ = s.Objects().Update(ctx, object.DataObject{ID: "a", ModelID: "m", IsDeleted: true, DeletedAt: &now})

	live, _ := s.Objects().List(ctx, "m", false)
	if len(live) != 2 || live[0].ID != "z" || live[1].ID != "m" {
		t.Errorf("live list = %v", ids(live))
	}
	all, _ := s.Objects().List(ctx, "m", true)
	if len(all) != 3 || all[1].ID != "a" {
		t.Errorf("full list = %v", ids(all))
	}
	if n, _ := s.Objects().Count(ctx, "m", false); n != 2 {
		t.Errorf("Count() = %d", n)
	}
}

func ids(objs []object.DataObject) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func TestChangelogStore_ListFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, by := range []string{"u1", "u2", "u1"} {
		err := s.Changelog().Append(ctx, changelog.Entry{
			ID:           string(rune('a' + i)),
			DataObjectID: "o1",
			ModelID:      "m1",
			ChangedBy:    by,
			ChangedAt:    base.Add(time.Duration(i) * time.Hour),
			ChangeType:   changelog.ChangeRestore,
			Payload:      changelog.EmptyPayload{},
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, total, _ := s.Changelog().List(ctx, changelog.Filter{EntityID: "o1"})
	if total != 3 || all[0].ID != "c" {
		t.Errorf("List() total=%d first=%q, want 3 newest-first", total, all[0].ID)
	}

	mine, total, _ := s.Changelog().List(ctx, changelog.Filter{UserID: "u1"})
	if total != 2 || len(mine) != 2 {
		t.Errorf("user filter total = %d", total)
	}

	pg, total, _ := s.Changelog().List(ctx, changelog.Filter{Page: 2, PageSize: 2})
	if total != 3 || len(pg) != 1 || pg[0].ID != "a" {
		t.Errorf("page 2 = %v (total %d)", pg, total)
	}

	err := s.Changelog().Append(ctx, changelog.Entry{ID: "bad", ChangeType: changelog.ChangeUpdate, Payload: changelog.EmptyPayload{}})
	if err == nil {
		t.Error("mismatched payload should be rejected")
	}
}

func TestLinkStore_DeleteSemantics(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)

	_ = s.Links().Create(ctx, share.Link{ID: "tok1", ModelID: "m1", Type: share.LinkCreate})
	_ = s.Links().Create(ctx, share.Link{ID: "tok2", ModelID: "m1", Type: share.LinkCreate, ExpiresAt: &past})

	if err := s.Links().Delete(ctx, "tok1"); err != nil {
		t.Fatalf("first Delete() = %v", err)
	}
	if err := s.Links().Delete(ctx, "tok1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
	if n, _ := s.Links().DeleteExpired(ctx, now); n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
}
