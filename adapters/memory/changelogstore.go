package memory

import (
	"context"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/ports"
)

type changelogStore struct{ r repos }

// Append adds an entry.
func (s changelogStore) Append(ctx context.Context, e changelog.Entry) error {
	if err := changelog.CheckPayload(e.ChangeType, e.Payload); err != nil {
		return err
	}
	s.r.write(func(st *state) { st.entries = append(st.entries, e) })
	return nil
}

// Get retrieves an entry by ID.
func (s changelogStore) Get(ctx context.Context, id string) (e changelog.Entry, err error) {
	err = ErrNotFound
	s.r.read(func(st *state) {
		for _, found := range st.entries {
			if found.ID == id {
				e, err = found, nil
				return
			}
		}
	})
	return e, err
}

// List returns matching entries, newest first.
func (s changelogStore) List(ctx context.Context, f changelog.Filter) ([]changelog.Entry, int, error) {
	f = f.Normalize()
	var matched []changelog.Entry
	s.r.read(func(st *state) {
		for i := len(st.entries) - 1; i >= 0; i-- {
			e := st.entries[i]
			if f.EntityID != "" && e.DataObjectID != f.EntityID {
				continue
			}
			if f.ModelID != "" && e.ModelID != f.ModelID {
				continue
			}
			if f.UserID != "" && e.ChangedBy != f.UserID {
				continue
			}
			if !f.InRange(e.ChangedAt) {
				continue
			}
			matched = append(matched, e)
		}
	})
	return page(matched, f), len(matched), nil
}

// DeleteByObject removes an object's entries.
func (s changelogStore) DeleteByObject(ctx context.Context, objectID string) (int, error) {
	return s.deleteWhere(func(e changelog.Entry) bool { return e.DataObjectID == objectID }), nil
}

// DeleteByModel removes the entries of a model's objects.
func (s changelogStore) DeleteByModel(ctx context.Context, modelID string) (int, error) {
	return s.deleteWhere(func(e changelog.Entry) bool { return e.ModelID == modelID }), nil
}

func (s changelogStore) deleteWhere(match func(changelog.Entry) bool) (n int) {
	s.r.write(func(st *state) {
		kept := st.entries[:0:0]
		for _, e := range st.entries {
			if match(e) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		st.entries = kept
	})
	return n
}

type structuralStore struct{ r repos }

// Append adds a structural entry.
func (s structuralStore) Append(ctx context.Context, e changelog.StructuralEntry) error {
	s.r.write(func(st *state) { st.structural = append(st.structural, e) })
	return nil
}

// List returns matching structural entries, newest first.
func (s structuralStore) List(ctx context.Context, f changelog.Filter) ([]changelog.StructuralEntry, int, error) {
	f = f.Normalize()
	var matched []changelog.StructuralEntry
	s.r.read(func(st *state) {
		for i := len(st.structural) - 1; i >= 0; i-- {
			e := st.structural[i]
			if f.EntityType.IsStructural() && e.EntityType != f.EntityType {
				continue
			}
			if f.EntityID != "" && e.EntityID != f.EntityID {
				continue
			}
			if f.UserID != "" && e.ChangedBy != f.UserID {
				continue
			}
			if !f.InRange(e.ChangedAt) {
				continue
			}
			matched = append(matched, e)
		}
	})
	return page(matched, f), len(matched), nil
}

func page[T any](rows []T, f changelog.Filter) []T {
	start := f.Offset()
	if start >= len(rows) {
		return nil
	}
	end := start + f.PageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

var (
	_ ports.ChangelogStore     = changelogStore{}
	_ ports.StructuralLogStore = structuralStore{}
)
