package memory

import (
	"context"
	"sort"

	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/ports"
)

type objectStore struct{ r repos }

// Get retrieves an object by ID, including soft-deleted ones.
func (s objectStore) Get(ctx context.Context, id string) (o object.DataObject, err error) {
	s.r.read(func(st *state) {
		found, ok := st.objects[id]
		if !ok {
			err = ErrNotFound
			return
		}
		o = found.Clone()
	})
	return o, err
}

// List returns a model's objects in insertion order.
func (s objectStore) List(ctx context.Context, modelID string, includeDeleted bool) ([]object.DataObject, error) {
	var out []object.DataObject
	seq := make(map[string]int)
	s.r.read(func(st *state) {
		for _, o := range st.objects {
			if o.ModelID != modelID || (o.IsDeleted && !includeDeleted) {
				continue
			}
			out = append(out, o.Clone())
			seq[o.ID] = st.seq[o.ID]
		}
	})
	sort.Slice(out, func(i, j int) bool { return seq[out[i].ID] < seq[out[j].ID] })
	return out, nil
}

// Count counts a model's objects.
func (s objectStore) Count(ctx context.Context, modelID string, includeDeleted bool) (n int, err error) {
	s.r.read(func(st *state) {
		for _, o := range st.objects {
			if o.ModelID == modelID && (includeDeleted || !o.IsDeleted) {
				n++
			}
		}
	})
	return n, nil
}

// FindByField scans the model's live objects for a field value.
func (s objectStore) FindByField(ctx context.Context, modelID, field string, value any, excludeID string) (id string, err error) {
	err = ErrNotFound
	s.r.read(func(st *state) {
		for _, o := range st.objects {
			if o.ModelID != modelID || o.IsDeleted || o.ID == excludeID {
				continue
			}
			if v, ok := o.Data[field]; ok && object.Equal(v, value) {
				id, err = o.ID, nil
				return
			}
		}
	})
	return id, err
}

// Create stores a new object.
func (s objectStore) Create(ctx context.Context, o object.DataObject) error {
	s.r.write(func(st *state) {
		st.objects[o.ID] = o.Clone()
		st.nextSeq++
		st.seq[o.ID] = st.nextSeq
	})
	return nil
}

// Update overwrites an existing object.
func (s objectStore) Update(ctx context.Context, o object.DataObject) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.objects[o.ID]; !ok {
			err = ErrNotFound
			return
		}
		st.objects[o.ID] = o.Clone()
	})
	return err
}

// Delete physically removes an object.
func (s objectStore) Delete(ctx context.Context, id string) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.objects[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.objects, id)
		delete(st.seq, id)
	})
	return err
}

// DeleteByModel physically removes every object of a model.
func (s objectStore) DeleteByModel(ctx context.Context, modelID string) (n int, err error) {
	s.r.write(func(st *state) {
		for id, o := range st.objects {
			if o.ModelID == modelID {
				delete(st.objects, id)
				delete(st.seq, id)
				n++
			}
		}
	})
	return n, nil
}

var _ ports.ObjectStore = objectStore{}
