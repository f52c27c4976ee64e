package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/ports"
)

type linkStore struct{ r repos }

// Get retrieves a link by token.
func (s linkStore) Get(ctx context.Context, id string) (l share.Link, err error) {
	s.r.read(func(st *state) {
		found, ok := st.links[id]
		if !ok {
			err = ErrNotFound
			return
		}
		l = found
	})
	return l, err
}

// Create stores a new link.
func (s linkStore) Create(ctx context.Context, l share.Link) (err error) {
	s.r.write(func(st *state) {
		if _, exists := st.links[l.ID]; exists {
			err = errors.New("link already exists")
			return
		}
		st.links[l.ID] = l
	})
	return err
}

// Delete removes a link.
func (s linkStore) Delete(ctx context.Context, id string) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.links[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.links, id)
	})
	return err
}

// ListByModel returns a model's links, newest first.
func (s linkStore) ListByModel(ctx context.Context, modelID string) ([]share.Link, error) {
	var out []share.Link
	s.r.read(func(st *state) {
		for _, l := range st.links {
			if l.ModelID == modelID {
				out = append(out, l)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteByModel removes a model's links.
func (s linkStore) DeleteByModel(ctx context.Context, modelID string) (int, error) {
	return s.deleteWhere(func(l share.Link) bool { return l.ModelID == modelID }), nil
}

// DeleteByObject removes the links bound to an object.
func (s linkStore) DeleteByObject(ctx context.Context, objectID string) (int, error) {
	return s.deleteWhere(func(l share.Link) bool { return l.DataObjectID == objectID }), nil
}

// DeleteExpired removes links whose expiry has passed.
func (s linkStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.deleteWhere(func(l share.Link) bool { return l.IsExpired(now) }), nil
}

func (s linkStore) deleteWhere(match func(share.Link) bool) (n int) {
	s.r.write(func(st *state) {
		for id, l := range st.links {
			if match(l) {
				delete(st.links, id)
				n++
			}
		}
	})
	return n
}

var _ ports.LinkStore = linkStore{}
