// Package memory provides an in-memory ports.Store. Transactions work on a
// private copy of the data that replaces the committed copy on success, so
// readers never see uncommitted writes.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
)

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = ports.ErrNotFound

type state struct {
	models     map[string]schema.Model
	rulesets   map[string]schema.ValidationRuleset
	workflows  map[string]workflow.Workflow
	objects    map[string]object.DataObject
	entries    []changelog.Entry
	structural []changelog.StructuralEntry
	links      map[string]share.Link
	seq        map[string]int // object id -> insertion order
	nextSeq    int
}

func newState() *state {
	return &state{
		models:    make(map[string]schema.Model),
		rulesets:  make(map[string]schema.ValidationRuleset),
		workflows: make(map[string]workflow.Workflow),
		objects:   make(map[string]object.DataObject),
		links:     make(map[string]share.Link),
		seq:       make(map[string]int),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.models {
		c.models[k] = copyModel(v)
	}
	for k, v := range s.rulesets {
		c.rulesets[k] = v
	}
	for k, v := range s.workflows {
		c.workflows[k] = copyWorkflow(v)
	}
	for k, v := range s.objects {
		c.objects[k] = v.Clone()
	}
	c.entries = append([]changelog.Entry(nil), s.entries...)
	c.structural = append([]changelog.StructuralEntry(nil), s.structural...)
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.nextSeq = s.nextSeq
	return c
}

// Store is an in-memory implementation of ports.Store.
type Store struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.RWMutex
	st   *state
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) committed() repos {
	return repos{mu: &s.mu, st: func() *state { return s.st }}
}

func (s *Store) Models() ports.ModelStore             { return modelStore{s.committed()} }
func (s *Store) Rulesets() ports.RulesetStore         { return rulesetStore{s.committed()} }
func (s *Store) Workflows() ports.WorkflowStore       { return workflowStore{s.committed()} }
func (s *Store) Objects() ports.ObjectStore           { return objectStore{s.committed()} }
func (s *Store) Changelog() ports.ChangelogStore      { return changelogStore{s.committed()} }
func (s *Store) Structural() ports.StructuralLogStore { return structuralStore{s.committed()} }
func (s *Store) Links() ports.LinkStore               { return linkStore{s.committed()} }

// InTx runs fn against a private copy of the data and publishes the copy
// only if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx ports.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	var local sync.RWMutex
	if err := fn(repos{mu: &local, st: func() *state { return work }}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// repos binds the stores to either the committed data or a transaction copy.
type repos struct {
	mu *sync.RWMutex
	st func() *state
}

func (r repos) Models() ports.ModelStore             { return modelStore{r} }
func (r repos) Rulesets() ports.RulesetStore         { return rulesetStore{r} }
func (r repos) Workflows() ports.WorkflowStore       { return workflowStore{r} }
func (r repos) Objects() ports.ObjectStore           { return objectStore{r} }
func (r repos) Changelog() ports.ChangelogStore      { return changelogStore{r} }
func (r repos) Structural() ports.StructuralLogStore { return structuralStore{r} }
func (r repos) Links() ports.LinkStore               { return linkStore{r} }

func (r repos) read(fn func(st *state)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.st())
}

func (r repos) write(fn func(st *state)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.st())
}

var (
	_ ports.Store = (*Store)(nil)
	_ ports.Repos = repos{}
)
