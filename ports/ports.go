// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/domain/workflow"
)

// ErrNotFound is returned by every store when a row does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides key hashing for the auth collaborator.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Schema Registry Ports
// -----------------------------------------------------------------------------

// ModelStore persists models together with their ordered properties.
type ModelStore interface {
	// Get retrieves a model and its properties by ID.
	Get(ctx context.Context, id string) (schema.Model, error)

	// GetByName retrieves a model by its unique name.
	GetByName(ctx context.Context, name string) (schema.Model, error)

	// List returns all models ordered by name.
	List(ctx context.Context) ([]schema.Model, error)

	// ListByWorkflow returns the models attached to a workflow.
	ListByWorkflow(ctx context.Context, workflowID string) ([]schema.Model, error)

	// CountByRuleset counts properties referencing a validation ruleset.
	CountByRuleset(ctx context.Context, rulesetID string) (int, error)

	// Save inserts or updates the model row and replaces all its properties.
	Save(ctx context.Context, m schema.Model) error

	// Delete removes a model and its properties.
	Delete(ctx context.Context, id string) error
}

// RulesetStore persists validation rulesets.
type RulesetStore interface {
	Get(ctx context.Context, id string) (schema.ValidationRuleset, error)
	GetByName(ctx context.Context, name string) (schema.ValidationRuleset, error)
	List(ctx context.Context) ([]schema.ValidationRuleset, error)
	Save(ctx context.Context, r schema.ValidationRuleset) error
	Delete(ctx context.Context, id string) error
}

// WorkflowStore persists workflows with their states and transitions.
type WorkflowStore interface {
	Get(ctx context.Context, id string) (workflow.Workflow, error)
	GetByName(ctx context.Context, name string) (workflow.Workflow, error)
	List(ctx context.Context) ([]workflow.Workflow, error)

	// Save inserts or updates the workflow and replaces states and transitions.
	Save(ctx context.Context, w workflow.Workflow) error

	Delete(ctx context.Context, id string) error
}

// -----------------------------------------------------------------------------
// Object Store Ports
// -----------------------------------------------------------------------------

// ObjectStore persists data objects.
type ObjectStore interface {
	// Get retrieves an object by ID, including soft-deleted ones.
	Get(ctx context.Context, id string) (object.DataObject, error)

	// List returns the objects of a model, oldest first.
	List(ctx context.Context, modelID string, includeDeleted bool) ([]object.DataObject, error)

	// Count counts the objects of a model.
	Count(ctx context.Context, modelID string, includeDeleted bool) (int, error)

	// FindByField returns the id of a non-deleted object of the model whose
	// field equals value, ignoring excludeID. Returns ErrNotFound if none.
	FindByField(ctx context.Context, modelID, field string, value any, excludeID string) (string, error)

	// Create stores a new object.
	Create(ctx context.Context, o object.DataObject) error

	// Update overwrites an existing object.
	Update(ctx context.Context, o object.DataObject) error

	// Delete physically removes an object.
	Delete(ctx context.Context, id string) error

	// DeleteByModel physically removes every object of a model.
	DeleteByModel(ctx context.Context, modelID string) (int, error)
}

// -----------------------------------------------------------------------------
// Changelog Ports
// -----------------------------------------------------------------------------

// ChangelogStore persists data-object changelog entries (append-only).
type ChangelogStore interface {
	Append(ctx context.Context, e changelog.Entry) error
	Get(ctx context.Context, id string) (changelog.Entry, error)

	// List returns entries matching the filter, newest first, and the total
	// number of matches.
	List(ctx context.Context, f changelog.Filter) ([]changelog.Entry, int, error)

	// DeleteByObject removes the entries of a hard-deleted object.
	DeleteByObject(ctx context.Context, objectID string) (int, error)

	// DeleteByModel removes the entries of every object of a model.
	DeleteByModel(ctx context.Context, modelID string) (int, error)
}

// StructuralLogStore persists schema changelog entries (append-only).
type StructuralLogStore interface {
	Append(ctx context.Context, e changelog.StructuralEntry) error
	List(ctx context.Context, f changelog.Filter) ([]changelog.StructuralEntry, int, error)
}

// -----------------------------------------------------------------------------
// Sharing Ports
// -----------------------------------------------------------------------------

// LinkStore persists share links.
type LinkStore interface {
	Get(ctx context.Context, id string) (share.Link, error)
	Create(ctx context.Context, l share.Link) error

	// Delete removes a link. Returns ErrNotFound if it was already gone,
	// which is how concurrent single-use submissions are told apart.
	Delete(ctx context.Context, id string) error

	ListByModel(ctx context.Context, modelID string) ([]share.Link, error)
	DeleteByModel(ctx context.Context, modelID string) (int, error)
	DeleteByObject(ctx context.Context, objectID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// -----------------------------------------------------------------------------
// Transaction Ports
// -----------------------------------------------------------------------------

// Repos groups every store bound to the same connection or transaction.
type Repos interface {
	Models() ModelStore
	Rulesets() RulesetStore
	Workflows() WorkflowStore
	Objects() ObjectStore
	Changelog() ChangelogStore
	Structural() StructuralLogStore
	Links() LinkStore
}

// Store is the persistence engine. Reads go through the embedded Repos;
// every mutation runs inside InTx, which commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	Repos
	InTx(ctx context.Context, fn func(tx Repos) error) error
	Ping(ctx context.Context) error
	Close() error
}
