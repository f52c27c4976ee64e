package changelog

import "time"

// EntityType names what a changelog listing is about.
type EntityType string

const (
	EntityDataObject EntityType = "data_object"
	EntityModel      EntityType = "model"
	EntityWorkflow   EntityType = "workflow"
	EntityRuleset    EntityType = "validation_ruleset"
)

// IsValid returns true if the entity type is known.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityDataObject, EntityModel, EntityWorkflow, EntityRuleset:
		return true
	}
	return false
}

// IsStructural returns true for schema entities.
func (e EntityType) IsStructural() bool {
	return e == EntityModel || e == EntityWorkflow || e == EntityRuleset
}

// StructuralEntry records a change to a model, workflow or ruleset.
// Informational only; never reverted.
type StructuralEntry struct {
	ID         string
	EntityType EntityType
	EntityID   string
	ChangeType ChangeType // CREATE, UPDATE or DELETE
	Changes    []FieldChange
	ChangedBy  string
	ChangedAt  time.Time
}

// Filter selects changelog rows. Zero values match everything.
type Filter struct {
	EntityType EntityType
	EntityID   string
	ModelID    string
	UserID     string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// Paging defaults.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	MaxPage         = 1_000_000
)

// Normalize fills paging defaults and clamps the page size.
func (f Filter) Normalize() Filter {
	if f.EntityType == "" {
		f.EntityType = EntityDataObject
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the row offset of the page. Page and size are clamped
// first, so the result never overflows.
func (f Filter) Offset() int {
	page, size := min(max(f.Page, 1), MaxPage), min(max(f.PageSize, 0), MaxPageSize)
	return (page - 1) * size
}

// InRange reports whether a time falls inside the filter's range.
func (f Filter) InRange(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && t.After(*f.To) {
		return false
	}
	return true
}
