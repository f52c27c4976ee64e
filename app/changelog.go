package app

import (
	"context"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// ChangelogService lists the object and structural audit streams.
type ChangelogService struct {
	store  ports.Store
	logger zerolog.Logger
}

// NewChangelogService creates a new changelog service.
func NewChangelogService(store ports.Store, logger zerolog.Logger) *ChangelogService {
	return &ChangelogService{
		store:  store,
		logger: logger.With().Str("service", "changelog").Logger(),
	}
}

// Page is one page of changelog rows. Exactly one of Entries and
// Structural is populated, depending on the filter's entity type.
type Page struct {
	Entries    []changelog.Entry
	Structural []changelog.StructuralEntry
	Total      int
	Page       int
	PageSize   int
}

// List returns changelog rows matching f, newest first.
func (s *ChangelogService) List(ctx context.Context, f changelog.Filter) (Page, error) {
	f = f.Normalize()
	if !f.EntityType.IsValid() {
		return Page{}, &ValidationError{Fields: []FieldError{{Field: "entityType", Message: "unknown entity type", RejectedValue: string(f.EntityType)}}}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Page{}, &ValidationError{Fields: []FieldError{{Field: "to", Message: "must not be before from"}}}
	}

	p := Page{Page: f.Page, PageSize: f.PageSize}
	var err error
	if f.EntityType.IsStructural() {
		p.Structural, p.Total, err = s.store.Structural().List(ctx, f)
	} else {
		p.Entries, p.Total, err = s.store.Changelog().List(ctx, f)
	}
	if err != nil {
		return Page{}, classify("list changelog", err)
	}
	return p, nil
}

// History returns the full changelog of one object, newest first.
func (s *ChangelogService) History(ctx context.Context, objectID string) ([]changelog.Entry, error) {
	var all []changelog.Entry
	f := changelog.Filter{EntityType: changelog.EntityDataObject, EntityID: objectID, PageSize: changelog.MaxPageSize}
	for page := 1; ; page++ {
		f.Page = page
		entries, total, err := s.store.Changelog().List(ctx, f)
		if err != nil {
			return nil, classify("object history", err)
		}
		all = append(all, entries...)
		if len(entries) == 0 || len(all) >= total {
			return all, nil
		}
	}
}
