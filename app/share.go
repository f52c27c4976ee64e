package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// tokenLength is the number of hex characters in a share link token.
const tokenLength = 40

// ShareService is the sharing gateway. Submissions go through the same
// object service paths as internal writes and are attributed to no actor.
type ShareService struct {
	store      ports.Store
	objects    *ObjectService
	random     ports.Random
	clock      ports.Clock
	logger     zerolog.Logger
	defaultTTL atomic.Int64 // time.Duration
}

// ShareServiceConfig contains configuration for ShareService.
type ShareServiceConfig struct {
	DefaultTTL time.Duration // Applied when a link is created without expiry; 0 = never
}

// NewShareService creates a new sharing gateway.
func NewShareService(store ports.Store, objects *ObjectService, random ports.Random, clock ports.Clock, logger zerolog.Logger, cfg ShareServiceConfig) *ShareService {
	s := &ShareService{
		store:   store,
		objects: objects,
		random:  random,
		clock:   clock,
		logger:  logger.With().Str("service", "share").Logger(),
	}
	s.defaultTTL.Store(int64(cfg.DefaultTTL))
	return s
}

// SetDefaultTTL changes the expiry applied to new links. Used on config reload.
func (s *ShareService) SetDefaultTTL(ttl time.Duration) {
	s.defaultTTL.Store(int64(ttl))
}

// LinkInput describes a new share link.
type LinkInput struct {
	ModelID         string
	DataObjectID    string
	Type            share.LinkType
	ExpiresAt       *time.Time
	ExpiresOnSubmit bool
}

// Resolved is what a link holder may see.
type Resolved struct {
	Link   share.Link
	Model  schema.Model
	Object *object.DataObject // nil for create links
}

// CreateLink issues a new link token.
func (s *ShareService) CreateLink(ctx context.Context, in LinkInput, actor string) (share.Link, error) {
	token, err := s.random.String(tokenLength)
	if err != nil {
		return share.Link{}, classify("create share link", err)
	}

	now := s.clock.Now().UTC()
	l := share.Link{
		ID:              token,
		Type:            in.Type,
		ModelID:         in.ModelID,
		DataObjectID:    in.DataObjectID,
		CreatedBy:       actor,
		CreatedAt:       now,
		ExpiresAt:       in.ExpiresAt,
		ExpiresOnSubmit: in.ExpiresOnSubmit,
	}
	if ttl := time.Duration(s.defaultTTL.Load()); l.ExpiresAt == nil && ttl > 0 {
		exp := now.Add(ttl)
		l.ExpiresAt = &exp
	}
	if r := share.Check(l); !r.Valid {
		return share.Link{}, checkErrors(r.Errors, "")
	}

	err = s.store.InTx(ctx, func(tx ports.Repos) error {
		if _, err := tx.Models().Get(ctx, l.ModelID); err != nil {
			return lookup("model", l.ModelID, err)
		}
		if l.DataObjectID != "" {
			o, err := liveObject(ctx, tx, l.DataObjectID)
			if err != nil {
				return err
			}
			if o.ModelID != l.ModelID {
				return notFound("object", l.DataObjectID)
			}
		}
		return tx.Links().Create(ctx, l)
	})
	if err != nil {
		return share.Link{}, classify("create share link", err)
	}

	s.logger.Info().Str("model_id", l.ModelID).Str("type", string(l.Type)).Str("actor", actor).Msg("share link created")
	return l, nil
}

// Resolve returns the link with the model and, for view and update links,
// the bound object.
func (s *ShareService) Resolve(ctx context.Context, token string) (Resolved, error) {
	l, err := s.usableLink(ctx, s.store, token)
	if err != nil {
		return Resolved{}, classify("resolve share link", err)
	}
	m, err := s.store.Models().Get(ctx, l.ModelID)
	if err != nil {
		return Resolved{}, classify("resolve share link", lookup("model", l.ModelID, err))
	}

	res := Resolved{Link: l, Model: m}
	if l.Type.NeedsObject() {
		o, err := liveObject(ctx, s.store, l.DataObjectID)
		if err != nil {
			return Resolved{}, classify("resolve share link", err)
		}
		res.Object = &o
	}
	return res, nil
}

// Submit performs the link's create or update with formData. A single-use
// link is deleted in the same transaction as the write, so of two
// concurrent submissions at most one commits.
func (s *ShareService) Submit(ctx context.Context, token string, formData map[string]any) (object.DataObject, error) {
	var out object.DataObject
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		l, err := s.usableLink(ctx, tx, token)
		if err != nil {
			return err
		}

		switch {
		case l.Allows(share.LinkCreate):
			out, err = s.objects.create(ctx, tx, l.ModelID, formData, "")
		case l.Allows(share.LinkUpdate):
			out, err = s.objects.update(ctx, tx, l.ModelID, l.DataObjectID, UpdateInput{Data: formData}, "")
		default:
			return ErrLinkTypeMismatch
		}
		if err != nil {
			return err
		}

		if l.ExpiresOnSubmit {
			if err := tx.Links().Delete(ctx, l.ID); err != nil {
				if errors.Is(err, ports.ErrNotFound) {
					return ErrLinkExpired
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return object.DataObject{}, classify("submit share link", err)
	}
	s.logger.Debug().Str("object_id", out.ID).Msg("share link submitted")
	return out, nil
}

// ListLinks returns the links of a model.
func (s *ShareService) ListLinks(ctx context.Context, modelID string) ([]share.Link, error) {
	links, err := s.store.Links().ListByModel(ctx, modelID)
	return links, classify("list share links", err)
}

// DeleteLink revokes a link.
func (s *ShareService) DeleteLink(ctx context.Context, token string) error {
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		return lookup("share link", "", tx.Links().Delete(ctx, token))
	})
	return classify("delete share link", err)
}

// PurgeExpired removes links whose expiry has passed.
func (s *ShareService) PurgeExpired(ctx context.Context) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(tx ports.Repos) error {
		var err error
		n, err = tx.Links().DeleteExpired(ctx, s.clock.Now().UTC())
		return err
	})
	if err != nil {
		return 0, classify("purge share links", err)
	}
	if n > 0 {
		s.logger.Info().Int("links", n).Msg("expired share links purged")
	}
	return n, nil
}

func (s *ShareService) usableLink(ctx context.Context, repos ports.Repos, token string) (share.Link, error) {
	l, err := repos.Links().Get(ctx, token)
	if err != nil {
		// The token is a secret; keep it out of the error text.
		return share.Link{}, lookup("share link", "", err)
	}
	if l.IsExpired(s.clock.Now()) {
		return share.Link{}, ErrLinkExpired
	}
	return l, nil
}
