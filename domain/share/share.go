// Package share provides share links: capability tokens that let an
// anonymous holder perform one action on one model or object.
package share

import (
	"strings"
	"time"
)

// LinkType is the single action a link authorizes.
type LinkType string

const (
	LinkView   LinkType = "view"
	LinkCreate LinkType = "create"
	LinkUpdate LinkType = "update"
)

// IsValid returns true if the link type is known.
func (t LinkType) IsValid() bool {
	return t == LinkView || t == LinkCreate || t == LinkUpdate
}

// NeedsObject returns true if the link must be bound to an existing object.
func (t LinkType) NeedsObject() bool {
	return t == LinkView || t == LinkUpdate
}

// Link is a share link (immutable value type). The ID is the token.
type Link struct {
	ID              string
	Type            LinkType
	ModelID         string
	DataObjectID    string
	CreatedBy       string
	CreatedAt       time.Time
	ExpiresAt       *time.Time
	ExpiresOnSubmit bool
}

// IsExpired returns true if the link's expiry has passed at now.
func (l Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Allows returns true if the link authorizes the given action.
func (l Link) Allows(t LinkType) bool {
	return l.Type == t
}

// CheckResult represents the outcome of link validation.
type CheckResult struct {
	Valid  bool
	Errors map[string]string
}

// Check validates a link before it is stored (pure function).
func Check(l Link) CheckResult {
	errors := make(map[string]string)

	if !l.Type.IsValid() {
		errors["type"] = "Type must be view, create or update"
	}
	if strings.TrimSpace(l.ModelID) == "" {
		errors["modelId"] = "Model is required"
	}
	if l.Type.NeedsObject() && l.DataObjectID == "" {
		errors["dataObjectId"] = "Object is required for view and update links"
	}
	if l.Type == LinkCreate && l.DataObjectID != "" {
		errors["dataObjectId"] = "Create links cannot be bound to an object"
	}
	if l.Type == LinkView && l.ExpiresOnSubmit {
		errors["expiresOnSubmit"] = "View links cannot be submitted"
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(l.CreatedAt) {
		errors["expiresAt"] = "Expiry must be in the future"
	}

	return CheckResult{Valid: len(errors) == 0, Errors: errors}
}
