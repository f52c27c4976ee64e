package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrNotFound            = ports.ErrNotFound
	ErrLinkExpired         = errors.New("share link expired")
	ErrLinkTypeMismatch    = errors.New("share link does not allow this action")
	ErrCreateNotRevertible = errors.New("create entries cannot be reverted; delete the object instead")
	ErrRevertOfRevert      = errors.New("revert entries cannot be reverted")
	ErrNameTaken           = errors.New("name already in use")
	ErrRulesetInUse        = errors.New("validation ruleset is referenced by properties")
	ErrModelInUse          = errors.New("model still has data or is referenced")
	ErrNotDeleted          = errors.New("object is not in the recycle bin")
)

// FieldError is one field-level problem. Always safe to show end users.
type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue,omitempty"`
}

// ValidationError carries every field error found in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the first error on a field.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldError{}, false
}

// UniqueViolationError reports a collision on a unique property.
type UniqueViolationError struct {
	Field string
	Value any
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("value %v for %q is already used by another record", e.Value, e.Field)
}

// TransitionError reports an illegal workflow state change.
type TransitionError = workflow.TransitionError

// ConfigError is an administrator mistake in schema metadata, such as a
// malformed ruleset regex. It is never a per-record failure.
type ConfigError struct {
	Subject string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Subject, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage failure. Its detail must not reach
// unauthenticated callers.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

var sentinels = []error{
	ErrNotFound, ErrLinkExpired, ErrLinkTypeMismatch, ErrCreateNotRevertible,
	ErrRevertOfRevert, ErrNameTaken, ErrRulesetInUse, ErrModelInUse,
	ErrNotDeleted,
}

// classify passes domain errors through and wraps anything else as a
// PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err
		}
	}
	var (
		ve *ValidationError
		ue *UniqueViolationError
		te *TransitionError
		ce *ConfigError
		pe *PersistenceError
	)
	if errors.As(err, &ve) || errors.As(err, &ue) || errors.As(err, &te) ||
		errors.As(err, &ce) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// lookup maps a store miss to a NotFound naming the entity.
func lookup(kind, id string, err error) error {
	if errors.Is(err, ports.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}

// checkErrors turns a domain check map into a ValidationError.
func checkErrors(errs map[string]string, prefix string) error {
	if len(errs) == 0 {
		return nil
	}
	ve := &ValidationError{}
	for _, field := range sortedKeys(errs) {
		ve.Fields = append(ve.Fields, FieldError{Field: prefix + field, Message: errs[field]})
	}
	return ve
}
