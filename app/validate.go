package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// Validator is the metadata-driven validation pipeline. It holds no schema
// state: every call re-reads rulesets and related objects through the
// Repos it is given, so it always sees the current definitions.
type Validator struct {
	clock  ports.Clock
	logger zerolog.Logger
}

// NewValidator creates a validation pipeline.
func NewValidator(clock ports.Clock, logger zerolog.Logger) *Validator {
	return &Validator{
		clock:  clock,
		logger: logger.With().Str("service", "validator").Logger(),
	}
}

// Validate checks candidate against model m and returns the coerced values.
//
// With existing == nil the candidate is a full new record: every property
// is checked and the result is the complete record, defaults and
// auto-stamps included. Otherwise only the fields present in candidate are
// checked and the result holds just those fields, with nil marking a
// cleared value, plus auto-update stamps.
//
// Field errors are collected into a *ValidationError. Uniqueness runs only
// when every field passed and reports the first collision as a
// *UniqueViolationError. Ruleset problems fail fast with *ConfigError.
func (v *Validator) Validate(ctx context.Context, tx ports.Repos, m schema.Model, candidate map[string]any, existing *object.DataObject) (map[string]any, error) {
	run := &validation{
		v:        v,
		ctx:      ctx,
		tx:       tx,
		model:    m,
		patterns: make(map[string]*regexp.Regexp),
		out:      make(map[string]any),
	}
	creating := existing == nil
	now := v.clock.Now()

	for name := range candidate {
		if _, ok := m.Property(name); !ok {
			run.fail(name, "is not a property of "+m.Name, candidate[name])
		}
	}

	var touched []schema.Property
	for _, p := range m.Properties {
		raw, present := candidate[p.Name]

		switch {
		case creating && p.IsAutoStamped():
			run.out[p.Name] = p.Stamp(now)
			continue
		case !creating && p.AutoSetOnUpdate:
			run.out[p.Name] = p.Stamp(now)
			continue
		case !creating && p.AutoSetOnCreate:
			// Creation stamps are immutable.
			continue
		}

		if !present {
			if !creating {
				continue
			}
			if p.DefaultValue != nil {
				raw = p.DefaultValue
			}
		}

		if err := run.check(p, raw); err != nil {
			return nil, err
		}
		touched = append(touched, p)
	}

	if len(run.errs) > 0 {
		sortFieldErrors(run.errs, m)
		return nil, &ValidationError{Fields: run.errs}
	}

	excludeID := ""
	if existing != nil {
		excludeID = existing.ID
	}
	if err := v.checkUnique(ctx, tx, m, touched, run.out, excludeID); err != nil {
		return nil, err
	}

	if creating {
		for name, val := range run.out {
			if val == nil {
				delete(run.out, name)
			}
		}
	}
	return run.out, nil
}

// CheckUnique re-runs only the uniqueness step over a full record, for
// paths that revive an object without re-validating it.
func (v *Validator) CheckUnique(ctx context.Context, tx ports.Repos, m schema.Model, data map[string]any, excludeID string) error {
	return v.checkUnique(ctx, tx, m, m.Properties, data, excludeID)
}

func (v *Validator) checkUnique(ctx context.Context, tx ports.Repos, m schema.Model, props []schema.Property, data map[string]any, excludeID string) error {
	for _, p := range props {
		if !p.IsUnique {
			continue
		}
		val, ok := data[p.Name]
		if !ok || val == nil {
			continue
		}
		_, err := tx.Objects().FindByField(ctx, m.ID, p.Name, val, excludeID)
		if err == nil {
			return &UniqueViolationError{Field: p.Name, Value: val}
		}
		if !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("uniqueness check on %s: %w", p.Name, err)
		}
	}
	return nil
}

// validation is the state of one Validate call. Compiled patterns live
// only as long as the call.
type validation struct {
	v        *Validator
	ctx      context.Context
	tx       ports.Repos
	model    schema.Model
	patterns map[string]*regexp.Regexp
	out      map[string]any
	errs     []FieldError
}

func (r *validation) fail(field, msg string, rejected any) {
	r.errs = append(r.errs, FieldError{Field: field, Message: msg, RejectedValue: rejected})
}

// check runs presence, coercion, bounds, pattern and relationship steps
// for one property. A non-nil return is a fail-fast configuration or
// storage error; field problems are recorded on r.
func (r *validation) check(p schema.Property, raw any) error {
	if schema.IsEmpty(raw) {
		if p.Required {
			r.fail(p.Name, "is required", raw)
			return nil
		}
		r.out[p.Name] = nil
		return nil
	}

	val, err := p.Coerce(raw)
	if err != nil {
		r.fail(p.Name, err.Error(), raw)
		return nil
	}

	if p.Type == schema.TypeNumber {
		if err := p.InBounds(val.(float64)); err != nil {
			r.fail(p.Name, err.Error(), raw)
			return nil
		}
	}

	if p.Type.IsTextual() && p.ValidationRulesetID != "" {
		re, err := r.pattern(p.ValidationRulesetID)
		if err != nil {
			return err
		}
		if !re.MatchString(val.(string)) {
			r.fail(p.Name, "does not match the required format", raw)
			return nil
		}
	}

	if p.Type == schema.TypeRelationship {
		for _, id := range schema.References(val) {
			ok, err := r.referenceExists(p.RelatedModelID, id)
			if err != nil {
				return err
			}
			if !ok {
				r.fail(p.Name, "references a record that does not exist", id)
				return nil
			}
		}
	}

	r.out[p.Name] = val
	return nil
}

func (r *validation) pattern(rulesetID string) (*regexp.Regexp, error) {
	if re, ok := r.patterns[rulesetID]; ok {
		return re, nil
	}
	rs, err := r.tx.Rulesets().Get(r.ctx, rulesetID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, &ConfigError{Subject: "model " + r.model.Name, Err: fmt.Errorf("validation ruleset %q does not exist", rulesetID)}
	}
	if err != nil {
		return nil, err
	}
	re, err := rs.Compile()
	if err != nil {
		r.v.logger.Error().Err(err).Str("ruleset_id", rulesetID).Msg("malformed validation ruleset")
		return nil, &ConfigError{Subject: "validation ruleset " + rs.Name, Err: err}
	}
	r.patterns[rulesetID] = re
	return re, nil
}

func (r *validation) referenceExists(modelID, id string) (bool, error) {
	o, err := r.tx.Objects().Get(r.ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !o.IsDeleted && o.ModelID == modelID, nil
}

// sortFieldErrors orders errors by property position, unknown fields last.
func sortFieldErrors(errs []FieldError, m schema.Model) {
	rank := make(map[string]int, len(m.Properties))
	for i, p := range m.Properties {
		rank[p.Name] = i
	}
	pos := func(f FieldError) int {
		if i, ok := rank[f.Field]; ok {
			return i
		}
		return len(rank)
	}
	sort.SliceStable(errs, func(i, j int) bool {
		pi, pj := pos(errs[i]), pos(errs[j])
		if pi != pj {
			return pi < pj
		}
		return errs[i].Field < errs[j].Field
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
