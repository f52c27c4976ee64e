// Package schema provides model and property definitions and the pure
// functions that check them. Models are user-editable at runtime, so every
// rule here is derived from data rather than from Go types.
// This package has NO dependencies on I/O or external packages.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PropertyType is the tag that selects how a property's values are coerced.
type PropertyType string

const (
	TypeString       PropertyType = "string"
	TypeNumber       PropertyType = "number"
	TypeBoolean      PropertyType = "boolean"
	TypeDate         PropertyType = "date"
	TypeDateTime     PropertyType = "datetime"
	TypeTime         PropertyType = "time"
	TypeMarkdown     PropertyType = "markdown"
	TypeImage        PropertyType = "image"
	TypeRating       PropertyType = "rating"
	TypeRelationship PropertyType = "relationship"
)

// IsValid returns true if the type is a known property type.
func (t PropertyType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeDateTime, TypeTime,
		TypeMarkdown, TypeImage, TypeRating, TypeRelationship:
		return true
	}
	return false
}

// IsTextual returns true for free-text types that can carry a regex ruleset.
func (t PropertyType) IsTextual() bool {
	return t == TypeString || t == TypeMarkdown
}

// IsTemporal returns true for types that can be auto-stamped.
func (t PropertyType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime
}

// RelationshipType is the cardinality of a relationship property.
type RelationshipType string

const (
	RelationshipOne  RelationshipType = "one"
	RelationshipMany RelationshipType = "many"
)

// IsValid returns true if the relationship type is known.
func (r RelationshipType) IsValid() bool {
	return r == RelationshipOne || r == RelationshipMany
}

// Property is a typed field definition on a Model (immutable value type).
type Property struct {
	ID         string
	ModelID    string
	Name       string
	Type       PropertyType
	Required   bool
	IsUnique   bool
	OrderIndex int

	// Number only
	MinValue  *float64
	MaxValue  *float64
	Precision *int
	Unit      string

	// Relationship only
	RelationshipType RelationshipType
	RelatedModelID   string

	// Date/datetime only
	AutoSetOnCreate bool
	AutoSetOnUpdate bool

	DefaultValue        any
	ValidationRulesetID string
}

// IsAutoStamped returns true if the property value is written by the system.
func (p Property) IsAutoStamped() bool {
	return p.AutoSetOnCreate || p.AutoSetOnUpdate
}

// reservedPrefix marks synthetic changelog fields such as __workflowState__.
const reservedPrefix = "__"

var propertyNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ \-]{0,63}$`)

// Check returns the problems with a single property definition, keyed by
// the offending attribute. An empty map means the property is consistent.
func (p Property) Check() map[string]string {
	problems := make(map[string]string)

	name := strings.TrimSpace(p.Name)
	switch {
	case name == "":
		problems["name"] = "Name is required"
	case strings.HasPrefix(name, reservedPrefix):
		problems["name"] = "Names starting with __ are reserved"
	case !propertyNameRegex.MatchString(name):
		problems["name"] = "Name must start with a letter and contain only letters, digits, spaces, _ or -"
	}

	if !p.Type.IsValid() {
		problems["type"] = fmt.Sprintf("Unknown property type %q", p.Type)
		return problems
	}

	if p.IsUnique && p.Type != TypeString {
		problems["isUnique"] = "Only string properties can be unique"
	}

	if p.Type == TypeNumber {
		if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
			problems["minValue"] = "minValue must not exceed maxValue"
		}
		if p.Precision != nil && (*p.Precision < 0 || *p.Precision > 10) {
			problems["precision"] = "precision must be between 0 and 10"
		}
	} else {
		if p.MinValue != nil || p.MaxValue != nil {
			problems["minValue"] = "Bounds are only allowed on number properties"
		}
		if p.Precision != nil || p.Unit != "" {
			problems["precision"] = "Precision and unit are only allowed on number properties"
		}
	}

	if p.Type == TypeRelationship {
		if !p.RelationshipType.IsValid() {
			problems["relationshipType"] = "relationshipType must be one or many"
		}
		if p.RelatedModelID == "" {
			problems["relatedModelId"] = "relatedModelId is required"
		}
	} else if p.RelationshipType != "" || p.RelatedModelID != "" {
		problems["relationshipType"] = "Relationship fields are only allowed on relationship properties"
	}

	if p.IsAutoStamped() && !p.Type.IsTemporal() {
		problems["autoSetOnCreate"] = "Auto-stamping is only allowed on date and datetime properties"
	}

	if p.ValidationRulesetID != "" && !p.Type.IsTextual() {
		problems["validationRulesetId"] = "Rulesets are only allowed on string and markdown properties"
	}

	if p.DefaultValue != nil && p.Type != TypeRelationship {
		if _, err := p.Coerce(p.DefaultValue); err != nil {
			problems["defaultValue"] = "Default value: " + err.Error()
		}
	}

	return problems
}

// Model is a user-defined record type (immutable value type).
type Model struct {
	ID                   string
	Name                 string
	Description          string
	DisplayPropertyNames []string
	GroupID              string
	WorkflowID           string
	Properties           []Property // ordered by OrderIndex
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Property returns the property with the given name.
func (m Model) Property(name string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// HasWorkflow returns true if a workflow is attached to the model.
func (m Model) HasWorkflow() bool {
	return m.WorkflowID != ""
}

// Label renders the human label of a record from DisplayPropertyNames.
// Falls back to fallback when no display property has a value.
func (m Model) Label(data map[string]any, fallback string) string {
	parts := make([]string, 0, len(m.DisplayPropertyNames))
	for _, name := range m.DisplayPropertyNames {
		v, ok := data[name]
		if !ok || IsEmpty(v) {
			continue
		}
		parts = append(parts, fmt.Sprint(v))
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, " ")
}

// WithProperties returns a copy of the model with properties renumbered in
// slice order and bound to the model id.
func (m Model) WithProperties(props []Property) Model {
	out := make([]Property, len(props))
	for i, p := range props {
		p.ModelID = m.ID
		p.OrderIndex = i
		out[i] = p
	}
	m.Properties = out
	return m
}

// CheckResult represents the outcome of a structural check.
type CheckResult struct {
	Valid  bool
	Errors map[string]string
}

// CheckModel validates a model definition and its properties (pure function).
// Property problems are keyed as "properties.<name>.<attribute>".
func CheckModel(m Model) CheckResult {
	errors := make(map[string]string)

	name := strings.TrimSpace(m.Name)
	if name == "" {
		errors["name"] = "Name is required"
	} else if len(name) > 100 {
		errors["name"] = "Name must be less than 100 characters"
	}

	seen := make(map[string]bool, len(m.Properties))
	for i, p := range m.Properties {
		key := p.Name
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if seen[p.Name] && p.Name != "" {
			errors["properties."+key+".name"] = "Property names must be unique within a model"
		}
		seen[p.Name] = true
		for attr, msg := range p.Check() {
			errors["properties."+key+"."+attr] = msg
		}
	}

	for _, dn := range m.DisplayPropertyNames {
		if !seen[dn] {
			errors["displayPropertyNames"] = fmt.Sprintf("Unknown display property %q", dn)
		}
	}

	return CheckResult{Valid: len(errors) == 0, Errors: errors}
}

// PropertyDiff lists property names added, removed and changed between two
// versions of a model. Used for audit only; storage always replaces.
type PropertyDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

// IsEmpty returns true if nothing differs.
func (d PropertyDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffProperties compares two property sets by name.
func DiffProperties(before, after []Property) PropertyDiff {
	var d PropertyDiff
	old := make(map[string]Property, len(before))
	for _, p := range before {
		old[p.Name] = p
	}
	for _, p := range after {
		prev, ok := old[p.Name]
		if !ok {
			d.Added = append(d.Added, p.Name)
			continue
		}
		if !sameDefinition(prev, p) {
			d.Changed = append(d.Changed, p.Name)
		}
		delete(old, p.Name)
	}
	for _, p := range before {
		if _, gone := old[p.Name]; gone {
			d.Removed = append(d.Removed, p.Name)
		}
	}
	return d
}

func sameDefinition(a, b Property) bool {
	a.ID, b.ID = "", ""
	a.ModelID, b.ModelID = "", ""
	return fmt.Sprintf("%+v", derefProperty(a)) == fmt.Sprintf("%+v", derefProperty(b))
}

// derefProperty flattens pointer fields so two equal definitions print equally.
func derefProperty(p Property) map[string]any {
	m := map[string]any{
		"name": p.Name, "type": p.Type, "required": p.Required, "unique": p.IsUnique,
		"order": p.OrderIndex, "unit": p.Unit, "rel": p.RelationshipType,
		"related": p.RelatedModelID, "autoCreate": p.AutoSetOnCreate,
		"autoUpdate": p.AutoSetOnUpdate, "default": p.DefaultValue,
		"ruleset": p.ValidationRulesetID,
	}
	if p.MinValue != nil {
		m["min"] = *p.MinValue
	}
	if p.MaxValue != nil {
		m["max"] = *p.MaxValue
	}
	if p.Precision != nil {
		m["precision"] = *p.Precision
	}
	return m
}

// ValidationRuleset is a named reusable regular expression.
type ValidationRuleset struct {
	ID           string
	Name         string
	RegexPattern string
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Compile compiles the ruleset's pattern.
func (r ValidationRuleset) Compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile(r.RegexPattern)
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", r.Name, err)
	}
	return re, nil
}

// CheckRuleset validates a ruleset definition, including its regex.
func CheckRuleset(r ValidationRuleset) CheckResult {
	errors := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errors["name"] = "Name is required"
	}
	if r.RegexPattern == "" {
		errors["regexPattern"] = "Pattern is required"
	} else if _, err := regexp.Compile(r.RegexPattern); err != nil {
		errors["regexPattern"] = "Invalid regular expression: " + err.Error()
	}
	return CheckResult{Valid: len(errors) == 0, Errors: errors}
}
