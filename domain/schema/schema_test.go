package schema

import (
	"reflect"
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestPropertyType_IsValid(t *testing.T) {
	tests := []struct {
		typ  PropertyType
		want bool
	}{
		{TypeString, true},
		{TypeNumber, true},
		{TypeRating, true},
		{TypeRelationship, true},
		{PropertyType("blob"), false},
		{PropertyType(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProperty_Check(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		wantKey string // empty means consistent
	}{
		{"plain string", Property{Name: "title", Type: TypeString}, ""},
		{"unique string", Property{Name: "email", Type: TypeString, IsUnique: true}, ""},
		{"missing name", Property{Type: TypeString}, "name"},
		{"reserved name", Property{Name: "__owner__", Type: TypeString}, "name"},
		{"unknown type", Property{Name: "x", Type: "blob"}, "type"},
		{"unique number", Property{Name: "n", Type: TypeNumber, IsUnique: true}, "isUnique"},
		{"bounds on number", Property{Name: "n", Type: TypeNumber, MinValue: floatPtr(1), MaxValue: floatPtr(2)}, ""},
		{"inverted bounds", Property{Name: "n", Type: TypeNumber, MinValue: floatPtr(3), MaxValue: floatPtr(2)}, "minValue"},
		{"bounds on string", Property{Name: "s", Type: TypeString, MinValue: floatPtr(1)}, "minValue"},
		{"unit on rating", Property{Name: "r", Type: TypeRating, Unit: "kg"}, "precision"},
		{"precision on rating", Property{Name: "r", Type: TypeRating, Precision: intPtr(2)}, "precision"},
		{"relationship ok", Property{Name: "owner", Type: TypeRelationship, RelationshipType: RelationshipOne, RelatedModelID: "m1"}, ""},
		{"relationship missing model", Property{Name: "owner", Type: TypeRelationship, RelationshipType: RelationshipMany}, "relatedModelId"},
		{"relationship bad cardinality", Property{Name: "owner", Type: TypeRelationship, RelationshipType: "few", RelatedModelID: "m1"}, "relationshipType"},
		{"relationship fields on rating", Property{Name: "r", Type: TypeRating, RelatedModelID: "m1"}, "relationshipType"},
		{"autoset on date", Property{Name: "d", Type: TypeDate, AutoSetOnCreate: true}, ""},
		{"autoset on string", Property{Name: "d", Type: TypeString, AutoSetOnUpdate: true}, "autoSetOnCreate"},
		{"ruleset on markdown", Property{Name: "body", Type: TypeMarkdown, ValidationRulesetID: "rs1"}, ""},
		{"ruleset on number", Property{Name: "n", Type: TypeNumber, ValidationRulesetID: "rs1"}, "validationRulesetId"},
		{"bad default", Property{Name: "n", Type: TypeNumber, DefaultValue: "abc"}, "defaultValue"},
		{"good default", Property{Name: "n", Type: TypeNumber, DefaultValue: "4.5"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := tt.prop.Check()
			if tt.wantKey == "" {
				if len(problems) != 0 {
					t.Errorf("Check() = %v, want no problems", problems)
				}
				return
			}
			if _, ok := problems[tt.wantKey]; !ok {
				t.Errorf("Check() = %v, want problem on %q", problems, tt.wantKey)
			}
		})
	}
}

func TestCheckModel(t *testing.T) {
	m := Model{
		Name: "Task",
		Properties: []Property{
			{Name: "title", Type: TypeString},
			{Name: "title", Type: TypeNumber},
		},
		DisplayPropertyNames: []string{"title", "missing"},
	}

	result := CheckModel(m)
	if result.Valid {
		t.Fatal("expected invalid model")
	}
	if _, ok := result.Errors["properties.title.name"]; !ok {
		t.Errorf("expected duplicate property error, got %v", result.Errors)
	}
	if _, ok := result.Errors["displayPropertyNames"]; !ok {
		t.Errorf("expected display property error, got %v", result.Errors)
	}

	ok := CheckModel(Model{Name: "Task", Properties: []Property{{Name: "title", Type: TypeString}}})
	if !ok.Valid {
		t.Errorf("expected valid model, got %v", ok.Errors)
	}

	if CheckModel(Model{Name: "  "}).Valid {
		t.Error("blank name should be invalid")
	}
}

func TestModel_Label(t *testing.T) {
	m := Model{DisplayPropertyNames: []string{"first", "last"}}

	if got := m.Label(map[string]any{"first": "Ada", "last": "Lovelace"}, "obj_1"); got != "Ada Lovelace" {
		t.Errorf("Label() = %q", got)
	}
	if got := m.Label(map[string]any{"first": "", "last": nil}, "obj_1"); got != "obj_1" {
		t.Errorf("Label() fallback = %q", got)
	}
}

func TestModel_WithProperties(t *testing.T) {
	m := Model{ID: "m1"}.WithProperties([]Property{{Name: "a"}, {Name: "b", ModelID: "other"}})

	for i, p := range m.Properties {
		if p.ModelID != "m1" {
			t.Errorf("property %d ModelID = %q", i, p.ModelID)
		}
		if p.OrderIndex != i {
			t.Errorf("property %d OrderIndex = %d", i, p.OrderIndex)
		}
	}
}

func TestDiffProperties(t *testing.T) {
	before := []Property{
		{ID: "p1", Name: "title", Type: TypeString},
		{ID: "p2", Name: "count", Type: TypeNumber, MinValue: floatPtr(0)},
		{ID: "p3", Name: "gone", Type: TypeBoolean},
	}
	after := []Property{
		{ID: "new1", Name: "title", Type: TypeString},
		{ID: "new2", Name: "count", Type: TypeNumber, MinValue: floatPtr(1)},
		{ID: "new3", Name: "added", Type: TypeDate},
	}

	d := DiffProperties(before, after)
	if !reflect.DeepEqual(d.Added, []string{"added"}) {
		t.Errorf("Added = %v", d.Added)
	}
	if !reflect.DeepEqual(d.Removed, []string{"gone"}) {
		t.Errorf("Removed = %v", d.Removed)
	}
	if !reflect.DeepEqual(d.Changed, []string{"count"}) {
		t.Errorf("Changed = %v", d.Changed)
	}

	if !DiffProperties(before, before).IsEmpty() {
		t.Error("identical sets should not differ")
	}
}

func TestCheckRuleset(t *testing.T) {
	if !CheckRuleset(ValidationRuleset{Name: "zip", RegexPattern: `^\d{5}$`}).Valid {
		t.Error("expected valid ruleset")
	}
	bad := CheckRuleset(ValidationRuleset{Name: "broken", RegexPattern: `([a-z`})
	if bad.Valid {
		t.Fatal("expected malformed regex to be rejected")
	}
	if _, ok := bad.Errors["regexPattern"]; !ok {
		t.Errorf("Errors = %v", bad.Errors)
	}
}

func TestProperty_Stamp(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

	if got := (Property{Type: TypeDate}).Stamp(now); got != "2024-03-09" {
		t.Errorf("date stamp = %v", got)
	}
	if got := (Property{Type: TypeDateTime}).Stamp(now); got != "2024-03-09T14:30:00Z" {
		t.Errorf("datetime stamp = %v", got)
	}
}
