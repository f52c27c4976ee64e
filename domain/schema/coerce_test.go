package schema

import (
	"errors"
	"reflect"
	"testing"
)

func TestProperty_Coerce(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		in      any
		want    any
		wantErr bool
	}{
		{"string passthrough", Property{Type: TypeString}, "hello", "hello", false},
		{"string from number", Property{Type: TypeString}, 42.5, "42.5", false},
		{"string rejects list", Property{Type: TypeString}, []any{"a"}, nil, true},

		{"number from string", Property{Type: TypeNumber}, " 3.25 ", 3.25, false},
		{"number passthrough", Property{Type: TypeNumber}, 7.0, 7.0, false},
		{"number from int", Property{Type: TypeNumber}, 7, 7.0, false},
		{"number garbage", Property{Type: TypeNumber}, "twelve", nil, true},
		{"number NaN", Property{Type: TypeNumber}, "NaN", nil, true},

		{"boolean true token", Property{Type: TypeBoolean}, "YES", true, false},
		{"boolean one token", Property{Type: TypeBoolean}, "1", true, false},
		{"boolean other token", Property{Type: TypeBoolean}, "nope", false, false},
		{"boolean native", Property{Type: TypeBoolean}, true, true, false},
		{"boolean numeric", Property{Type: TypeBoolean}, 1.0, true, false},

		{"date canonical", Property{Type: TypeDate}, "2024-02-29", "2024-02-29", false},
		{"date from datetime", Property{Type: TypeDate}, "2024-02-29T10:00:00Z", "2024-02-29", false},
		{"date invalid", Property{Type: TypeDate}, "2023-02-29", nil, true},

		{"datetime to utc", Property{Type: TypeDateTime}, "2024-01-01T10:00:00+02:00", "2024-01-01T08:00:00Z", false},
		{"datetime without zone", Property{Type: TypeDateTime}, "2024-01-01 10:00", "2024-01-01T10:00:00Z", false},
		{"datetime invalid", Property{Type: TypeDateTime}, "tomorrow", nil, true},

		{"time 24h", Property{Type: TypeTime}, "09:05", "09:05", false},
		{"time with seconds", Property{Type: TypeTime}, "09:05:59", "09:05", false},
		{"time 12h", Property{Type: TypeTime}, "3:15 PM", "15:15", false},
		{"time invalid", Property{Type: TypeTime}, "25:00", nil, true},

		{"rating ok", Property{Type: TypeRating}, "4", int64(4), false},
		{"rating zero optional", Property{Type: TypeRating}, 0.0, int64(0), false},
		{"rating zero required", Property{Type: TypeRating, Required: true}, 0.0, nil, true},
		{"rating too high", Property{Type: TypeRating}, 6.0, nil, true},
		{"rating fractional", Property{Type: TypeRating}, 2.5, nil, true},

		{"ref one", Property{Type: TypeRelationship, RelationshipType: RelationshipOne}, " obj_1 ", "obj_1", false},
		{"ref one rejects number", Property{Type: TypeRelationship, RelationshipType: RelationshipOne}, 5.0, nil, true},
		{"ref many from list", Property{Type: TypeRelationship, RelationshipType: RelationshipMany}, []any{"a", "b", "a"}, []string{"a", "b"}, false},
		{"ref many from string", Property{Type: TypeRelationship, RelationshipType: RelationshipMany}, "a", []string{"a"}, false},
		{"ref many bad element", Property{Type: TypeRelationship, RelationshipType: RelationshipMany}, []any{"a", 1.0}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.prop.Coerce(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Coerce(%v) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) error = %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Coerce(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCoerce_NumberMessage(t *testing.T) {
	_, err := Property{Type: TypeNumber}.Coerce("abc")
	if !errors.Is(err, ErrNotNumber) {
		t.Fatalf("error = %v, want ErrNotNumber", err)
	}
	if err.Error() != "not a valid number" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, true},
		{"", true},
		{"   ", false},
		{[]any{}, true},
		{[]string{}, true},
		{"x", false},
		{0.0, false},
		{false, false},
	}

	for _, tt := range tests {
		if got := IsEmpty(tt.in); got != tt.want {
			t.Errorf("IsEmpty(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProperty_InBounds(t *testing.T) {
	p := Property{Type: TypeNumber, MinValue: floatPtr(1), MaxValue: floatPtr(10)}

	for _, f := range []float64{1, 5, 10} {
		if err := p.InBounds(f); err != nil {
			t.Errorf("InBounds(%v) = %v", f, err)
		}
	}
	for _, f := range []float64{0.99, 10.01} {
		if err := p.InBounds(f); err == nil {
			t.Errorf("InBounds(%v) should fail", f)
		}
	}
}

func TestReferences(t *testing.T) {
	if got := References("a"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("References(string) = %v", got)
	}
	if got := References([]any{"a", "b"}); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("References([]any) = %v", got)
	}
	if got := References(nil); got != nil {
		t.Errorf("References(nil) = %v", got)
	}
}
