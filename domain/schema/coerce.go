package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical storage layouts for temporal types.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Coercion failures. Messages are safe to show to end users.
var (
	ErrNotString       = errors.New("not a valid text value")
	ErrNotNumber       = errors.New("not a valid number")
	ErrNotBoolean      = errors.New("not a valid boolean")
	ErrNotDate         = errors.New("not a valid date")
	ErrNotDateTime     = errors.New("not a valid date and time")
	ErrNotTime         = errors.New("not a valid time")
	ErrNotRating       = errors.New("not a valid rating")
	ErrNotRelationship = errors.New("not a valid reference")
)

var truthy = map[string]bool{"true": true, "1": true, "yes": true}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

var timeLayouts = []string{TimeLayout, "15:04:05", "3:04 PM", "3:04PM", "3:04 pm"}

// IsEmpty reports whether v counts as absent: nil, the empty string or an
// empty list. Whitespace is a value.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

// Coerce converts a raw value into the canonical stored form for the
// property's type. Callers handle emptiness before calling Coerce.
func (p Property) Coerce(v any) (any, error) {
	switch p.Type {
	case TypeString, TypeMarkdown, TypeImage:
		return coerceString(v)
	case TypeNumber:
		return coerceNumber(v)
	case TypeBoolean:
		return coerceBoolean(v)
	case TypeDate:
		t, err := parseTemporal(v, dateTimeLayouts, ErrNotDate)
		if err != nil {
			return nil, err
		}
		return t.Format(DateLayout), nil
	case TypeDateTime:
		t, err := parseTemporal(v, dateTimeLayouts, ErrNotDateTime)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(time.RFC3339), nil
	case TypeTime:
		t, err := parseTemporal(v, timeLayouts, ErrNotTime)
		if err != nil {
			return nil, err
		}
		return t.Format(TimeLayout), nil
	case TypeRating:
		return p.coerceRating(v)
	case TypeRelationship:
		if p.RelationshipType == RelationshipMany {
			return coerceRefList(v)
		}
		return coerceRef(v)
	}
	return nil, fmt.Errorf("unsupported property type %q", p.Type)
}

// Stamp returns the auto-stamp value for a temporal property at now.
func (p Property) Stamp(now time.Time) any {
	if p.Type == TypeDate {
		return now.UTC().Format(DateLayout)
	}
	return now.UTC().Format(time.RFC3339)
}

func coerceString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int, int64, bool, json.Number:
		return fmt.Sprint(x), nil
	}
	return nil, ErrNotString
}

func coerceNumber(v any) (any, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil, ErrNotNumber
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, ErrNotNumber
		}
		f = parsed
	default:
		return nil, ErrNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ErrNotNumber
	}
	return f, nil
}

func coerceBoolean(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(x))], nil
	case float64:
		return x == 1, nil
	case int:
		return x == 1, nil
	case int64:
		return x == 1, nil
	}
	return nil, ErrNotBoolean
}

func parseTemporal(v any, layouts []string, fail error) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fail
}

func (p Property) coerceRating(v any) (any, error) {
	var n int64
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return nil, ErrNotRating
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int64:
		n = x
	case json.Number:
		parsed, err := x.Int64()
		if err != nil {
			return nil, ErrNotRating
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, ErrNotRating
		}
		n = parsed
	default:
		return nil, ErrNotRating
	}
	low := int64(0)
	if p.Required {
		low = 1
	}
	if n < low || n > 5 {
		return nil, fmt.Errorf("rating must be between %d and 5", low)
	}
	return n, nil
}

func coerceRef(v any) (any, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, ErrNotRelationship
	}
	return strings.TrimSpace(s), nil
}

func coerceRefList(v any) (any, error) {
	var raw []any
	switch x := v.(type) {
	case string:
		raw = []any{x}
	case []string:
		for _, s := range x {
			raw = append(raw, s)
		}
	case []any:
		raw = x
	default:
		return nil, ErrNotRelationship
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, item := range raw {
		ref, err := coerceRef(item)
		if err != nil {
			return nil, err
		}
		id := ref.(string)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

// References returns the object ids a coerced relationship value points to.
func References(v any) []string {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// InBounds checks a coerced number against the property's inclusive bounds.
func (p Property) InBounds(f float64) error {
	if p.MinValue != nil && f < *p.MinValue {
		return fmt.Errorf("must be at least %s", strconv.FormatFloat(*p.MinValue, 'f', -1, 64))
	}
	if p.MaxValue != nil && f > *p.MaxValue {
		return fmt.Errorf("must be at most %s", strconv.FormatFloat(*p.MaxValue, 'f', -1, 64))
	}
	return nil
}
