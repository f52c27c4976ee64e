// Package object provides the data object value type: a schema-free record
// plus workflow, ownership and recycle-bin metadata.
package object

import (
	"encoding/json"
	"time"
)

// Synthetic field names used in changelog diffs. They route to
// StateID/OwnerID instead of the data map.
const (
	FieldWorkflowState = "__workflowState__"
	FieldOwner         = "__owner__"
)

// IsSynthetic returns true for changelog-only field names.
func IsSynthetic(name string) bool {
	return name == FieldWorkflowState || name == FieldOwner
}

// DataObject is an instance of a Model.
type DataObject struct {
	ID        string
	ModelID   string
	Data      map[string]any
	StateID   string // "" when the model has no workflow
	OwnerID   string
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate Data freely.
func (o DataObject) Clone() DataObject {
	o.Data = CloneData(o.Data)
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		o.DeletedAt = &t
	}
	return o
}

// SoftDelete returns a copy moved to the recycle bin at the given time.
func (o DataObject) SoftDelete(at time.Time) DataObject {
	o.IsDeleted = true
	o.DeletedAt = &at
	o.UpdatedAt = at
	return o
}

// Restore returns a copy taken out of the recycle bin.
func (o DataObject) Restore(at time.Time) DataObject {
	o.IsDeleted = false
	o.DeletedAt = nil
	o.UpdatedAt = at
	return o
}

// Value returns the current value of a data or synthetic field.
func (o DataObject) Value(field string) any {
	switch field {
	case FieldWorkflowState:
		return nullable(o.StateID)
	case FieldOwner:
		return nullable(o.OwnerID)
	}
	return o.Data[field]
}

// SetValue assigns a data or synthetic field in place.
func (o *DataObject) SetValue(field string, v any) {
	switch field {
	case FieldWorkflowState:
		o.StateID = asString(v)
	case FieldOwner:
		o.OwnerID = asString(v)
	default:
		if o.Data == nil {
			o.Data = make(map[string]any)
		}
		if v == nil {
			delete(o.Data, field)
			return
		}
		o.Data[field] = v
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// CloneData deep-copies a record through its JSON form, which is also the
// form it is persisted in.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		out := make(map[string]any, len(data))
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Equal reports whether two field values are the same once persisted.
func Equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
