// Package changelog provides the append-only audit records for data objects
// and schema definitions. Each data-object entry carries a payload whose
// shape is fixed by its change type, so a past mutation can be inverted.
package changelog

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/artpar/recordbase/domain/object"
)

// ChangeType identifies the kind of mutation an entry records.
type ChangeType string

const (
	ChangeCreate        ChangeType = "CREATE"
	ChangeUpdate        ChangeType = "UPDATE"
	ChangeDelete        ChangeType = "DELETE"
	ChangeRestore       ChangeType = "RESTORE"
	ChangeRevertUpdate  ChangeType = "REVERT_UPDATE"
	ChangeRevertDelete  ChangeType = "REVERT_DELETE"
	ChangeRevertRestore ChangeType = "REVERT_RESTORE"
)

// IsValid returns true if the change type is known.
func (c ChangeType) IsValid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete, ChangeRestore,
		ChangeRevertUpdate, ChangeRevertDelete, ChangeRevertRestore:
		return true
	}
	return false
}

// IsRevert returns true for entries produced by a revert.
func (c ChangeType) IsRevert() bool {
	return c == ChangeRevertUpdate || c == ChangeRevertDelete || c == ChangeRevertRestore
}

// RevertType returns the change type a revert of c produces.
func (c ChangeType) RevertType() (ChangeType, bool) {
	switch c {
	case ChangeUpdate:
		return ChangeRevertUpdate, true
	case ChangeDelete:
		return ChangeRevertDelete, true
	case ChangeRestore:
		return ChangeRevertRestore, true
	}
	return "", false
}

// FieldChange is one field-level difference. Labels are filled for
// synthetic fields so the log reads without a state lookup.
type FieldChange struct {
	Property string `json:"property"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
	OldLabel string `json:"oldLabel,omitempty"`
	NewLabel string `json:"newLabel,omitempty"`
}

// Payload is the change-type specific body of an entry.
type Payload interface {
	payload()
}

// SnapshotPayload is a full copy of an object. Used by CREATE and DELETE.
type SnapshotPayload struct {
	Data    map[string]any `json:"data"`
	StateID string         `json:"stateId,omitempty"`
	OwnerID string         `json:"ownerId,omitempty"`
}

// DiffPayload lists the fields an UPDATE changed.
type DiffPayload struct {
	Fields []FieldChange `json:"fields"`
}

// RevertPayload records which entry was reverted and the resulting diff.
type RevertPayload struct {
	RevertOf string        `json:"revertOf"`
	Fields   []FieldChange `json:"fields,omitempty"`
}

// EmptyPayload is used by RESTORE.
type EmptyPayload struct{}

func (SnapshotPayload) payload() {}
func (DiffPayload) payload()     {}
func (RevertPayload) payload()   {}
func (EmptyPayload) payload()    {}

// Snapshot captures an object as a SnapshotPayload. Fields named in skip
// are left out.
func Snapshot(o object.DataObject, skip map[string]bool) SnapshotPayload {
	data := object.CloneData(o.Data)
	for name := range skip {
		delete(data, name)
	}
	return SnapshotPayload{Data: data, StateID: o.StateID, OwnerID: o.OwnerID}
}

// Entry is an append-only audit record of one mutation to a data object.
type Entry struct {
	ID           string
	DataObjectID string
	ModelID      string
	ChangedAt    time.Time
	ChangedBy    string // "" for anonymous share submissions
	ChangeType   ChangeType
	Payload      Payload
}

// CheckPayload returns an error when the payload variant does not match
// the change type.
func CheckPayload(ct ChangeType, p Payload) error {
	ok := false
	switch ct {
	case ChangeCreate, ChangeDelete:
		_, ok = p.(SnapshotPayload)
	case ChangeUpdate:
		_, ok = p.(DiffPayload)
	case ChangeRestore:
		_, ok = p.(EmptyPayload)
	case ChangeRevertUpdate, ChangeRevertDelete, ChangeRevertRestore:
		_, ok = p.(RevertPayload)
	default:
		return fmt.Errorf("unknown change type %q", ct)
	}
	if !ok {
		return fmt.Errorf("payload %T does not fit change type %s", p, ct)
	}
	return nil
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		p = EmptyPayload{}
	}
	return json.Marshal(p)
}

// DecodePayload parses a stored payload into the variant its change type
// requires.
func DecodePayload(ct ChangeType, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		p   Payload
		err error
	)
	switch ct {
	case ChangeCreate, ChangeDelete:
		var s SnapshotPayload
		err = json.Unmarshal(raw, &s)
		if s.Data == nil {
			s.Data = map[string]any{}
		}
		p = s
	case ChangeUpdate:
		var d DiffPayload
		err = json.Unmarshal(raw, &d)
		p = d
	case ChangeRestore:
		p = EmptyPayload{}
	case ChangeRevertUpdate, ChangeRevertDelete, ChangeRevertRestore:
		var r RevertPayload
		err = json.Unmarshal(raw, &r)
		p = r
	default:
		return nil, fmt.Errorf("unknown change type %q", ct)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", ct, err)
	}
	return p, nil
}

// Diff compares two versions of an object over the given data fields plus
// the synthetic state and owner fields. Only changed fields are returned,
// data fields first in the order given.
func Diff(before, after object.DataObject, fields []string) []FieldChange {
	var changes []FieldChange
	for _, name := range fields {
		if object.IsSynthetic(name) {
			continue
		}
		old, cur := before.Value(name), after.Value(name)
		if !object.Equal(old, cur) {
			changes = append(changes, FieldChange{Property: name, Old: old, New: cur})
		}
	}
	for _, name := range []string{object.FieldWorkflowState, object.FieldOwner} {
		old, cur := before.Value(name), after.Value(name)
		if !object.Equal(old, cur) {
			changes = append(changes, FieldChange{Property: name, Old: old, New: cur})
		}
	}
	return changes
}

// FieldNames returns the sorted union of data keys of two records.
func FieldNames(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
