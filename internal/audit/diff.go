package audit

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/amiga-fleet/amiga-backend/internal/db/models"
)

// Change is one field-level difference between two snapshots.
type Change = models.FieldChange

type absentValue struct{}

// MarshalJSON encodes the marker as null; Change.Added and Change.Removed carry the
// distinction on the wire.
func (absentValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (absentValue) String() string { return "<absent>" }

// Absent stands in for the missing side of a Change: New for a removed field, Old for an
// added one. It is distinct from nil and from the empty string.
var Absent interface{} = absentValue{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v interface{}) bool {
	_, ok := v.(absentValue)
	return ok
}

// Diff computes the shallow field-level changes from oldEntity to newEntity. Values are
// compared strictly: the dynamic types must match and the values must be equal, so 5 and
// "5" differ. Nested values are compared as a whole. Equal fields are omitted; an empty
// result means nothing changed.
func Diff(oldEntity, newEntity map[string]interface{}) map[string]Change {
	changes := make(map[string]Change)

	for key, newValue := range newEntity {
		oldValue, existed := oldEntity[key]
		if !existed {
			changes[key] = Change{Old: Absent, New: newValue, Added: true}
			continue
		}
		if !strictEqual(oldValue, newValue) {
			changes[key] = Change{Old: oldValue, New: newValue}
		}
	}

	for key, oldValue := range oldEntity {
		if _, stillPresent := newEntity[key]; !stillPresent {
			changes[key] = Change{Old: oldValue, New: Absent, Removed: true}
		}
	}

	return changes
}

func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Snapshot converts a model into the field map used for diffing, keyed by its JSON names.
// Round-tripping through JSON gives both snapshots of an update the same value types.
func Snapshot(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return out, nil
}
