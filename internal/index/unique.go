// Package index implements the uniqueness index (component C): a
// FieldValue -> RowId mapping maintained per unique-constrained field,
// with conflict detection performed before any version is installed.
package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"lineagedb/internal/types"
)

// ErrUniquenessViolation is returned when Insert would bind a value
// that's already bound to a different row.
type ErrUniquenessViolation struct {
	Field string
	Value types.Value
}

func (e *ErrUniquenessViolation) Error() string {
	return fmt.Sprintf("uniqueness violation on field %q value %s", e.Field, e.Value)
}

// Unique maps a single field's values to the owning RowId.
type Unique struct {
	mu    sync.RWMutex
	field string
	byKey map[string]types.RowId
}

// New creates an empty uniqueness index over the given field name.
func New(field string) *Unique {
	return &Unique{field: field, byKey: make(map[string]types.RowId)}
}

// Field returns the name of the indexed field.
func (u *Unique) Field() string { return u.field }

// Lookup returns the RowId bound to value, if any.
func (u *Unique) Lookup(value types.Value) (types.RowId, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.byKey[key(value)]
	return id, ok
}

// CheckInsert reports whether binding value to id would conflict with
// an existing, different binding. It does not mutate the index — used
// during validation so a conflict can be detected before any version
// is installed (spec §4.C step 2).
func (u *Unique) CheckInsert(value types.Value, id types.RowId) error {
	if value.IsNull() {
		return nil // NULL never participates in uniqueness
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	if existing, ok := u.byKey[key(value)]; ok && existing != id {
		return &ErrUniquenessViolation{Field: u.field, Value: value}
	}
	return nil
}

// Insert binds value to id, overwriting any prior binding to the same
// id (used when the diff's added set is applied at commit time).
func (u *Unique) Insert(value types.Value, id types.RowId) {
	if value.IsNull() {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.byKey[key(value)] = id
}

// Remove unbinds value, if it is currently bound to id. A mismatched
// id is ignored (value was already rebound to a newer row before this
// call ran — should not happen given single-writer serialization, but
// remaining defensive costs nothing here).
func (u *Unique) Remove(value types.Value, id types.RowId) {
	if value.IsNull() {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.byKey[key(value)]; ok && existing == id {
		delete(u.byKey, key(value))
	}
}

// Len returns the number of bound values (for stats).
func (u *Unique) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byKey)
}

// key builds a comparable map key from a Value. Kind is prefixed so
// values of different kinds that happen to encode to the same bytes
// (e.g. blob "1" vs text "1") never collide.
func key(v types.Value) string {
	switch v.Kind() {
	case types.KindInt:
		var b [9]byte
		b[0] = byte(types.KindInt)
		binary.BigEndian.PutUint64(b[1:], uint64(v.Int()))
		return string(b[:])
	case types.KindFloat:
		var b [9]byte
		b[0] = byte(types.KindFloat)
		binary.BigEndian.PutUint64(b[1:], math.Float64bits(v.Float()))
		return string(b[:])
	case types.KindBool:
		if v.Bool() {
			return string([]byte{byte(types.KindBool), 1})
		}
		return string([]byte{byte(types.KindBool), 0})
	case types.KindText:
		return string([]byte{byte(types.KindText)}) + v.Text()
	case types.KindBlob:
		return string([]byte{byte(types.KindBlob)}) + string(v.Blob())
	default:
		return string([]byte{byte(types.KindNull)})
	}
}
