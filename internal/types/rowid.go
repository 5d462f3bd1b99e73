// Package types holds the primitive identifiers and value representation
// shared by every layer of the engine: RowId, TxId, and the small closed
// Value sum type that record fields are built from.
package types

import (
	"github.com/google/uuid"
)

// RowId is a stable 128-bit id assigned at row creation. It is never
// reused, even after the row is deleted and trimmed.
type RowId [16]byte

// NilRowId is the zero value, never assigned to a real row.
var NilRowId RowId

// NewRowId mints a fresh random RowId.
func NewRowId() RowId {
	return RowId(uuid.New())
}

// String renders the id in canonical UUID form.
func (id RowId) String() string {
	return uuid.UUID(id).String()
}

// ParseRowId parses the canonical UUID string form produced by String.
func ParseRowId(s string) (RowId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RowId{}, err
	}
	return RowId(u), nil
}

// Bytes returns the 16-byte wire representation.
func (id RowId) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// IsNil reports whether this is the zero RowId.
func (id RowId) IsNil() bool {
	return id == NilRowId
}
