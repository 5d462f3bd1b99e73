package types

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// ValueKind identifies which field of Value is populated.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindText
	KindBool
	KindBlob
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindText:
		return "TEXT"
	case KindBool:
		return "BOOL"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is a closed sum type for record field values, deliberately
// trimmed to the handful of kinds an equality predicate needs to
// compare. There is no schema/DDL in this engine, so Value carries its
// own tag rather than relying on a column type catalog.
type Value struct {
	kind    ValueKind
	intVal  int64
	fltVal  float64
	textVal string
	boolVal bool
	blobVal []byte
}

func NewNull() Value { return Value{kind: KindNull} }

func NewInt(i int64) Value { return Value{kind: KindInt, intVal: i} }

func NewFloat(f float64) Value { return Value{kind: KindFloat, fltVal: f} }

func NewText(s string) Value { return Value{kind: KindText, textVal: s} }

func NewBool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

func NewBlob(b []byte) Value {
	if b == nil {
		return Value{kind: KindBlob}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBlob, blobVal: cp}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Int() int64      { return v.intVal }
func (v Value) Float() float64  { return v.fltVal }
func (v Value) Text() string    { return v.textVal }
func (v Value) Bool() bool      { return v.boolVal }

func (v Value) Blob() []byte {
	if v.blobVal == nil {
		return nil
	}
	cp := make([]byte, len(v.blobVal))
	copy(cp, v.blobVal)
	return cp
}

// Equal compares two values for use by uniqueness indexes and list
// predicates. Values of different kinds are never equal, including
// NULL to NULL (NULL never participates in uniqueness or matches an
// equality predicate, matching ordinary SQL equality semantics).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return false
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.fltVal == other.fltVal
	case KindText:
		return v.textVal == other.textVal
	case KindBool:
		return v.boolVal == other.boolVal
	case KindBlob:
		if len(v.blobVal) != len(other.blobVal) {
			return false
		}
		for i := range v.blobVal {
			if v.blobVal[i] != other.blobVal[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "<null>"
	case KindInt:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat:
		return fmt.Sprintf("%g", v.fltVal)
	case KindText:
		return v.textVal
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindBlob:
		return fmt.Sprintf("<blob:%d bytes>", len(v.blobVal))
	default:
		return "<unknown>"
	}
}

// valueWire is the exported mirror of Value used only for gob
// encoding; Value itself keeps its fields unexported to stop callers
// from constructing it outside the New* constructors.
type valueWire struct {
	Kind    ValueKind
	IntVal  int64
	FltVal  float64
	TextVal string
	BoolVal bool
	BlobVal []byte
}

// MarshalBinary implements encoding.BinaryMarshaler so Value nests
// cleanly inside gob-encoded Records without exposing its fields.
func (v Value) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	wire := valueWire{
		Kind:    v.kind,
		IntVal:  v.intVal,
		FltVal:  v.fltVal,
		TextVal: v.textVal,
		BoolVal: v.boolVal,
		BlobVal: v.blobVal,
	}
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Value) UnmarshalBinary(data []byte) error {
	var wire valueWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return err
	}
	v.kind = wire.Kind
	v.intVal = wire.IntVal
	v.fltVal = wire.FltVal
	v.textVal = wire.TextVal
	v.boolVal = wire.BoolVal
	v.blobVal = wire.BlobVal
	return nil
}
