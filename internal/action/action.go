// Package action defines the fixed set of per-row operations a
// transaction may contain (spec.md §3 "Action variants") and their
// results. There is no SQL parser in this engine (explicit non-goal);
// callers build Actions directly, the way the teacher's VDBE bytecode
// stands in for parsed SQL one level down from here.
package action

import (
	"lineagedb/internal/types"
)

// Kind distinguishes the six action variants.
type Kind int

const (
	Add Kind = iota
	Update
	Delete
	Get
	GetVersion
	List
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "Add"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	case Get:
		return "Get"
	case GetVersion:
		return "GetVersion"
	case List:
		return "List"
	default:
		return "Unknown"
	}
}

// IsReadOnly reports whether this action kind never mutates state —
// used by the coordinator to skip WAL logging and TxId advancement
// for transactions composed entirely of such actions (spec §4.D, §8
// property 8).
func (k Kind) IsReadOnly() bool {
	switch k {
	case Get, GetVersion, List:
		return true
	default:
		return false
	}
}

// Action is a tagged union over the six variants. Only the fields
// relevant to Kind are populated; this mirrors the teacher's
// UndoOperation tagged-struct style (pkg/mvcc/undolog.go) rather than
// a Go interface, since the set of variants is fixed and exhaustive
// switches over it are common (apply, logging, CLI rendering).
type Action struct {
	Kind Kind

	// Add
	Value types.Record

	// Update / Delete / Get / GetVersion
	RowId types.RowId
	Patch types.Record // Update only

	// GetVersion
	AtTx types.TxId

	// List
	Predicate types.Record
}

// NewAdd builds an Add action.
func NewAdd(value types.Record) Action {
	return Action{Kind: Add, Value: value.Clone()}
}

// NewUpdate builds an Update action.
func NewUpdate(id types.RowId, patch types.Record) Action {
	return Action{Kind: Update, RowId: id, Patch: patch.Clone()}
}

// NewDelete builds a Delete action.
func NewDelete(id types.RowId) Action {
	return Action{Kind: Delete, RowId: id}
}

// NewGet builds a Get action.
func NewGet(id types.RowId) Action {
	return Action{Kind: Get, RowId: id}
}

// NewGetVersion builds a GetVersion action.
func NewGetVersion(id types.RowId, at types.TxId) Action {
	return Action{Kind: GetVersion, RowId: id, AtTx: at}
}

// NewList builds a List action.
func NewList(predicate types.Record) Action {
	return Action{Kind: List, Predicate: predicate.Clone()}
}

// Result carries the outcome of one action within a transaction's
// response. At most one of Row/Rows is populated depending on Kind
// (Delete, and a Get/GetVersion that finds nothing, populate neither);
// Found distinguishes "no such row" from a zero-value Record.
type Result struct {
	RowId types.RowId // Add: newly assigned id
	Found bool        // Get/GetVersion: whether a visible version existed
	Row   types.Record
	Rows  []RowResult // List
}

// RowResult pairs a matched row's id with its visible record, used by List.
type RowResult struct {
	RowId types.RowId
	Row   types.Record
}
