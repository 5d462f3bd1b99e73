package action

import (
	"testing"

	"lineagedb/internal/types"
)

func TestIsReadOnly(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{Add, false},
		{Update, false},
		{Delete, false},
		{Get, true},
		{GetVersion, true},
		{List, true},
	}
	for _, tc := range cases {
		if got := tc.kind.IsReadOnly(); got != tc.want {
			t.Errorf("%v.IsReadOnly() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestNewAddClonesValue(t *testing.T) {
	rec := types.Record{"a": types.NewInt(1)}
	a := NewAdd(rec)
	rec["a"] = types.NewInt(99)
	if !a.Value["a"].Equal(types.NewInt(1)) {
		t.Fatalf("NewAdd must clone its value, got mutated by caller")
	}
}

func TestNewUpdateClonesPatch(t *testing.T) {
	id := types.NewRowId()
	patch := types.Record{"a": types.NewInt(1)}
	a := NewUpdate(id, patch)
	patch["a"] = types.NewInt(99)
	if !a.Patch["a"].Equal(types.NewInt(1)) {
		t.Fatalf("NewUpdate must clone its patch, got mutated by caller")
	}
	if a.RowId != id {
		t.Errorf("RowId mismatch")
	}
}

func TestKindString(t *testing.T) {
	if Add.String() != "Add" {
		t.Errorf("Add.String() = %q", Add.String())
	}
	if Kind(99).String() != "Unknown" {
		t.Errorf("unknown kind should stringify to Unknown")
	}
}
