package index

import (
	"testing"

	"lineagedb/internal/types"
)

func TestUniqueCheckInsertConflict(t *testing.T) {
	u := New("email")
	id1 := types.NewRowId()
	id2 := types.NewRowId()
	val := types.NewText("a@example.com")

	if err := u.CheckInsert(val, id1); err != nil {
		t.Fatalf("unbound value should not conflict: %v", err)
	}
	u.Insert(val, id1)

	if err := u.CheckInsert(val, id1); err != nil {
		t.Errorf("a row should not conflict with its own binding: %v", err)
	}
	if err := u.CheckInsert(val, id2); err == nil {
		t.Errorf("expected uniqueness violation for a second row, got nil")
	}
}

func TestUniqueNullNeverParticipates(t *testing.T) {
	u := New("email")
	id1 := types.NewRowId()
	id2 := types.NewRowId()

	if err := u.CheckInsert(types.NewNull(), id1); err != nil {
		t.Fatalf("NULL should never conflict: %v", err)
	}
	u.Insert(types.NewNull(), id1)
	if err := u.CheckInsert(types.NewNull(), id2); err != nil {
		t.Fatalf("NULL should never conflict even after insert: %v", err)
	}
	if u.Len() != 0 {
		t.Errorf("NULL should never be bound, Len()=%d", u.Len())
	}
}

func TestUniqueRemove(t *testing.T) {
	u := New("email")
	id := types.NewRowId()
	val := types.NewText("x@example.com")
	u.Insert(val, id)
	if u.Len() != 1 {
		t.Fatalf("expected 1 bound entry, got %d", u.Len())
	}
	u.Remove(val, id)
	if u.Len() != 0 {
		t.Errorf("expected 0 bound entries after remove, got %d", u.Len())
	}
	if _, ok := u.Lookup(val); ok {
		t.Errorf("value should no longer resolve after remove")
	}
}

func TestUniqueRemoveMismatchedIDIgnored(t *testing.T) {
	u := New("email")
	id1 := types.NewRowId()
	id2 := types.NewRowId()
	val := types.NewText("x@example.com")
	u.Insert(val, id1)
	u.Remove(val, id2) // mismatched id: should be a no-op
	if u.Len() != 1 {
		t.Errorf("remove with mismatched id should not unbind, Len()=%d", u.Len())
	}
}

func TestUniqueKeyDistinguishesKinds(t *testing.T) {
	u := New("f")
	id1 := types.NewRowId()
	id2 := types.NewRowId()
	u.Insert(types.NewText("1"), id1)
	if err := u.CheckInsert(types.NewInt(1), id2); err != nil {
		t.Errorf("text %q and int 1 should not collide as keys: %v", "1", err)
	}
}
