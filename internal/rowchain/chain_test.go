package rowchain

import (
	"testing"

	"lineagedb/internal/types"
)

func TestChainVisibleAt(t *testing.T) {
	c := New(types.NewRowId())
	v1 := &Version{Value: types.Record{"n": types.NewInt(1)}, BeginTx: 1, EndTx: 3, Kind: Live}
	if err := c.AppendVersion(v1); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	v2 := &Version{Value: types.Record{"n": types.NewInt(2)}, BeginTx: 3, EndTx: types.Infinity, Kind: Live}
	if err := c.AppendVersion(v2); err != nil {
		t.Fatalf("append v2: %v", err)
	}

	cases := []struct {
		at   types.TxId
		want int64 // -1 means nil expected
	}{
		{0, -1},
		{1, 1},
		{2, 1},
		{3, 2},
		{100, 2},
	}
	for _, tc := range cases {
		got := c.VisibleAt(tc.at)
		if tc.want == -1 {
			if got != nil {
				t.Errorf("at %d: want nil, got %v", tc.at, got.Value)
			}
			continue
		}
		if got == nil {
			t.Fatalf("at %d: want version, got nil", tc.at)
		}
		if got.Value["n"].Int() != tc.want {
			t.Errorf("at %d: want n=%d, got %d", tc.at, tc.want, got.Value["n"].Int())
		}
	}
}

func TestChainAppendWithoutClosingCurrentFails(t *testing.T) {
	c := New(types.NewRowId())
	v1 := &Version{BeginTx: 1, EndTx: types.Infinity, Kind: Live}
	if err := c.AppendVersion(v1); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	v2 := &Version{BeginTx: 2, EndTx: types.Infinity, Kind: Live}
	if err := c.AppendVersion(v2); err != ErrChainCorrupt {
		t.Fatalf("expected ErrChainCorrupt, got %v", err)
	}
}

func TestChainAppendAfterTombstoneFails(t *testing.T) {
	c := New(types.NewRowId())
	v1 := &Version{BeginTx: 1, EndTx: 2, Kind: Live}
	if err := c.AppendVersion(v1); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	tomb := &Version{BeginTx: 2, EndTx: types.Infinity, Kind: Tombstone}
	if err := c.AppendVersion(tomb); err != nil {
		t.Fatalf("append tomb: %v", err)
	}
	if !c.IsTombstoned() {
		t.Fatalf("chain should report tombstoned")
	}

	v3 := &Version{BeginTx: 3, EndTx: types.Infinity, Kind: Live}
	if err := c.AppendVersion(v3); err != ErrChainCorrupt {
		t.Fatalf("expected ErrChainCorrupt appending after tombstone, got %v", err)
	}
}

func TestChainCloseCurrent(t *testing.T) {
	c := New(types.NewRowId())
	v1 := &Version{BeginTx: 1, EndTx: types.Infinity, Kind: Live}
	if err := c.AppendVersion(v1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := c.CloseCurrent(5); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.CloseCurrent(6); err != ErrNoOpenVersion {
		t.Fatalf("closing an already-closed chain should fail, got %v", err)
	}
}

func TestChainTrimBeforeNeverRemovesOpenVersion(t *testing.T) {
	c := New(types.NewRowId())
	for i := types.TxId(1); i < 5; i++ {
		end := i + 1
		if i == 4 {
			end = types.Infinity
		}
		v := &Version{BeginTx: i, EndTx: end, Kind: Live}
		if err := c.AppendVersion(v); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if got := c.Len(); got != 4 {
		t.Fatalf("expected 4 versions before trim, got %d", got)
	}

	trimmed := c.TrimBefore(3)
	if trimmed != 2 {
		t.Errorf("expected 2 versions trimmed, got %d", trimmed)
	}
	remaining := c.AllVersions()
	if len(remaining) != 2 {
		t.Fatalf("expected 2 versions remaining, got %d", len(remaining))
	}
	if !remaining[len(remaining)-1].IsOpen() {
		t.Errorf("TrimBefore must never remove the open version")
	}
}
