package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"lineagedb/internal/types"
)

func TestAppendAndReadWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	entries := []struct {
		tx   types.TxId
		data []byte
	}{
		{1, []byte("first")},
		{2, []byte("second")},
		{3, []byte("third")},
	}
	for _, e := range entries {
		if err := s.AppendWAL(e.tx, e.data); err != nil {
			t.Fatalf("AppendWAL(%d): %v", e.tx, err)
		}
	}

	var got []types.TxId
	err = s.ReadWAL(0, func(tx types.TxId, payload []byte) error {
		got = append(got, tx)
		want := entries[len(got)-1]
		if !bytes.Equal(payload, want.data) {
			t.Errorf("entry %d: payload = %q, want %q", tx, payload, want.data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWAL: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
}

func TestReadWALFromTxSkipsEarlierEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.AppendWAL(1, []byte("a"))
	s.AppendWAL(2, []byte("b"))
	s.AppendWAL(3, []byte("c"))

	var got []types.TxId
	err = s.ReadWAL(1, func(tx types.TxId, payload []byte) error {
		got = append(got, tx)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWAL: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3], got %v", got)
	}
}

func TestReadWALStopsAtCorruptTail(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.AppendWAL(1, []byte("good")); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Close()

	// Simulate a crash mid-append: append garbage bytes that don't form
	// a complete, checksummed frame.
	f, err := os.OpenFile(filepath.Join(dir, "wal.log"), os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open wal for corruption: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 0, 0, 0, 0, 99, 5}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var got []types.TxId
	err = s2.ReadWAL(0, func(tx types.TxId, payload []byte) error {
		got = append(got, tx)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWAL should tolerate a corrupt tail, got error: %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only the valid first entry, got %v", got)
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, _, ok, err := s.ReadSnapshot(); err != nil || ok {
		t.Fatalf("expected no snapshot yet, got ok=%v err=%v", ok, err)
	}

	payload := []byte("state-bytes")
	if err := s.WriteSnapshot(42, payload); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	tx, state, ok, err := s.ReadSnapshot()
	if err != nil || !ok {
		t.Fatalf("ReadSnapshot failed: ok=%v err=%v", ok, err)
	}
	if tx != 42 {
		t.Errorf("tx = %d, want 42", tx)
	}
	if !bytes.Equal(state, payload) {
		t.Errorf("state = %q, want %q", state, payload)
	}
}

func TestWriteSnapshotOverwritesPrior(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.WriteSnapshot(1, []byte("old"))
	s.WriteSnapshot(2, []byte("new-longer-payload"))

	tx, state, ok, err := s.ReadSnapshot()
	if err != nil || !ok {
		t.Fatalf("ReadSnapshot failed: ok=%v err=%v", ok, err)
	}
	if tx != 2 || string(state) != "new-longer-payload" {
		t.Fatalf("expected latest snapshot, got tx=%d state=%q", tx, state)
	}
}

func TestTruncateWALToKeepsSurvivors(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.AppendWAL(1, []byte("a"))
	s.AppendWAL(2, []byte("b"))
	s.AppendWAL(3, []byte("c"))

	if err := s.TruncateWALTo(2); err != nil {
		t.Fatalf("TruncateWALTo: %v", err)
	}

	var got []types.TxId
	err = s.ReadWAL(0, func(tx types.TxId, payload []byte) error {
		got = append(got, tx)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWAL after truncate: %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected only tx 3 to survive, got %v", got)
	}
}

func TestReopenPreservesWAL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.AppendWAL(1, []byte("persisted"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	var got []byte
	err = s2.ReadWAL(0, func(tx types.TxId, payload []byte) error {
		got = payload
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWAL after reopen: %v", err)
	}
	if string(got) != "persisted" {
		t.Fatalf("expected entry to survive reopen, got %q", got)
	}
}
