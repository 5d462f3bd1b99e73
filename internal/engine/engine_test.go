package engine

import (
	"context"
	"testing"

	"lineagedb/internal/table"
	"lineagedb/internal/types"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(Config{
		Storage: StorageFile,
		DataDir: t.TempDir(),
		Schema: []TableSchema{
			{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}},
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestOpenRejectsEmptySchema(t *testing.T) {
	_, err := Open(Config{DataDir: t.TempDir()})
	if err == nil {
		t.Fatalf("expected an error opening with no schema")
	}
}

func TestOpenRejectsMultipleTables(t *testing.T) {
	_, err := Open(Config{
		DataDir: t.TempDir(),
		Schema: []TableSchema{
			{Name: "a", Fields: nil},
			{Name: "b", Fields: nil},
		},
	})
	if err == nil {
		t.Fatalf("expected an error opening with more than one table")
	}
}

func TestEngineAddGetSnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{
		Storage: StorageFile,
		DataDir: dir,
		Schema:  []TableSchema{{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}}},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	resp, err := eng.Submit(ctx, Add(types.Record{"email": types.NewText("a@x.com")}))
	if err != nil {
		t.Fatalf("submit add: %v", err)
	}
	id := resp.PerAction[0].RowId

	if err := eng.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	eng2, err := Open(Config{
		Storage: StorageFile,
		DataDir: dir,
		Schema:  []TableSchema{{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}}},
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer eng2.Close()

	getResp, err := eng2.Submit(ctx, Get(id))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !getResp.PerAction[0].Found {
		t.Fatalf("expected row to survive snapshot + reopen")
	}
}

func TestEngineAddGetSnapshotRestoreBadger(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{
		Storage: StorageBadger,
		DataDir: dir,
		Schema:  []TableSchema{{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}}},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	resp, err := eng.Submit(ctx, Add(types.Record{"email": types.NewText("a@x.com")}))
	if err != nil {
		t.Fatalf("submit add: %v", err)
	}
	id := resp.PerAction[0].RowId

	if err := eng.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	eng2, err := Open(Config{
		Storage: StorageBadger,
		DataDir: dir,
		Schema:  []TableSchema{{Name: "rows", Fields: []table.FieldDescriptor{{Name: "email", Unique: true}}}},
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer eng2.Close()

	getResp, err := eng2.Submit(ctx, Get(id))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if !getResp.PerAction[0].Found {
		t.Fatalf("expected row to survive snapshot + reopen against the badger backend")
	}
}

func TestEngineStatsAndTrim(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()
	resp, err := eng.Submit(ctx, Add(types.Record{"email": types.NewText("a@x.com")}))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id := resp.PerAction[0].RowId

	if _, err := eng.Submit(ctx, Update(id, types.Record{"email": types.NewText("a2@x.com")})); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats := eng.Stats()
	if stats.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", stats.RowCount)
	}

	trimmed := eng.Trim(2)
	if trimmed != 1 {
		t.Errorf("Trim = %d, want 1", trimmed)
	}
}

func TestEngineListMatchesPredicate(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()
	eng.Submit(ctx, Add(types.Record{"email": types.NewText("a@x.com")}))
	eng.Submit(ctx, Add(types.Record{"email": types.NewText("b@x.com")}))

	resp, err := eng.Submit(ctx, List(types.Record{"email": types.NewText("a@x.com")}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.PerAction[0].Rows) != 1 {
		t.Fatalf("expected 1 matching row, got %d", len(resp.PerAction[0].Rows))
	}
}
