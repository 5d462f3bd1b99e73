// Package engine is the top-level facade (components G and I): it
// owns table construction from a schema, opens the chosen persistence
// backend, runs the startup restore protocol, and wraps the
// coordinator with the public Submit/Snapshot/Reset/Stats/Close API
// that external callers (the GraphQL/TCP frontend, the CLI, tests) see.
//
// Grounded on the teacher's pkg/api package shape (only db_test.go
// exists there — an Open(path)/Close() facade over a database handle)
// generalized to this engine's config (storage backend choice,
// schema, queue depth).
package engine

import (
	"context"
	"fmt"

	"lineagedb/internal/action"
	"lineagedb/internal/coordinator"
	"lineagedb/internal/logging"
	"lineagedb/internal/persistence"
	"lineagedb/internal/persistence/badgerstore"
	"lineagedb/internal/persistence/filestore"
	"lineagedb/internal/table"
	"lineagedb/internal/types"
)

// StorageKind selects which persistence.Backend implementation backs
// the engine (spec.md §6 CLI surface "--storage {file|…}").
type StorageKind string

const (
	StorageFile   StorageKind = "file"
	StorageBadger StorageKind = "badger"
)

// TableSchema is one table's fixed, compile-time record shape (spec.md
// non-goal: no dynamic schema/DDL).
type TableSchema struct {
	Name   string
	Fields []table.FieldDescriptor
}

// Config configures Open.
type Config struct {
	Storage    StorageKind
	DataDir    string
	Schema     []TableSchema
	QueueDepth int // 0 uses the coordinator's default
	Logger     *logging.Logger
}

// Engine is the single entry point external callers use.
type Engine struct {
	tableName string
	tbl       *table.Table
	coord     *coordinator.Coordinator
	backend   persistence.Backend
	logger    *logging.Logger
}

// Open builds the configured storage backend, constructs tables from
// schema, restores durable state, and starts the coordinator.
func Open(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.FromEnv()
	}
	if len(cfg.Schema) == 0 {
		return nil, fmt.Errorf("engine: config has no tables")
	}

	backend, err := openBackend(cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	// This engine's persistence.Backend snapshots/restores one table's
	// worth of state per instance (see DESIGN.md); a second table would
	// need its own Backend opened against a distinct sub-directory or
	// key prefix, which Config does not yet expose a way to configure.
	if len(cfg.Schema) > 1 {
		backend.Close()
		return nil, fmt.Errorf("engine: multi-table schemas are not yet supported by a single persistence.Backend instance (see DESIGN.md)")
	}

	schema := cfg.Schema[0]
	tbl := table.New(schema.Name, schema.Fields)

	var opts []coordinator.Option
	if cfg.QueueDepth > 0 {
		opts = append(opts, coordinator.WithQueueDepth(cfg.QueueDepth))
	}

	if _, err := coordinator.Restore(tbl, backend, logger); err != nil {
		backend.Close()
		return nil, fmt.Errorf("engine: restore: %w", err)
	}

	coord := coordinator.New(tbl, backend, logger, opts...)

	return &Engine{
		tableName: schema.Name,
		tbl:       tbl,
		coord:     coord,
		backend:   backend,
		logger:    logger,
	}, nil
}

// TableName returns the single table this engine was opened with.
func (e *Engine) TableName() string { return e.tableName }

// Fields returns the table's fixed field descriptors, for CLI/REPL
// schema introspection.
func (e *Engine) Fields() []table.FieldDescriptor { return e.tbl.Fields() }

func openBackend(kind StorageKind, dataDir string) (persistence.Backend, error) {
	switch kind {
	case StorageBadger:
		return badgerstore.Open(dataDir)
	case StorageFile, "":
		return filestore.Open(dataDir)
	default:
		return nil, fmt.Errorf("engine: unknown storage kind %q", kind)
	}
}

// Submit forwards txn to the coordinator (spec.md §6 Engine API).
func (e *Engine) Submit(ctx context.Context, txn coordinator.Transaction) (coordinator.Response, error) {
	return e.coord.Submit(ctx, txn)
}

// Snapshot triggers the operator snapshot() command.
func (e *Engine) Snapshot(ctx context.Context) error {
	return e.coord.Snapshot(ctx)
}

// Reset triggers the operator reset() command (tests only, per spec.md §6).
func (e *Engine) Reset(ctx context.Context) error {
	return e.coord.Reset(ctx)
}

// Stats reports current engine statistics (spec.md §6 stats()).
func (e *Engine) Stats() coordinator.Stats {
	return e.coord.Stats()
}

// Trim runs the operator trim(before_tx) command (SPEC_FULL.md
// supplemented feature).
func (e *Engine) Trim(beforeTx types.TxId) int {
	return e.coord.Trim(beforeTx)
}

// Halted reports whether the engine has stopped serving writes after
// an internal invariant violation (spec.md §7).
func (e *Engine) Halted() bool {
	return e.coord.Halted()
}

// Close stops the coordinator's writer goroutine and releases the
// persistence backend's handles.
func (e *Engine) Close() error {
	e.coord.Stop()
	return e.backend.Close()
}

// Add is a convenience helper building a single-action Add transaction.
func Add(value types.Record) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewAdd(value)}}
}

// Update is a convenience helper building a single-action Update transaction.
func Update(id types.RowId, patch types.Record) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewUpdate(id, patch)}}
}

// Delete is a convenience helper building a single-action Delete transaction.
func Delete(id types.RowId) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewDelete(id)}}
}

// Get is a convenience helper building a single-action Get transaction.
func Get(id types.RowId) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewGet(id)}}
}

// GetVersion is a convenience helper building a single-action
// GetVersion transaction.
func GetVersion(id types.RowId, at types.TxId) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewGetVersion(id, at)}}
}

// List is a convenience helper building a single-action List transaction.
func List(predicate types.Record) coordinator.Transaction {
	return coordinator.Transaction{Actions: []action.Action{action.NewList(predicate)}}
}
