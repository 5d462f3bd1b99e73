// Command lineagedb is the thin CLI entry point (spec.md §6 "CLI
// surface: thin; not core"): flag parsing, schema wiring, and handing
// off to the interactive shell. Grounded on the teacher's
// cmd/turdb/main.go (path-or-:memory: argument, construct a REPL,
// defer Close, Run) generalized to this engine's flag surface.
package main

import (
	"flag"
	"fmt"
	"os"

	"lineagedb/internal/engine"
	"lineagedb/internal/logging"
	"lineagedb/internal/replcli"
	"lineagedb/internal/table"
)

func main() {
	var (
		storage    = flag.String("storage", "file", "persistence backend: file or badger")
		dataDir    = flag.String("data", "./lineagedb-data", "data directory for the persistence backend")
		queueDepth = flag.Int("queue-depth", 64, "bounded write-queue depth")
		_          = flag.Int("port", 0, "reserved for a future network frontend; unused by this CLI")
		_          = flag.String("address", "", "reserved for a future network frontend; unused by this CLI")
		_          = flag.Bool("log-http", false, "reserved for a future network frontend; unused by this CLI")
		_          = flag.Int("http-workers", 0, "reserved for a future network frontend; unused by this CLI")
	)
	flag.Parse()

	logger := logging.FromEnv()

	eng, err := engine.Open(engine.Config{
		Storage:    engine.StorageKind(*storage),
		DataDir:    *dataDir,
		Schema:     defaultSchema(),
		QueueDepth: *queueDepth,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "lineagedb: failed to open engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	repl := replcli.New(eng, os.Stdin, os.Stdout, os.Stderr)
	repl.Run()

	if eng.Halted() {
		fmt.Fprintln(os.Stderr, "lineagedb: engine halted on an internal invariant violation")
		os.Exit(1)
	}
}

// defaultSchema declares the one fixed record type this CLI session
// operates on. There is no DDL (spec.md non-goal): schemas are
// compile-time fixed; a real deployment would generate or configure
// this from the frontend's own schema definition (§1 "explicitly out
// of scope").
func defaultSchema() []engine.TableSchema {
	return []engine.TableSchema{
		{
			Name: "rows",
			Fields: []table.FieldDescriptor{
				{Name: "id", Unique: false},
			},
		},
	}
}
