// Package replcli is an interactive shell over the engine's fixed
// Action verbs (spec.md §3 "Action variants"). There is no SQL parser
// here (explicit non-goal): commands map directly onto Add / Update /
// Delete / Get / GetVersion / List plus the three operator commands
// snapshot / reset / stats, and the supplemented trim command
// (SPEC_FULL.md §9).
//
// Grounded on the teacher's pkg/cli REPL/Shell split (prompt +
// continuation prompt, dot-commands, line-buffered reads via
// bufio.Reader) generalized from parsed SQL statements to this fixed
// verb set.
package replcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lineagedb/internal/coordinator"
	"lineagedb/internal/engine"
	"lineagedb/internal/types"
)

// REPL reads commands from input and executes them against an Engine,
// writing results to output and errors to errOutput.
type REPL struct {
	eng       *engine.Engine
	reader    *bufio.Reader
	output    io.Writer
	errOutput io.Writer
	prompt    string
	exit      bool
}

// New builds a REPL over an already-open Engine.
func New(eng *engine.Engine, input io.Reader, output, errOutput io.Writer) *REPL {
	if errOutput == nil {
		errOutput = output
	}
	return &REPL{
		eng:       eng,
		reader:    bufio.NewReader(input),
		output:    output,
		errOutput: errOutput,
		prompt:    "lineagedb> ",
	}
}

// Run reads and executes commands until EOF or .exit.
func (r *REPL) Run() {
	fmt.Fprintln(r.output, "lineagedb")
	fmt.Fprintln(r.output, "Enter .help for command list, .exit to quit.")

	for !r.exit {
		fmt.Fprint(r.output, r.prompt)
		line, err := r.reader.ReadString('\n')
		line = strings.TrimSpace(line)

		if line != "" {
			if strings.HasPrefix(line, ".") {
				r.handleDotCommand(line)
			} else if execErr := r.execute(line); execErr != nil {
				fmt.Fprintf(r.errOutput, "error: %v\n", execErr)
			}
		}

		if err == io.EOF {
			fmt.Fprintln(r.output)
			return
		}
	}
}

func (r *REPL) handleDotCommand(line string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case ".exit", ".quit":
		r.exit = true
	case ".help":
		r.printHelp()
	default:
		fmt.Fprintf(r.errOutput, "unknown command %q, try .help\n", line)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.output, `Commands:
  add <json-object>
  update <row-id> <json-patch>
  delete <row-id>
  get <row-id>
  getversion <row-id> <tx>
  list [field=value ...]
  snapshot
  reset
  stats
  trim <tx>
  .exit`)
}

// execute parses one line into a verb plus arguments and runs it.
func (r *REPL) execute(line string) error {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	ctx := context.Background()

	switch verb {
	case "add":
		rec, err := parseRecord(rest)
		if err != nil {
			return err
		}
		resp, err := r.eng.Submit(ctx, engine.Add(rec))
		return r.report(resp, err)

	case "update":
		if len(args) < 1 {
			return fmt.Errorf("usage: update <row-id> <json-patch>")
		}
		id, err := types.ParseRowId(args[0])
		if err != nil {
			return fmt.Errorf("bad row id: %w", err)
		}
		patch, err := parseRecord(strings.TrimSpace(strings.TrimPrefix(rest, args[0])))
		if err != nil {
			return err
		}
		resp, err := r.eng.Submit(ctx, engine.Update(id, patch))
		return r.report(resp, err)

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: delete <row-id>")
		}
		id, err := types.ParseRowId(args[0])
		if err != nil {
			return fmt.Errorf("bad row id: %w", err)
		}
		resp, err := r.eng.Submit(ctx, engine.Delete(id))
		return r.report(resp, err)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <row-id>")
		}
		id, err := types.ParseRowId(args[0])
		if err != nil {
			return fmt.Errorf("bad row id: %w", err)
		}
		resp, err := r.eng.Submit(ctx, engine.Get(id))
		return r.report(resp, err)

	case "getversion":
		if len(args) != 2 {
			return fmt.Errorf("usage: getversion <row-id> <tx>")
		}
		id, err := types.ParseRowId(args[0])
		if err != nil {
			return fmt.Errorf("bad row id: %w", err)
		}
		tx, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad tx: %w", err)
		}
		resp, err := r.eng.Submit(ctx, engine.GetVersion(id, types.TxId(tx)))
		return r.report(resp, err)

	case "list":
		predicate, err := parseEqualityArgs(args)
		if err != nil {
			return err
		}
		resp, err := r.eng.Submit(ctx, engine.List(predicate))
		return r.report(resp, err)

	case "snapshot":
		if err := r.eng.Snapshot(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.output, "ok")
		return nil

	case "reset":
		if err := r.eng.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.output, "ok")
		return nil

	case "stats":
		stats := r.eng.Stats()
		fmt.Fprintf(r.output, "latest_committed_tx=%d row_count=%d logged_entries=%d indexes=%v\n",
			stats.LatestCommittedTx, stats.RowCount, stats.LoggedEntries, stats.IndexSizes)
		return nil

	case "trim":
		if len(args) != 1 {
			return fmt.Errorf("usage: trim <tx>")
		}
		tx, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad tx: %w", err)
		}
		n := r.eng.Trim(types.TxId(tx))
		fmt.Fprintf(r.output, "trimmed %d versions\n", n)
		return nil

	default:
		return fmt.Errorf("unknown command %q, try .help", verb)
	}
}

func (r *REPL) report(resp coordinator.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Aborted {
		fmt.Fprintf(r.output, "aborted: %v\n", resp.Reason)
		return nil
	}
	for _, res := range resp.PerAction {
		switch {
		case res.Rows != nil:
			fmt.Fprintf(r.output, "tx=%d %d row(s):\n", resp.Tx, len(res.Rows))
			for _, row := range res.Rows {
				fmt.Fprintf(r.output, "  %s %s\n", row.RowId, row.Row)
			}
		case !res.Found:
			fmt.Fprintf(r.output, "tx=%d not found\n", resp.Tx)
		default:
			fmt.Fprintf(r.output, "tx=%d id=%s %s\n", resp.Tx, res.RowId, res.Row)
		}
	}
	return nil
}

// parseRecord parses a JSON object literal into a types.Record.
func parseRecord(s string) (types.Record, error) {
	if s == "" {
		return types.Record{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid json object: %w", err)
	}
	return recordFromJSON(raw), nil
}

// parseEqualityArgs parses `field=value` tokens into a predicate
// Record (conjunction of equalities only, per spec.md non-goal on OR/IN).
func parseEqualityArgs(args []string) (types.Record, error) {
	rec := make(types.Record, len(args))
	for _, a := range args {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad predicate clause %q, want field=value", a)
		}
		rec[parts[0]] = valueFromString(parts[1])
	}
	return rec, nil
}

func recordFromJSON(raw map[string]any) types.Record {
	rec := make(types.Record, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			rec[k] = types.NewNull()
		case bool:
			rec[k] = types.NewBool(val)
		case float64:
			if val == float64(int64(val)) {
				rec[k] = types.NewInt(int64(val))
			} else {
				rec[k] = types.NewFloat(val)
			}
		case string:
			rec[k] = types.NewText(val)
		default:
			rec[k] = types.NewText(fmt.Sprintf("%v", val))
		}
	}
	return rec
}

// valueFromString infers a Value kind from a bare command-line token:
// integers and floats parse as numbers, "true"/"false" as bool,
// everything else as text.
func valueFromString(s string) types.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewInt(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewFloat(f)
	}
	if s == "true" || s == "false" {
		return types.NewBool(s == "true")
	}
	return types.NewText(s)
}
