// Package table implements the Table (component B) and wires it to
// the row version chain (component A) and the uniqueness index
// (component C). It evaluates the six Action variants against a
// read snapshot plus a per-transaction staging buffer (spec.md §4.B),
// and installs or discards that staging buffer at commit/rollback.
//
// Grounded on the teacher's pkg/mvcc/store.go VersionedStore, trimmed
// of its B-tree backing (no on-disk page file in this design — see
// DESIGN.md) and its ConflictDetector (unneeded: spec.md mandates one
// serialized writer, so concurrent write-write conflicts cannot arise
// — see DESIGN.md for the full justification).
package table

import (
	"errors"
	"fmt"
	"sync"

	"lineagedb/internal/action"
	"lineagedb/internal/index"
	"lineagedb/internal/rowchain"
	"lineagedb/internal/types"
)

// ErrValidation covers missing rows, updates on tombstoned ids, and
// out-of-range GetVersion requests.
var ErrValidation = errors.New("table: validation failed")

// ErrRowNotFound is the specific ErrValidation case returned when an
// Update or Delete targets a row that does not exist. Get does not
// return it; it reports an absent row with Found=false.
var ErrRowNotFound = fmt.Errorf("%w: row not found", ErrValidation)

// ErrRowTombstoned indicates an Update/Delete targeted a row whose
// chain already ends in a tombstone (invariant 3: terminal).
var ErrRowTombstoned = fmt.Errorf("%w: row is tombstoned", ErrValidation)

// FieldDescriptor declares one field of a table's fixed, compile-time
// record type: its name and whether it carries a uniqueness
// constraint. There is no DDL: a Table's fields are fixed at
// construction (spec.md non-goal: dynamic schema).
type FieldDescriptor struct {
	Name   string
	Unique bool
}

// pendingRow is the staged effect of a transaction-in-progress on one
// row, keyed by RowId in a Plan.
type pendingRow struct {
	isNew   bool // Add: row does not exist in the committed table yet
	deleted bool // Delete: row's next version is a tombstone
	record  types.Record
}

// Plan accumulates one transaction's staged writes across a sequence
// of actions so that later actions in the same transaction observe
// earlier ones (spec §4.F step 2), without mutating the committed
// table until Commit installs it.
type Plan struct {
	tx     types.TxId
	staged map[types.RowId]*pendingRow
	order  []types.RowId
}

func newPlan(tx types.TxId) *Plan {
	return &Plan{tx: tx, staged: make(map[types.RowId]*pendingRow)}
}

func (p *Plan) touch(id types.RowId, pr *pendingRow) {
	if _, ok := p.staged[id]; !ok {
		p.order = append(p.order, id)
	}
	p.staged[id] = pr
}

// Table owns row chains keyed by id plus one Unique index per
// unique-constrained field.
type Table struct {
	mu      sync.RWMutex
	name    string
	fields  []FieldDescriptor
	unique  map[string]*index.Unique // field name -> index
	rows    map[types.RowId]*rowchain.Chain
}

// New creates an empty table with the given fixed field list.
func New(name string, fields []FieldDescriptor) *Table {
	t := &Table{
		name:   name,
		fields: fields,
		unique: make(map[string]*index.Unique),
		rows:   make(map[types.RowId]*rowchain.Chain),
	}
	for _, f := range fields {
		if f.Unique {
			t.unique[f.Name] = index.New(f.Name)
		}
	}
	return t
}

// Name returns the table's name.
func (t *Table) Name() string { return t.name }

// NewPlan starts a fresh staging buffer for transaction tx.
func (t *Table) NewPlan(tx types.TxId) *Plan {
	return newPlan(tx)
}

// currentChain returns the chain for id, or nil if the row has never
// existed.
func (t *Table) currentChain(id types.RowId) *rowchain.Chain {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows[id]
}

// effectiveAt resolves the record a reader within plan's transaction
// would see for id: the plan's staged override if one exists, else
// the committed version visible at baseTx. The bool result is false
// if the row does not exist / is not live from either source.
func (t *Table) effectiveAt(id types.RowId, baseTx types.TxId, plan *Plan) (types.Record, bool) {
	if plan != nil {
		if pr, ok := plan.staged[id]; ok {
			if pr.deleted {
				return nil, false
			}
			return pr.record, true
		}
	}
	chain := t.currentChain(id)
	if chain == nil {
		return nil, false
	}
	v := chain.VisibleAt(baseTx)
	if v == nil {
		return nil, false
	}
	return v.Value, true
}

// checkUnique validates that binding newValues (this row's unique
// fields) does not collide with a committed binding (other than the
// row itself) or with another row already staged earlier in the same
// plan. Because every action in a transaction is validated against
// the cumulative effect of all prior actions in that same
// transaction, checking incrementally here is equivalent to computing
// one global diff over the whole staged batch at the end (spec §4.F
// step 3) — see DESIGN.md.
func (t *Table) checkUnique(id types.RowId, newValues types.Record, plan *Plan) error {
	for field, idx := range t.unique {
		val, ok := newValues[field]
		if !ok || val.IsNull() {
			continue
		}
		// A committed binding only conflicts if the row holding it
		// isn't itself staged for deletion earlier in this same
		// transaction — unbindUnique doesn't run until Commit, so a
		// value freed by an in-progress Delete still appears bound
		// here even though it's legitimately available for reuse.
		if existing, bound := idx.Lookup(val); bound && existing != id {
			if pr, staged := plan.staged[existing]; !staged || !pr.deleted {
				return &index.ErrUniquenessViolation{Field: field, Value: val}
			}
		}
		// Also check against rows staged earlier in this same
		// transaction that haven't committed (and so aren't in idx
		// yet).
		for otherID, pr := range plan.staged {
			if otherID == id || pr.deleted {
				continue
			}
			if other, ok := pr.record[field]; ok && !other.IsNull() && other.Equal(val) {
				return &index.ErrUniquenessViolation{Field: field, Value: val}
			}
		}
	}
	return nil
}

// Apply evaluates one action against the world as of baseTx plus
// plan's staging buffer, staging any write and returning its result.
func (t *Table) Apply(a action.Action, baseTx types.TxId, plan *Plan) (action.Result, error) {
	switch a.Kind {
	case action.Add:
		return t.applyAdd(a, plan)
	case action.Update:
		return t.applyUpdate(a, baseTx, plan)
	case action.Delete:
		return t.applyDelete(a, baseTx, plan)
	case action.Get:
		return t.applyGet(a, baseTx, plan)
	case action.GetVersion:
		return t.applyGetVersion(a, baseTx)
	case action.List:
		return t.applyList(a, baseTx, plan)
	default:
		return action.Result{}, fmt.Errorf("%w: unknown action kind %v", ErrValidation, a.Kind)
	}
}

func (t *Table) applyAdd(a action.Action, plan *Plan) (action.Result, error) {
	id := types.NewRowId()
	if err := t.checkUnique(id, a.Value, plan); err != nil {
		return action.Result{}, err
	}
	plan.touch(id, &pendingRow{isNew: true, record: a.Value.Clone()})
	return action.Result{RowId: id, Found: true, Row: a.Value.Clone()}, nil
}

func (t *Table) applyUpdate(a action.Action, baseTx types.TxId, plan *Plan) (action.Result, error) {
	current, ok := t.effectiveAt(a.RowId, baseTx, plan)
	if !ok {
		if t.wasTombstoned(a.RowId) {
			return action.Result{}, ErrRowTombstoned
		}
		return action.Result{}, ErrRowNotFound
	}
	merged := current.Merge(a.Patch)
	if err := t.checkUnique(a.RowId, merged, plan); err != nil {
		return action.Result{}, err
	}
	plan.touch(a.RowId, &pendingRow{record: merged})
	return action.Result{RowId: a.RowId, Found: true, Row: merged.Clone()}, nil
}

func (t *Table) applyDelete(a action.Action, baseTx types.TxId, plan *Plan) (action.Result, error) {
	_, ok := t.effectiveAt(a.RowId, baseTx, plan)
	if !ok {
		if t.wasTombstoned(a.RowId) {
			return action.Result{}, ErrRowTombstoned
		}
		return action.Result{}, ErrRowNotFound
	}
	plan.touch(a.RowId, &pendingRow{deleted: true})
	return action.Result{RowId: a.RowId, Found: true}, nil
}

func (t *Table) applyGet(a action.Action, baseTx types.TxId, plan *Plan) (action.Result, error) {
	rec, ok := t.effectiveAt(a.RowId, baseTx, plan)
	if !ok {
		return action.Result{RowId: a.RowId, Found: false}, nil
	}
	return action.Result{RowId: a.RowId, Found: true, Row: rec.Clone()}, nil
}

func (t *Table) applyGetVersion(a action.Action, baseTx types.TxId) (action.Result, error) {
	if a.AtTx > baseTx {
		return action.Result{}, fmt.Errorf("%w: at_tx %d exceeds latest committed tx %d", ErrValidation, a.AtTx, baseTx)
	}
	chain := t.currentChain(a.RowId)
	if chain == nil {
		return action.Result{RowId: a.RowId, Found: false}, nil
	}
	v := chain.VisibleAt(a.AtTx)
	if v == nil {
		return action.Result{RowId: a.RowId, Found: false}, nil
	}
	return action.Result{RowId: a.RowId, Found: true, Row: v.Value.Clone()}, nil
}

// applyList dispatches to the O(1) index probe when the predicate
// carries an equality clause on a unique-indexed field, falling back
// to a full scan otherwise (spec §4.B query execution).
func (t *Table) applyList(a action.Action, baseTx types.TxId, plan *Plan) (action.Result, error) {
	if field, value, ok := t.uniqueEqualityClause(a.Predicate); ok {
		return t.applyListIndexed(a, baseTx, plan, field, value), nil
	}
	return t.applyListScan(a, baseTx, plan), nil
}

// uniqueEqualityClause returns the first predicate clause naming a
// unique-indexed field, if any. NULL never participates in uniqueness
// (see index.Unique), so a NULL clause can't be probed and is skipped.
func (t *Table) uniqueEqualityClause(predicate types.Record) (string, types.Value, bool) {
	for field, want := range predicate {
		if want.IsNull() {
			continue
		}
		if _, ok := t.unique[field]; ok {
			return field, want, true
		}
	}
	return "", types.Value{}, false
}

// applyListIndexed probes the unique index on field for value instead
// of walking every row. A unique field binds at most one committed row
// and at most one row staged earlier in this same transaction (plan
// staging never reaches the index until Commit), so the candidate set
// here is at most two ids; each candidate is still checked against the
// full predicate before being returned, since the remaining clauses
// may not match even when the probed field does.
func (t *Table) applyListIndexed(a action.Action, baseTx types.TxId, plan *Plan, field string, value types.Value) action.Result {
	results := make([]action.RowResult, 0, 1)
	seen := make(map[types.RowId]bool, 2)

	if id, ok := t.unique[field].Lookup(value); ok {
		seen[id] = true
		if rec, ok := t.effectiveAt(id, baseTx, plan); ok && rec.MatchesPredicate(a.Predicate) {
			results = append(results, action.RowResult{RowId: id, Row: rec.Clone()})
		}
	}

	if plan != nil {
		for _, id := range plan.order {
			if seen[id] {
				continue
			}
			pr := plan.staged[id]
			if pr.deleted {
				continue
			}
			v, ok := pr.record[field]
			if !ok || !v.Equal(value) {
				continue
			}
			if pr.record.MatchesPredicate(a.Predicate) {
				results = append(results, action.RowResult{RowId: id, Row: pr.record.Clone()})
			}
		}
	}

	return action.Result{Rows: results}
}

// applyListScan is the full-scan path used for every predicate shape
// that doesn't name a unique-indexed field.
func (t *Table) applyListScan(a action.Action, baseTx types.TxId, plan *Plan) action.Result {
	results := make([]action.RowResult, 0)

	t.mu.RLock()
	allIDs := make([]types.RowId, 0, len(t.rows))
	for id := range t.rows {
		allIDs = append(allIDs, id)
	}
	t.mu.RUnlock()

	seen := make(map[types.RowId]bool, len(allIDs))
	for _, id := range allIDs {
		seen[id] = true
		rec, ok := t.effectiveAt(id, baseTx, plan)
		if !ok {
			continue
		}
		if rec.MatchesPredicate(a.Predicate) {
			results = append(results, action.RowResult{RowId: id, Row: rec.Clone()})
		}
	}
	// Rows created earlier in this same transaction (not yet in
	// t.rows) must also be considered, per the "staging set" rule.
	if plan != nil {
		for _, id := range plan.order {
			if seen[id] {
				continue
			}
			pr := plan.staged[id]
			if pr.deleted {
				continue
			}
			if pr.record.MatchesPredicate(a.Predicate) {
				results = append(results, action.RowResult{RowId: id, Row: pr.record.Clone()})
			}
		}
	}
	return action.Result{Rows: results}
}

func (t *Table) wasTombstoned(id types.RowId) bool {
	chain := t.currentChain(id)
	return chain != nil && chain.IsTombstoned()
}

// Commit installs plan's staged effects: closes superseded versions,
// appends new ones, and updates uniqueness indexes. By construction
// (validated during Apply/checkUnique) this step cannot fail.
func (t *Table) Commit(plan *Plan) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range plan.order {
		pr := plan.staged[id]
		switch {
		case pr.isNew:
			chain := rowchain.New(id)
			v := &rowchain.Version{Value: pr.record, BeginTx: plan.tx, EndTx: types.Infinity, Kind: rowchain.Live}
			if err := chain.AppendVersion(v); err != nil {
				panic(fmt.Sprintf("table: internal invariant violated installing new row %s: %v", id, err))
			}
			t.rows[id] = chain
			t.bindUnique(id, pr.record)

		case pr.deleted:
			chain := t.rows[id]
			old := chain.VisibleAt(plan.tx - 1)
			if err := chain.CloseCurrent(plan.tx); err != nil {
				panic(fmt.Sprintf("table: internal invariant violated closing row %s: %v", id, err))
			}
			tomb := &rowchain.Version{BeginTx: plan.tx, EndTx: types.Infinity, Kind: rowchain.Tombstone}
			if err := chain.AppendVersion(tomb); err != nil {
				panic(fmt.Sprintf("table: internal invariant violated tombstoning row %s: %v", id, err))
			}
			if old != nil {
				t.unbindUnique(id, old.Value)
			}

		default: // update
			chain := t.rows[id]
			old := chain.VisibleAt(plan.tx - 1)
			if err := chain.CloseCurrent(plan.tx); err != nil {
				panic(fmt.Sprintf("table: internal invariant violated closing row %s: %v", id, err))
			}
			v := &rowchain.Version{Value: pr.record, BeginTx: plan.tx, EndTx: types.Infinity, Kind: rowchain.Live}
			if err := chain.AppendVersion(v); err != nil {
				panic(fmt.Sprintf("table: internal invariant violated appending row %s: %v", id, err))
			}
			if old != nil {
				t.unbindUnique(id, old.Value)
			}
			t.bindUnique(id, pr.record)
		}
	}
}

func (t *Table) bindUnique(id types.RowId, rec types.Record) {
	for field, idx := range t.unique {
		if v, ok := rec[field]; ok {
			idx.Insert(v, id)
		}
	}
}

func (t *Table) unbindUnique(id types.RowId, rec types.Record) {
	for field, idx := range t.unique {
		if v, ok := rec[field]; ok {
			idx.Remove(v, id)
		}
	}
}

// Rollback discards plan without touching committed state. Table
// state is untouched by construction: nothing in Apply ever mutates
// t.rows or the indexes, only Commit does.
func (t *Table) Rollback(plan *Plan) {
	_ = plan // nothing to undo: staging never reached committed state
}

// RowCount returns the number of rows currently tracked, including
// tombstoned chains (trimming never removes a chain).
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// IndexSizes reports the number of bound entries per unique index,
// for stats().
func (t *Table) IndexSizes() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.unique))
	for field, idx := range t.unique {
		out[field] = idx.Len()
	}
	return out
}

// Trim removes fully-superseded versions older than keepFrom from
// every row chain (operator command; see spec.md §9 open question 2).
func (t *Table) Trim(keepFrom types.TxId) int {
	t.mu.RLock()
	chains := make([]*rowchain.Chain, 0, len(t.rows))
	for _, c := range t.rows {
		chains = append(chains, c)
	}
	t.mu.RUnlock()

	total := 0
	for _, c := range chains {
		total += c.TrimBefore(keepFrom)
	}
	return total
}

// Snapshot returns every row's full version history, used by the
// persistence layer to serialize whole-state snapshots.
func (t *Table) Snapshot() map[types.RowId][]*rowchain.Version {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.RowId][]*rowchain.Version, len(t.rows))
	for id, c := range t.rows {
		out[id] = c.AllVersions()
	}
	return out
}

// Restore rebuilds the table's rows and indexes from a prior
// Snapshot's output, used by the persistence layer's restore path.
// It bypasses Apply/Commit validation since the data was already
// validated when it was first committed.
func (t *Table) Restore(data map[types.RowId][]*rowchain.Version) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = make(map[types.RowId]*rowchain.Chain, len(data))
	for field := range t.unique {
		t.unique[field] = index.New(field)
	}

	for id, versions := range data {
		chain := rowchain.New(id)
		for _, v := range versions {
			if err := chain.AppendVersion(v); err != nil {
				panic(fmt.Sprintf("table: corrupt snapshot for row %s: %v", id, err))
			}
		}
		t.rows[id] = chain
		if len(versions) > 0 {
			last := versions[len(versions)-1]
			if last.Kind == rowchain.Live && last.IsOpen() {
				t.bindUnique(id, last.Value)
			}
		}
	}
}

// Fields returns the table's fixed field descriptors.
func (t *Table) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(t.fields))
	copy(out, t.fields)
	return out
}
