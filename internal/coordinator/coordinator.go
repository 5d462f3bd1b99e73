// Package coordinator implements the Transaction Coordinator
// (component F): the single authoritative write task, the read
// dispatch path, and the startup restore protocol. It is the one
// place that touches every other component — row chains (A), tables
// (B), the uniqueness index (C) via table, the transaction log (D),
// and the persistence backend (E) — and ties them into the seven-step
// write pipeline and the state machine from spec.md §4.F.
//
// Grounded on spec.md §9's message-passing design note (a bounded
// multi-producer/single-consumer channel with per-request reply-once
// channels replaces shared-mutable-state coordination) plus the
// teacher's pkg/mvcc/manager.go TransactionManager (timestamp/id
// bookkeeping, panic-on-flush-failure-is-fatal idiom) and
// RichardKnop-minisql's TransactionManager.CommitTransaction, whose
// phased commit-then-publish structure and "must panic, cannot
// continue with partially-flushed state" comment grounds this
// package's InternalInvariant handling (spec.md §7).
package coordinator

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lineagedb/internal/action"
	"lineagedb/internal/logging"
	"lineagedb/internal/persistence"
	"lineagedb/internal/rowchain"
	"lineagedb/internal/table"
	"lineagedb/internal/txlog"
	"lineagedb/internal/types"
)

// Isolation is always ReadCommitted under this engine's MVCC model
// (spec.md §4.F); the type exists so Transaction's shape matches the
// spec's wire contract and leaves room for a future level without
// changing the submit signature.
type Isolation int

const ReadCommitted Isolation = 0

// Transaction is a caller-submitted envelope of one or more Actions.
type Transaction struct {
	Actions   []action.Action
	Isolation Isolation
}

// Response carries the outcome of a submitted Transaction.
type Response struct {
	Tx        types.TxId
	PerAction []action.Result
	Aborted   bool
	Reason    error
}

// ErrHalted is returned by Submit once the coordinator has observed an
// InternalInvariant failure and stopped serving writes (spec.md §7:
// "Fatal; engine halts").
var ErrHalted = errors.New("coordinator: engine halted on internal invariant violation")

// request is what's sent down the write queue: the transaction plus a
// reply-once channel (component G's contract with F).
type request struct {
	txn   Transaction
	reply chan Response
}

// logEntry is the gob-encoded payload written to the WAL for one
// committed write transaction.
type logEntry struct {
	Tx              types.TxId
	Actions         []action.Action
	CommitTimestamp int64
}

// Coordinator owns the table, the transaction log, the persistence
// backend, and the bounded write queue.
type Coordinator struct {
	tbl     *table.Table
	log     *txlog.Log
	backend persistence.Backend
	logger  *logging.Logger

	writeCh chan request

	latestCommittedTx atomic.Uint64
	halted            atomic.Bool
	haltReason        atomic.Value // error

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	nowFunc func() int64 // overridable via WithNowFunc
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

// WithQueueDepth sets the bounded write channel's capacity. Default 64.
func WithQueueDepth(n int) Option {
	return func(c *Coordinator) {
		c.writeCh = make(chan request, n)
	}
}

// WithNowFunc overrides the commit-timestamp source (unix nanos by
// default); tests substitute a deterministic clock.
func WithNowFunc(f func() int64) Option {
	return func(c *Coordinator) { c.nowFunc = f }
}

// New constructs a Coordinator around an already-constructed table and
// backend, and spins up the single writer goroutine. Callers must call
// Restore before New if they want prior durable state reloaded — or
// use Open in the engine facade, which sequences the two correctly.
// New seeds the published snapshot bound from the table's contents, so
// rows installed by Restore are visible at their restored TxId.
func New(tbl *table.Table, backend persistence.Backend, logger *logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		tbl:     tbl,
		log:     txlog.New(),
		backend: backend,
		logger:  logger,
		writeCh: make(chan request, 64),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Every committed transaction leaves a version with BeginTx equal to
	// its TxId at the tail of some chain (trim never removes a tail), so
	// the largest BeginTx is the latest committed TxId.
	var latest types.TxId
	for _, versions := range tbl.Snapshot() {
		for _, v := range versions {
			if v.BeginTx > latest {
				latest = v.BeginTx
			}
		}
	}
	c.latestCommittedTx.Store(uint64(latest))
	c.wg.Add(1)
	go c.writerLoop()
	return c
}

// LatestCommittedTx returns the current published snapshot bound.
// Readers use this as the upper visibility bound for every action in
// a read-only transaction (spec.md §4.F "read pipeline").
func (c *Coordinator) LatestCommittedTx() types.TxId {
	return types.TxId(c.latestCommittedTx.Load())
}

// Submit enqueues txn and blocks for its Response. Read-only
// transactions (every action IsReadOnly) are served immediately on the
// calling goroutine without touching the write queue at all — there is
// nothing for the single writer to serialize.
func (c *Coordinator) Submit(ctx context.Context, txn Transaction) (Response, error) {
	if c.halted.Load() {
		return Response{}, c.loadHaltError()
	}
	if isReadOnly(txn) {
		return c.serveRead(txn), nil
	}

	// Checked first: once stopped, the buffered write queue may still
	// accept a send that no writer will ever pick up.
	select {
	case <-c.stopCh:
		return Response{}, ErrHalted
	default:
	}

	req := request{txn: txn, reply: make(chan Response, 1)}
	select {
	case c.writeCh <- req:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.stopCh:
		return Response{}, ErrHalted
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		// The caller gave up; the coordinator tolerates a dead reply
		// side per spec.md §5 "Cancellation & timeouts" and proceeds
		// regardless — the write still lands, just unobserved here.
		return Response{}, ctx.Err()
	case <-c.stopCh:
		return Response{}, ErrHalted
	}
}

func isReadOnly(txn Transaction) bool {
	for _, a := range txn.Actions {
		if !a.Kind.IsReadOnly() {
			return false
		}
	}
	return true
}

// serveRead runs a read-only transaction directly against the table,
// bounded by a single fixed snapshot taken at the start (intra-
// transaction read stability, spec.md §4.F "read pipeline").
func (c *Coordinator) serveRead(txn Transaction) Response {
	snapshot := c.LatestCommittedTx()
	results := make([]action.Result, 0, len(txn.Actions))
	for _, a := range txn.Actions {
		res, err := c.tbl.Apply(a, snapshot, nil)
		if err != nil {
			return Response{Tx: snapshot, Aborted: true, Reason: err}
		}
		results = append(results, res)
	}
	return Response{Tx: snapshot, PerAction: results}
}

// writerLoop is the single authoritative write task (spec.md §4.F,
// §5 "single cooperative write task"). It is the only goroutine that
// ever calls table.Commit, txlog.Append, or advances
// latestCommittedTx, and the only goroutine that touches the
// persistence backend's WAL handle.
func (c *Coordinator) writerLoop() {
	defer c.wg.Done()
	for {
		select {
		case req := <-c.writeCh:
			resp := c.processWrite(req.txn)
			select {
			case req.reply <- resp:
			default:
				// Reply side already abandoned (caller's ctx expired).
				// Tolerate and proceed; the commit already landed.
				c.logger.Debugf("coordinator: reply channel dropped for tx %d", resp.Tx)
			}
		case <-c.stopCh:
			return
		}
	}
}

// processWrite runs the seven-step write pipeline (spec.md §4.F) for
// one transaction. Steps 1-4 can abort cleanly; step 5 onward is
// infallible by construction, and any violation there is an
// InternalInvariant (§7): fatal, halts the engine rather than risk
// silently serving corrupted state.
func (c *Coordinator) processWrite(txn Transaction) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrHalted, r)
			c.haltReason.Store(err)
			c.halted.Store(true)
			c.logger.Errorf("coordinator: halting on internal invariant violation: %v", r)
			resp = Response{Aborted: true, Reason: err}
		}
	}()

	if len(txn.Actions) == 1 {
		switch txn.Actions[0].Kind {
		case snapshotMarker:
			if err := c.takeSnapshot(); err != nil {
				return Response{Tx: c.LatestCommittedTx(), Aborted: true, Reason: err}
			}
			return Response{Tx: c.LatestCommittedTx()}
		case resetMarker:
			c.doReset()
			return Response{Tx: c.LatestCommittedTx()}
		}
	}

	baseTx := c.LatestCommittedTx()
	provisionalTx := baseTx + 1

	// Step 2: validate & stage.
	plan := c.tbl.NewPlan(provisionalTx)
	results := make([]action.Result, 0, len(txn.Actions))
	for _, a := range txn.Actions {
		res, err := c.tbl.Apply(a, baseTx, plan)
		if err != nil {
			c.tbl.Rollback(plan)
			return Response{Tx: baseTx, Aborted: true, Reason: err}
		}
		results = append(results, res)
	}

	// Step 3: the uniqueness diff is enforced incrementally inside
	// Apply/checkUnique (see table.go and DESIGN.md) rather than as a
	// separate end-of-batch pass; any conflict already returned above.

	// Step 4: log.
	entry := logEntry{Tx: provisionalTx, Actions: txn.Actions, CommitTimestamp: c.now()}
	encoded, err := encodeEntry(entry)
	if err != nil {
		c.tbl.Rollback(plan)
		return Response{Tx: baseTx, Aborted: true, Reason: fmt.Errorf("coordinator: encode log entry: %w", err)}
	}
	if err := c.backend.AppendWAL(provisionalTx, encoded); err != nil {
		c.tbl.Rollback(plan)
		return Response{Tx: baseTx, Aborted: true, Reason: fmt.Errorf("coordinator: append wal: %w", err)}
	}

	// Step 5: install. Infallible by construction; any error here is a
	// programming bug, not a data problem, and table.Commit panics
	// rather than return one (handled by the recover above).
	c.tbl.Commit(plan)
	c.log.Append(txlog.Entry{Tx: provisionalTx, Actions: txn.Actions, CommitTimestamp: entry.CommitTimestamp})

	// Step 6: publish. Version fields were written above (release),
	// the atomic store below is the publish readers acquire on.
	c.latestCommittedTx.Store(uint64(provisionalTx))

	// Step 7: reply.
	return Response{Tx: provisionalTx, PerAction: results}
}

func (c *Coordinator) now() int64 {
	if c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now().UnixNano()
}

func (c *Coordinator) loadHaltError() error {
	if v := c.haltReason.Load(); v != nil {
		return v.(error)
	}
	return ErrHalted
}

// Halted reports whether the coordinator has stopped serving writes.
func (c *Coordinator) Halted() bool { return c.halted.Load() }

// Stop drains the writer goroutine. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Snapshot implements the operator snapshot() command (spec.md §4.E
// "Snapshot protocol"): quiesce writers by running the snapshot itself
// as a write-queue request so it serializes with concurrent commits,
// take a consistent view of the table plus current TxId, persist it,
// then truncate the WAL up to that TxId.
func (c *Coordinator) Snapshot(ctx context.Context) error {
	done := make(chan error, 1)
	req := request{
		txn:   Transaction{Actions: []action.Action{{Kind: snapshotMarker}}},
		reply: make(chan Response, 1),
	}
	go func() {
		select {
		case c.writeCh <- req:
		case <-ctx.Done():
			done <- ctx.Err()
			return
		case <-c.stopCh:
			done <- ErrHalted
			return
		}
		select {
		case resp := <-req.reply:
			done <- resp.Reason
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return <-done
}

// snapshotMarker is a sentinel action.Kind value recognized only by
// processWrite's snapshot handling below; it never reaches table.Apply
// because the writer loop special-cases it before dispatch. Declared
// here (not in package action) since it's an implementation detail of
// how the coordinator serializes snapshot/reset against concurrent
// writes, not part of the spec's Action vocabulary.
const snapshotMarker action.Kind = -1

// takeSnapshot does the actual quiesced work: called from the writer
// goroutine itself so nothing else can commit concurrently.
func (c *Coordinator) takeSnapshot() error {
	tx := c.LatestCommittedTx()
	state, err := c.encodeTableState()
	if err != nil {
		return fmt.Errorf("coordinator: encode snapshot: %w", err)
	}
	if err := c.backend.WriteSnapshot(tx, state); err != nil {
		return fmt.Errorf("coordinator: write snapshot: %w", err)
	}
	if err := c.backend.TruncateWALTo(tx); err != nil {
		return fmt.Errorf("coordinator: truncate wal: %w", err)
	}
	c.log.TruncateBefore(tx)
	return nil
}

// doReset empties the table and resets the committed-tx counter,
// called only from the writer goroutine via the resetMarker so it
// serializes with any in-flight commit.
func (c *Coordinator) doReset() {
	c.tbl.Restore(nil)
	c.latestCommittedTx.Store(0)
	c.log = txlog.New()

	if err := c.backend.TruncateWALTo(types.Infinity); err != nil {
		c.logger.Errorf("coordinator: reset: truncate wal: %v", err)
	}
	if empty, err := c.encodeTableState(); err == nil {
		if err := c.backend.WriteSnapshot(types.NoTx, empty); err != nil {
			c.logger.Errorf("coordinator: reset: write empty snapshot: %v", err)
		}
	}
}

func (c *Coordinator) encodeTableState() ([]byte, error) {
	var buf bytes.Buffer
	snap := c.tbl.Snapshot()
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeEntry(e logEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (logEntry, error) {
	var e logEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return logEntry{}, err
	}
	return e, nil
}

func decodeTableState(data []byte) (map[types.RowId][]*rowchain.Version, error) {
	var snap map[types.RowId][]*rowchain.Version
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Restore implements the startup restore protocol (spec.md §4.E):
// load the latest snapshot if one exists, then replay WAL entries with
// Tx > the snapshot's Tx by installing them directly into the table
// without re-logging them (they are already durable).
func Restore(tbl *table.Table, backend persistence.Backend, logger *logging.Logger) (types.TxId, error) {
	latest := types.NoTx

	tx, state, ok, err := backend.ReadSnapshot()
	if err != nil {
		return 0, fmt.Errorf("coordinator: read snapshot: %w", err)
	}
	if ok {
		snap, err := decodeTableState(state)
		if err != nil {
			return 0, fmt.Errorf("coordinator: decode snapshot: %w", err)
		}
		tbl.Restore(snap)
		latest = tx
		logger.Infof("coordinator: restored snapshot at tx %d", tx)
	}

	replayed := 0
	err = backend.ReadWAL(latest, func(entryTx types.TxId, raw []byte) error {
		entry, err := decodeEntry(raw)
		if err != nil {
			// Corrupt/partial tail entry: the backend's ReadWAL
			// contract already stops at the last valid boundary for
			// truncated bytes, so a decode error here means a fully
			// read but semantically corrupt entry — log and stop
			// rather than apply possibly-garbage actions.
			return fmt.Errorf("%w: tx %d: %v", ErrCorruptEntry, entryTx, err)
		}
		plan := tbl.NewPlan(entryTx)
		for _, a := range entry.Actions {
			if _, err := tbl.Apply(a, entryTx-1, plan); err != nil {
				return fmt.Errorf("coordinator: replay tx %d: %w", entryTx, err)
			}
		}
		tbl.Commit(plan)
		latest = entryTx
		replayed++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorruptEntry) {
			logger.Warnf("coordinator: truncating corrupt wal tail: %v", err)
			return latest, nil
		}
		return 0, err
	}
	logger.Infof("coordinator: replayed %d wal entries, latest tx %d", replayed, latest)
	return latest, nil
}

// ErrCorruptEntry marks a fully-read but semantically undecodable WAL
// entry encountered during replay (spec.md §7 Corruption: "truncate
// tail on startup with warning").
var ErrCorruptEntry = errors.New("coordinator: corrupt wal entry")

// Reset implements the operator reset() command: truncate the WAL,
// drop the snapshot's effect, and empty the table (spec.md §6,
// "intended for tests"). Like Snapshot, it runs through the write
// queue so it serializes with any in-flight commit.
func (c *Coordinator) Reset(ctx context.Context) error {
	done := make(chan error, 1)
	req := request{
		txn:   Transaction{Actions: []action.Action{{Kind: resetMarker}}},
		reply: make(chan Response, 1),
	}
	go func() {
		select {
		case c.writeCh <- req:
		case <-ctx.Done():
			done <- ctx.Err()
			return
		case <-c.stopCh:
			done <- ErrHalted
			return
		}
		select {
		case <-req.reply:
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return <-done
}

const resetMarker action.Kind = -2

// Stats summarizes engine state for the operator stats() command.
type Stats struct {
	LatestCommittedTx types.TxId
	RowCount          int
	IndexSizes        map[string]int
	LoggedEntries     int
}

// Stats reports current engine statistics (spec.md §6 stats(),
// enriched per SPEC_FULL.md with per-index sizes — see DESIGN.md).
func (c *Coordinator) Stats() Stats {
	return Stats{
		LatestCommittedTx: c.LatestCommittedTx(),
		RowCount:          c.tbl.RowCount(),
		IndexSizes:        c.tbl.IndexSizes(),
		LoggedEntries:     c.log.Len(),
	}
}

// Trim implements the operator trim(before_tx) command (SPEC_FULL.md
// §9 supplemented feature; spec.md §9 open question 2: auto-GC is a
// non-goal, but an explicit operator command is not).
func (c *Coordinator) Trim(beforeTx types.TxId) int {
	return c.tbl.Trim(beforeTx)
}
