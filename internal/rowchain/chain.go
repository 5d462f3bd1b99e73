// Package rowchain implements the per-row version chain (component A):
// the ordered history of a single row, oldest version first, with
// per-version transaction bounds and the visibility rule that picks
// the single version a reader at a given TxId may see.
//
// Grounded on the teacher's pkg/mvcc/version.go VersionChain, but
// reshaped from a head-is-newest linked list with a boolean deletedBy
// flag into an oldest-first append-only slice with explicit
// begin_tx/end_tx bounds, matching spec.md §3's invariants directly
// (design note: "An array-backed list with writer-only appends is
// safe if readers re-check latest_committed_tx as the upper visibility
// bound").
package rowchain

import (
	"errors"
	"sync"

	"lineagedb/internal/types"
)

// ErrChainCorrupt is returned when append_version is called while the
// chain's current version is still open (invariant 1/2 violation).
var ErrChainCorrupt = errors.New("rowchain: append onto a chain with no closed current version")

// ErrNoOpenVersion is returned by CloseCurrent when every version in
// the chain is already closed.
var ErrNoOpenVersion = errors.New("rowchain: no open version to close")

// Kind distinguishes a live version from a tombstone.
type Kind int

const (
	Live Kind = iota
	Tombstone
)

// Version is one entry in a row's history.
type Version struct {
	Value   types.Record
	BeginTx types.TxId
	EndTx   types.TxId // types.Infinity while still current
	Kind    Kind
}

// IsOpen reports whether this version is the chain's current (un-superseded) one.
func (v *Version) IsOpen() bool {
	return v.EndTx == types.Infinity
}

// visibleAt reports whether tx falls within [BeginTx, EndTx) and the
// version is live (invariant 4).
func (v *Version) visibleAt(tx types.TxId) bool {
	return v.Kind == Live && v.BeginTx <= tx && tx < v.EndTx
}

// Chain holds the ordered, oldest-first history of one row.
//
// The writer is the sole mutator; AppendVersion and CloseCurrent must
// only ever be called by the single coordinator goroutine. Readers
// call VisibleAt/AllVersions concurrently without taking the lock's
// write side — the mutex here only protects the slice header against
// concurrent append vs. read-iteration races (append is a write to
// the backing array's length), not against logical visibility, which
// is guarded by readers bounding themselves to a fixed TxId snapshot.
type Chain struct {
	mu       sync.RWMutex
	id       types.RowId
	versions []*Version
}

// New creates an empty chain for the given row id.
func New(id types.RowId) *Chain {
	return &Chain{id: id}
}

// RowId returns the id this chain belongs to.
func (c *Chain) RowId() types.RowId {
	return c.id
}

// VisibleAt returns the unique version visible to tx, or nil if none.
func (c *Chain) VisibleAt(tx types.TxId) *Version {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Newest-first scan: the visible version (if any) is almost
	// always near the tail for recent snapshots.
	for i := len(c.versions) - 1; i >= 0; i-- {
		if c.versions[i].visibleAt(tx) {
			return c.versions[i]
		}
	}
	return nil
}

// AppendVersion appends v to the end of the chain. It fails with
// ErrChainCorrupt if the chain is non-empty and its current version
// has not been closed first (invariant 1/2): a new version must always
// be preceded by CloseCurrent.
func (c *Chain) AppendVersion(v *Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.versions); n > 0 {
		last := c.versions[n-1]
		if last.IsOpen() {
			return ErrChainCorrupt
		}
		if last.Kind == Tombstone {
			return ErrChainCorrupt
		}
		if last.EndTx != v.BeginTx {
			return ErrChainCorrupt
		}
	}
	c.versions = append(c.versions, v)
	return nil
}

// CloseCurrent sets the open version's EndTx to endTx. Fails if no
// version is currently open.
func (c *Chain) CloseCurrent(endTx types.TxId) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.versions) == 0 {
		return ErrNoOpenVersion
	}
	last := c.versions[len(c.versions)-1]
	if !last.IsOpen() {
		return ErrNoOpenVersion
	}
	last.EndTx = endTx
	return nil
}

// AllVersions returns the full ordered history, oldest first.
func (c *Chain) AllVersions() []*Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Version, len(c.versions))
	copy(out, c.versions)
	return out
}

// IsTombstoned reports whether the chain's last version is a tombstone
// (invariant 3: a tombstone terminates the chain).
func (c *Chain) IsTombstoned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.versions)
	return n > 0 && c.versions[n-1].Kind == Tombstone
}

// Len returns the number of versions retained (for stats/trim).
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}

// TrimBefore discards fully-superseded versions whose EndTx is less
// than or equal to keepFrom, the oldest snapshot any active reader
// might still need. It never removes the open version. Operator
// command only (spec.md: auto-GC is a non-goal, manual trim is not).
func (c *Chain) TrimBefore(keepFrom types.TxId) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cut := 0
	for cut < len(c.versions)-1 && c.versions[cut].EndTx <= keepFrom {
		cut++
	}
	if cut == 0 {
		return 0
	}
	c.versions = c.versions[cut:]
	return cut
}
