// Package persistence defines the pluggable durability contract
// (component E / spec.md §4.E, §6): WAL append, snapshot write/read,
// and ordered WAL replay. Two implementations live in the filestore
// and badgerstore subpackages; the coordinator depends only on this
// interface, so either backend (or a future object-store/relational
// one) interchanges without touching the engine (spec.md design note:
// "the persistence contract uses a small method set so file,
// object-store, key-value, or relational backends interchange without
// touching the engine").
package persistence

import "lineagedb/internal/types"

// Backend is the pluggable persistence contract.
type Backend interface {
	// AppendWAL durably appends entry's already-encoded bytes. It must
	// return only once the entry would survive a process crash.
	AppendWAL(tx types.TxId, entry []byte) error

	// ReadWAL replays durable entries with Tx > fromTx, in order,
	// calling fn for each. A partially-written or corrupt tail entry
	// is treated as absent: replay stops at the last valid boundary.
	ReadWAL(fromTx types.TxId, fn func(tx types.TxId, entry []byte) error) error

	// WriteSnapshot durably persists a whole-state snapshot tagged
	// with the TxId it was taken at.
	WriteSnapshot(tx types.TxId, state []byte) error

	// ReadSnapshot returns the most recent snapshot's TxId and bytes,
	// or ok=false if none exists yet.
	ReadSnapshot() (tx types.TxId, state []byte, ok bool, err error)

	// TruncateWALTo discards durable WAL entries with Tx <= tx (called
	// after a snapshot at tx has been durably written).
	TruncateWALTo(tx types.TxId) error

	// Close releases any held file handles / connections.
	Close() error
}
