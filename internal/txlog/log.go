// Package txlog implements the Transaction Log (component D): a
// monotonically numbered record of committed transactions, held as an
// in-memory tail over a durable suffix maintained by the persistence
// layer. Read-only transactions never produce an entry here (spec §3,
// §4.D, §8 property 8).
//
// Grounded on the teacher's pkg/mvcc/manager.go TransactionManager id
// allocation pattern; TxId assignment itself lives in the coordinator
// (component F) since spec.md gives "next_tx" to the single writer,
// not to a manager arbitrating between concurrent writers the way the
// teacher's TransactionManager does.
package txlog

import (
	"sync"

	"lineagedb/internal/action"
	"lineagedb/internal/types"
)

// Entry is one committed transaction's durable record.
type Entry struct {
	Tx              types.TxId
	Actions         []action.Action
	CommitTimestamp int64 // unix nanos, informational only
}

// Log holds the in-memory tail of recently-assigned entries. The
// durable suffix lives behind the persistence.Backend the coordinator
// appends to before calling Append here.
type Log struct {
	mu   sync.RWMutex
	tail []Entry
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Append adds entry to the in-memory tail. Callers must have already
// durably persisted it (spec §4.D: "append; must succeed durably
// before the coordinator may return committed").
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tail = append(l.tail, e)
}

// TruncateBefore drops in-memory entries with Tx <= tx; the durable
// log retains everything up to and including a snapshot at tx (the
// persistence layer owns that guarantee, see internal/persistence).
func (l *Log) TruncateBefore(tx types.TxId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cut := 0
	for cut < len(l.tail) && l.tail[cut].Tx <= tx {
		cut++
	}
	l.tail = l.tail[cut:]
}

// Replay feeds every retained entry, in TxId order, to consumer. Used
// during in-memory-tail inspection; full-history replay after a crash
// goes through the persistence layer's ReadWAL instead, since the tail
// alone does not include truncated-but-durable entries.
func (l *Log) Replay(consumer func(Entry) error) error {
	l.mu.RLock()
	entries := make([]Entry, len(l.tail))
	copy(entries, l.tail)
	l.mu.RUnlock()

	for _, e := range entries {
		if err := consumer(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries retained in the in-memory tail.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tail)
}
