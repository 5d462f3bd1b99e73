// Package badgerstore is the second persistence.Backend implementation
// (spec.md §6 "pluggable persistence"): an LSM-tree-backed alternative
// to filestore, selected via the engine's --storage=badger flag.
//
// The teacher repo has no KV-store backend of its own; this is
// grounded on kasuganosora-sqlexec's pkg/resource/badger package
// (BadgerDataSource / TransactionManager), which wraps
// github.com/dgraph-io/badger/v4 the same way: open with
// badger.DefaultOptions, prefix-scoped keys, db.Update/db.View
// transactions, WithSyncWrites for durability before acknowledging a
// write. Badger supplies its own value-log WAL and compaction; this
// package only needs to give it the keyspace this domain requires.
package badgerstore

import (
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"lineagedb/internal/types"
)

const (
	walPrefix     = "w:"
	snapshotTxKey = "s:tx"
	snapshotData  = "s:data"
)

// Store adapts a *badger.DB to persistence.Backend.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database rooted at dir. SyncWrites
// is forced on: every AppendWAL call must durably survive a crash
// before the coordinator may acknowledge a commit (spec.md §4.E), and
// Badger's own value-log fsync is how that guarantee is met here.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func walKey(tx types.TxId) []byte {
	key := make([]byte, len(walPrefix)+8)
	copy(key, walPrefix)
	binary.BigEndian.PutUint64(key[len(walPrefix):], uint64(tx))
	return key
}

func txFromWALKey(key []byte) types.TxId {
	return types.TxId(binary.BigEndian.Uint64(key[len(walPrefix):]))
}

// AppendWAL stores entry under a key ordered by tx so ReadWAL can scan
// in commit order via a prefix iterator.
func (s *Store) AppendWAL(tx types.TxId, entry []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(walKey(tx), entry)
	})
}

// ReadWAL replays every stored entry with Tx > fromTx, in ascending
// key (therefore ascending Tx) order.
func (s *Store) ReadWAL(fromTx types.TxId, fn func(types.TxId, []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(walPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seekFrom := walKey(fromTx + 1)
		for it.Seek(seekFrom); it.ValidForPrefix([]byte(walPrefix)); it.Next() {
			item := it.Item()
			tx := txFromWALKey(item.Key())
			var callErr error
			valErr := item.Value(func(val []byte) error {
				cp := make([]byte, len(val))
				copy(cp, val)
				callErr = fn(tx, cp)
				return nil
			})
			if valErr != nil {
				return valErr
			}
			if callErr != nil {
				return callErr
			}
		}
		return nil
	})
}

// WriteSnapshot stores the snapshot's TxId and payload under fixed
// keys, replacing any prior snapshot in the same transaction.
func (s *Store) WriteSnapshot(tx types.TxId, state []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var txBuf [8]byte
		binary.BigEndian.PutUint64(txBuf[:], uint64(tx))
		if err := txn.Set([]byte(snapshotTxKey), txBuf[:]); err != nil {
			return err
		}
		return txn.Set([]byte(snapshotData), state)
	})
}

// ReadSnapshot returns the stored snapshot, if any.
func (s *Store) ReadSnapshot() (types.TxId, []byte, bool, error) {
	var tx types.TxId
	var state []byte
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		txItem, err := txn.Get([]byte(snapshotTxKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txItem.Value(func(val []byte) error {
			tx = types.TxId(binary.BigEndian.Uint64(val))
			return nil
		}); err != nil {
			return err
		}

		dataItem, err := txn.Get([]byte(snapshotData))
		if err != nil {
			return fmt.Errorf("badgerstore: snapshot tx present without data: %w", err)
		}
		if err := dataItem.Value(func(val []byte) error {
			state = make([]byte, len(val))
			copy(state, val)
			return nil
		}); err != nil {
			return err
		}

		found = true
		return nil
	})
	if err != nil {
		return 0, nil, false, err
	}
	return tx, state, found, nil
}

// TruncateWALTo deletes every WAL entry with Tx <= tx.
func (s *Store) TruncateWALTo(tx types.TxId) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(walPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Rewind(); it.ValidForPrefix([]byte(walPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if txFromWALKey(key) <= tx {
				toDelete = append(toDelete, key)
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}
