// Package filestore is the reference file-based persistence.Backend
// (spec.md §6 "On-disk format"): a length-prefixed, checksummed,
// fsync'd WAL file plus a header-then-payload snapshot file.
//
// Grounded on the teacher's pkg/wal/wal.go frame format — magic
// header, running fibonacci-weighted checksum, fsync on every commit,
// truncate-on-corrupt-tail — but reshaped from fixed-size database
// pages into logical, variable-length LogEntry records, since this
// design has no pager/page cache (spec.md is an in-memory engine with
// WAL+snapshot durability, not a paged on-disk file format). The
// teacher's pkg/encoding varint helpers are reused for length
// prefixes.
package filestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"lineagedb/internal/encoding"
	"lineagedb/internal/types"
)

const (
	walMagic     = 0x4c4e4447 // "LNDG"
	walVersion   = 1
	walHeaderLen = 32

	snapshotMagic   = 0x4c4e4453 // "LNDS"
	snapshotVersion = 1
)

var (
	// ErrCorruptHeader is returned when a file's magic/version bytes
	// don't match what this backend writes.
	ErrCorruptHeader = errors.New("filestore: corrupt or foreign header")
)

// Store is the file-based persistence backend: a dataDir containing
// wal.log and snapshot.bin.
type Store struct {
	mu       sync.Mutex
	dir      string
	wal      *os.File
	salt1    uint32
	salt2    uint32
	cksum1   uint32
	cksum2   uint32
}

// Open opens (or creates) the WAL and snapshot files under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: mkdir %s: %w", dir, err)
	}

	s := &Store{dir: dir}
	walPath := s.walPath()

	f, err := os.OpenFile(walPath, os.O_RDWR, 0o644)
	if errors.Is(err, os.ErrNotExist) {
		f, err = s.createWAL(walPath)
		if err != nil {
			return nil, err
		}
		s.wal = f
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: open wal: %w", err)
	}
	s.wal = f
	if err := s.readWALHeader(); err != nil {
		// Corrupt or foreign header: reinitialize rather than ever
		// silently serve wrong data.
		f.Close()
		f, err = s.createWAL(walPath)
		if err != nil {
			return nil, err
		}
		s.wal = f
	}
	return s, nil
}

func (s *Store) walPath() string      { return filepath.Join(s.dir, "wal.log") }
func (s *Store) snapshotPath() string { return filepath.Join(s.dir, "snapshot.bin") }

func (s *Store) createWAL(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filestore: create wal: %w", err)
	}
	s.salt1 = rand.Uint32()
	s.salt2 = rand.Uint32()
	if err := s.writeWALHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (s *Store) writeWALHeader(f *os.File) error {
	header := make([]byte, walHeaderLen)
	binary.BigEndian.PutUint32(header[0:4], walMagic)
	binary.BigEndian.PutUint32(header[4:8], walVersion)
	binary.BigEndian.PutUint32(header[8:12], s.salt1)
	binary.BigEndian.PutUint32(header[12:16], s.salt2)
	s.cksum1, s.cksum2 = walChecksum(header[0:16], 0, 0)
	binary.BigEndian.PutUint32(header[16:20], s.cksum1)
	binary.BigEndian.PutUint32(header[20:24], s.cksum2)
	// 24:32 reserved for future use, zero-filled.

	if _, err := f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("filestore: write wal header: %w", err)
	}
	return f.Sync()
}

func (s *Store) readWALHeader() error {
	header := make([]byte, walHeaderLen)
	n, err := s.wal.ReadAt(header, 0)
	if err != nil && n < walHeaderLen {
		return ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(header[0:4]) != walMagic {
		return ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(header[4:8]) != walVersion {
		return ErrCorruptHeader
	}
	s.salt1 = binary.BigEndian.Uint32(header[8:12])
	s.salt2 = binary.BigEndian.Uint32(header[12:16])
	cksum1 := binary.BigEndian.Uint32(header[16:20])
	cksum2 := binary.BigEndian.Uint32(header[20:24])
	computed1, computed2 := walChecksum(header[0:16], 0, 0)
	if cksum1 != computed1 || cksum2 != computed2 {
		return ErrCorruptHeader
	}
	s.cksum1, s.cksum2 = cksum1, cksum2
	return nil
}

// frame layout (variable length):
//   8 bytes  TxId (big-endian)
//   varint   payload length
//   4 bytes  checksum1
//   4 bytes  checksum2
//   N bytes  payload

// AppendWAL durably appends one frame. Every call fsyncs: in this
// design, a WAL entry only ever represents an already-decided commit
// (there is no separate non-commit frame), so every append must
// survive a crash before the coordinator acknowledges the caller.
func (s *Store) AppendWAL(tx types.TxId, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lenBuf := make([]byte, 9)
	n := encoding.PutVarint(lenBuf, uint64(len(entry)))

	frame := make([]byte, 0, 8+n+8+len(entry))
	var txBuf [8]byte
	binary.BigEndian.PutUint64(txBuf[:], uint64(tx))
	frame = append(frame, txBuf[:]...)
	frame = append(frame, lenBuf[:n]...)

	cksumInput := append(append([]byte{}, txBuf[:]...), entry...)
	s.cksum1, s.cksum2 = walChecksum(cksumInput, s.cksum1, s.cksum2)
	var c1, c2 [4]byte
	binary.BigEndian.PutUint32(c1[:], s.cksum1)
	binary.BigEndian.PutUint32(c2[:], s.cksum2)
	frame = append(frame, c1[:]...)
	frame = append(frame, c2[:]...)
	frame = append(frame, entry...)

	off, err := s.wal.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("filestore: seek wal: %w", err)
	}
	if _, err := s.wal.WriteAt(frame, off); err != nil {
		return fmt.Errorf("filestore: append wal: %w", err)
	}
	return s.wal.Sync()
}

// ReadWAL replays frames with Tx > fromTx in order. A short read on
// the trailing frame (process died mid-append) is treated as absent:
// replay stops there without error.
func (s *Store) ReadWAL(fromTx types.TxId, fn func(types.TxId, []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := int64(walHeaderLen)
	cksum1, cksum2 := uint32(0), uint32(0)
	// Recompute the running checksum from the header forward so a
	// resumed process validates the same chain the writer built.
	header := make([]byte, 16)
	if _, err := s.wal.ReadAt(header, 0); err != nil {
		return fmt.Errorf("filestore: re-read wal header: %w", err)
	}
	cksum1, cksum2 = walChecksum(header, 0, 0)

	info, err := s.wal.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	for off < size {
		txBuf := make([]byte, 8)
		if _, err := s.wal.ReadAt(txBuf, off); err != nil {
			return nil // short read: trailing partial frame, treat as absent
		}
		want := int64(9)
		if remain := size - (off + 8); remain < want {
			want = remain
		}
		if want <= 0 {
			return nil
		}
		lenBuf := make([]byte, want)
		nRead, err := s.wal.ReadAt(lenBuf, off+8)
		if err != nil && nRead == 0 {
			return nil
		}
		payloadLen, n := encoding.GetVarint(lenBuf[:nRead])
		if n == 0 {
			return nil
		}
		cksumOff := off + 8 + int64(n)
		cksumBuf := make([]byte, 8)
		if _, err := s.wal.ReadAt(cksumBuf, cksumOff); err != nil {
			return nil
		}
		payloadOff := cksumOff + 8
		if payloadOff+int64(payloadLen) > size {
			return nil // trailing partial entry
		}
		payload := make([]byte, payloadLen)
		if _, err := s.wal.ReadAt(payload, payloadOff); err != nil {
			return nil
		}

		cksumInput := append(append([]byte{}, txBuf...), payload...)
		wantC1 := binary.BigEndian.Uint32(cksumBuf[0:4])
		wantC2 := binary.BigEndian.Uint32(cksumBuf[4:8])
		gotC1, gotC2 := walChecksum(cksumInput, cksum1, cksum2)
		if gotC1 != wantC1 || gotC2 != wantC2 {
			return nil // corrupt tail: stop at last valid boundary
		}
		cksum1, cksum2 = gotC1, gotC2

		tx := types.TxId(binary.BigEndian.Uint64(txBuf))
		off = payloadOff + int64(payloadLen)

		if tx <= fromTx {
			continue
		}
		if err := fn(tx, payload); err != nil {
			return err
		}
	}
	return nil
}

// TruncateWALTo discards WAL entries with Tx <= tx by rewriting the
// file with only the surviving frames (there should normally be none,
// since the coordinator quiesces writers before snapshotting).
func (s *Store) TruncateWALTo(tx types.TxId) error {
	type kept struct {
		tx      types.TxId
		payload []byte
	}
	var survivors []kept
	err := s.ReadWAL(0, func(t types.TxId, payload []byte) error {
		if t > tx {
			cp := make([]byte, len(payload))
			copy(cp, payload)
			survivors = append(survivors, kept{t, cp})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.wal.Close(); err != nil {
		s.mu.Unlock()
		return err
	}
	f, err := s.createWAL(s.walPath())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.wal = f
	s.mu.Unlock()

	for _, k := range survivors {
		if err := s.AppendWAL(k.tx, k.payload); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot persists a whole-state snapshot, replacing any prior one.
func (s *Store) WriteSnapshot(tx types.TxId, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.snapshotPath()+".tmp", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: create snapshot: %w", err)
	}

	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:4], snapshotMagic)
	binary.BigEndian.PutUint32(header[4:8], snapshotVersion)
	binary.BigEndian.PutUint64(header[8:16], uint64(tx))

	lenBuf := make([]byte, 9)
	n := encoding.PutVarint(lenBuf, uint64(len(state)))

	if _, err := f.Write(header); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(lenBuf[:n]); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(state); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(s.snapshotPath()+".tmp", s.snapshotPath())
}

// ReadSnapshot loads the most recent snapshot, if one exists.
func (s *Store) ReadSnapshot() (types.TxId, []byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	defer f.Close()

	header := make([]byte, 16)
	if _, err := io.ReadFull(f, header); err != nil {
		return 0, nil, false, fmt.Errorf("filestore: %w: %v", ErrCorruptHeader, err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != snapshotMagic {
		return 0, nil, false, ErrCorruptHeader
	}
	if binary.BigEndian.Uint32(header[4:8]) != snapshotVersion {
		return 0, nil, false, ErrCorruptHeader
	}
	tx := types.TxId(binary.BigEndian.Uint64(header[8:16]))

	lenBuf := make([]byte, 9)
	nRead, _ := io.ReadFull(f, lenBuf)
	payloadLen, n := encoding.GetVarint(lenBuf[:nRead])
	if n == 0 {
		return 0, nil, false, ErrCorruptHeader
	}
	// Re-seek: GetVarint may have consumed fewer bytes than we read.
	if _, err := f.Seek(int64(16+n), io.SeekStart); err != nil {
		return 0, nil, false, err
	}
	state := make([]byte, payloadLen)
	if _, err := io.ReadFull(f, state); err != nil {
		return 0, nil, false, fmt.Errorf("filestore: truncated snapshot: %w", err)
	}
	return tx, state, true, nil
}

// Close releases the WAL file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Sync(); err != nil {
		s.wal.Close()
		return err
	}
	return s.wal.Close()
}

// walChecksum is the teacher's SQLite-derived fibonacci-weighted
// rolling checksum (pkg/wal/wal.go walChecksum), carried over
// unchanged: it is a convenient, order-sensitive checksum for
// streaming frame validation, not a cryptographic property this
// design relies on for anything beyond corruption detection.
func walChecksum(data []byte, s0, s1 uint32) (uint32, uint32) {
	for len(data)%4 != 0 {
		data = append(data, 0)
	}
	for i := 0; i < len(data); i += 8 {
		var x0, x1 uint32
		x0 = binary.LittleEndian.Uint32(data[i : i+4])
		if i+4 < len(data) {
			x1 = binary.LittleEndian.Uint32(data[i+4 : i+8])
		}
		s0 += x0 + s1
		s1 += x1 + s0
	}
	return s0, s1
}
