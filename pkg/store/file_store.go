// Package store provides raft.Store implementations. FileStore is the
// durable, crash-safe implementation; raft.MemoryStore (in package
// raft) covers tests and simulation.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/quorumdb/raft/pkg/raft"
)

const (
	fileName         = "raft.wal"
	recordHeaderSize = 8 // 4 bytes CRC + 4 bytes length
)

// persistentState is the full durable image written on every mutating
// call. Committed is included for faster recovery even though
// SPEC_FULL.md only requires commit_index durability for liveness, not
// safety.
type persistentState struct {
	CurrentTerm raft.Term
	Vote        raft.ReplicaID
	HasVote     bool
	Entries     []raft.LogEntry
	Committed   int
}

// FileStore is a durable raft.Store backed by a single file, using the
// same whole-state-rewrite-and-fsync strategy as a write-ahead log:
// every mutation re-serializes the full persistentState, CRC32-frames
// it, and overwrites the file from offset zero before returning.
type FileStore struct {
	mu    sync.Mutex
	file  *os.File
	state persistentState
}

// Open opens or creates a FileStore rooted at dir, recovering any
// previously persisted state.
func Open(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open file: %w", err)
	}
	s := &FileStore{file: f}
	if err := s.recover(); err != nil {
		f.Close()
		return nil, fmt.Errorf("store: recover: %w", err)
	}
	return s, nil
}

func (s *FileStore) recover() error {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(s.file, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		return err
	}
	crc := binary.LittleEndian.Uint32(header[:4])
	length := binary.LittleEndian.Uint32(header[4:8])

	data := make([]byte, length)
	if _, err := io.ReadFull(s.file, data); err != nil {
		return err
	}
	if crc32.ChecksumIEEE(data) != crc {
		return fmt.Errorf("CRC mismatch in store file")
	}

	var state persistentState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	s.state = state
	return nil
}

// persistLocked serializes the current state, frames it with a CRC32
// header, and overwrites the file in place. Callers must hold s.mu.
func (s *FileStore) persistLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data := buf.Bytes()

	header := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(header[:4], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := s.file.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return s.file.Sync()
}

func (s *FileStore) Persist(term raft.Term, vote raft.ReplicaID, hasVote bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentTerm = term
	s.state.Vote = vote
	s.state.HasVote = hasVote
	return s.persistLocked()
}

func (s *FileStore) Load() (raft.Term, raft.ReplicaID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentTerm, s.state.Vote, s.state.HasVote
}

func (s *FileStore) AppendEntry(entry raft.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Entries = append(s.state.Entries, entry)
	return s.persistLocked()
}

func (s *FileStore) Last() (raft.Term, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Entries) == 0 {
		return 0, 0
	}
	return s.state.Entries[len(s.state.Entries)-1].Term, len(s.state.Entries)
}

func (s *FileStore) TermAt(index int) (raft.Term, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.state.Entries) {
		return 0, false
	}
	return s.state.Entries[index].Term, true
}

func (s *FileStore) Overlay(at int, patch []raft.LogEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.state.Entries
	i := 0
	for ; i < len(patch); i++ {
		pos := at + i
		if pos < len(entries) {
			if entries[pos].Term == patch[i].Term {
				continue
			}
			if pos < s.state.Committed {
				return 0, raft.ErrStaleStore
			}
			entries = entries[:pos]
		}
		entries = append(entries, patch[i:]...)
		break
	}
	s.state.Entries = entries
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return at + len(patch), nil
}

func (s *FileStore) MarkCommitted(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.state.Committed {
		s.state.Committed = index
		return s.persistLocked()
	}
	return nil
}

func (s *FileStore) Committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Committed
}

func (s *FileStore) Slice(start, end int) []raft.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if end > len(s.state.Entries) {
		end = len(s.state.Entries)
	}
	if start >= end {
		return nil
	}
	out := make([]raft.LogEntry, end-start)
	copy(out, s.state.Entries[start:end])
	return out
}

// Close releases the underlying file handle.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var _ raft.Store = (*FileStore)(nil)
