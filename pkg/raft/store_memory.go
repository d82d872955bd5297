package raft

// MemoryStore is a non-durable Store, suitable for simulation and unit
// tests. It implements the same Overlay/commit contract as FileStore
// without touching disk.
type MemoryStore struct {
	term    Term
	vote    ReplicaID
	hasVote bool

	entries   []LogEntry
	committed int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Persist(term Term, vote ReplicaID, hasVote bool) error {
	s.term = term
	s.vote = vote
	s.hasVote = hasVote
	return nil
}

func (s *MemoryStore) Load() (Term, ReplicaID, bool) {
	return s.term, s.vote, s.hasVote
}

func (s *MemoryStore) AppendEntry(entry LogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Last() (Term, int) {
	if len(s.entries) == 0 {
		return 0, 0
	}
	return s.entries[len(s.entries)-1].Term, len(s.entries)
}

func (s *MemoryStore) TermAt(index int) (Term, bool) {
	if index < 0 || index >= len(s.entries) {
		return 0, false
	}
	return s.entries[index].Term, true
}

func (s *MemoryStore) Overlay(at int, patch []LogEntry) (int, error) {
	i := 0
	for ; i < len(patch); i++ {
		pos := at + i
		if pos < len(s.entries) {
			if s.entries[pos].Term == patch[i].Term {
				continue
			}
			if pos < s.committed {
				return 0, ErrStaleStore
			}
			s.entries = s.entries[:pos]
		}
		s.entries = append(s.entries, patch[i:]...)
		break
	}
	return at + len(patch), nil
}

func (s *MemoryStore) MarkCommitted(index int) error {
	if index > s.committed {
		s.committed = index
	}
	return nil
}

func (s *MemoryStore) Committed() int { return s.committed }

func (s *MemoryStore) Slice(start, end int) []LogEntry {
	if start < 0 {
		start = 0
	}
	if end > len(s.entries) {
		end = len(s.entries)
	}
	if start >= end {
		return nil
	}
	out := make([]LogEntry, end-start)
	copy(out, s.entries[start:end])
	return out
}
