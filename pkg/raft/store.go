package raft

// Store is the durable log + identity contract a Replica is built on
// (SPEC_FULL.md §4.1). Every write that changes CurrentTerm, Vote, or
// the log suffix must be durable before the Replica emits any message
// that depends on it; Replica never calls a Store method from inside a
// goroutine, so an implementation need not be concurrency-safe against
// itself, only against whatever out-of-band inspection a harness does.
type Store interface {
	// Persist synchronously records the current term and vote. It must
	// never let a value observed before a crash reappear after restart.
	Persist(term Term, vote ReplicaID, hasVote bool) error
	// Load returns the persisted term and vote, or (0, "", false) if
	// Persist was never called.
	Load() (term Term, vote ReplicaID, hasVote bool)

	// AppendEntry pushes a fresh entry at the tail of the log.
	AppendEntry(entry LogEntry) error
	// Last returns the term of the final entry (0 if empty) and the
	// current log length.
	Last() (term Term, length int)
	// TermAt returns the term of the entry at index, and whether one
	// exists there.
	TermAt(index int) (term Term, ok bool)

	// Overlay merges patch into the log starting at position at. For
	// each patch position j, if the store already holds an entry at
	// at+j with the same term, that entry is preserved; otherwise the
	// log is truncated to at+j and the remainder of patch is appended.
	// Overlay is the only operation that can shorten the log, and only
	// at positions past Committed(). It returns the index just past the
	// merged region and is idempotent when replayed with the same
	// (at, patch).
	Overlay(at int, patch []LogEntry) (syncedTo int, err error)

	// MarkCommitted advances the commit watermark; it never decreases
	// it.
	MarkCommitted(index int) error
	// Committed returns the current commit watermark.
	Committed() int

	// Slice returns a bounds-clamped copy of entries in [start, end).
	Slice(start, end int) []LogEntry
}
