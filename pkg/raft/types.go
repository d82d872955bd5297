// Package raft implements a single-leader, term-structured replication
// engine. A Replica is driven cooperatively by its three entry points —
// Step, Tick, and Propose — and never blocks or spawns goroutines of its
// own; callers own scheduling and concurrency.
package raft

import (
	"fmt"

	"github.com/google/uuid"
)

// Term is a monotonically non-decreasing logical clock. At most one
// leader exists per term.
type Term uint64

// ReplicaID identifies a cluster member. The set of identifiers is fixed
// at cluster construction; a Replica never learns of an id outside its
// configured peer set.
type ReplicaID string

// ProposalID identifies a single client submission. Callers must mint a
// fresh uuid.New() per submission, including retries; the engine does
// not deduplicate by payload, only by the identity of this value.
type ProposalID = uuid.UUID

// LogEntry is a single position in the replicated log. Its index is
// implicit: the position within Store.Slice/Store.Last, never carried on
// the entry itself.
type LogEntry struct {
	Payload    []byte
	ProposalID ProposalID
	Term       Term
}

func (e LogEntry) String() string {
	return fmt.Sprintf("{term:%d prop:%s len:%d}", e.Term, e.ProposalID, len(e.Payload))
}

// RoleKind tags which of the three roles a Replica currently occupies.
type RoleKind int

const (
	RoleFollower RoleKind = iota
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// FollowerState is the volatile state of a replica in the Follower role.
// Leader is empty until the replica has accepted a ReplicateReq in its
// current term.
type FollowerState struct {
	Leader ReplicaID
}

// CandidateState is the volatile state of a replica in the Candidate
// role. Granted tracks which peers have voted for this candidacy as a
// set, not a counter, so duplicate VoteAck delivery cannot inflate the
// count (spec design note, §9).
type CandidateState struct {
	Granted map[ReplicaID]struct{}
}

func newCandidateState(self ReplicaID) *CandidateState {
	return &CandidateState{Granted: map[ReplicaID]struct{}{self: {}}}
}

func (c *CandidateState) voteCount() int { return len(c.Granted) }

// LeaderState is the volatile state of a replica in the Leader role.
// Matched is the highest index each peer is known to have replicated;
// Guessed is the leader's next-probe estimate for that peer. The
// rateless dialect never writes Guessed.
type LeaderState struct {
	Matched map[ReplicaID]int
	Guessed map[ReplicaID]int
}

// ProposalFailed is returned by Propose when no leader is known for the
// queried replica, or the replica cannot accept proposals in its current
// role. Reason documents which of those occurred; it carries no protocol
// meaning and exists only for caller diagnostics.
type ProposalFailed struct {
	ProposalID ProposalID
	Reason     string
}

func (e *ProposalFailed) Error() string {
	return fmt.Sprintf("proposal %s failed: %s", e.ProposalID, e.Reason)
}

// Reasons a ProposalFailed may carry. These are diagnostic strings, not
// distinct error variants — see SPEC_FULL.md's supplemented features.
const (
	ReasonNoLeader  = "no known leader"
	ReasonNotLeader = "replica is a candidate"
)
