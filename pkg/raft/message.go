package raft

// Classic-dialect wire message tags (spec.md §6). Go has no sum types,
// so each tag is its own struct implementing Message via IsMessage.

// ProposalReq forwards a client proposal from a follower to the leader
// it believes is current.
type ProposalReq struct {
	Payload    []byte
	ProposalID ProposalID
}

func (ProposalReq) IsMessage() {}

// ReplicateReq is the leader's append/heartbeat RPC. Prefix is
// (term, index) of the entry immediately before Patch; PrefixTerm is
// absent (HasPrefixTerm=false) only when Prefix is the very start of the
// log.
type ReplicateReq struct {
	LeaderTerm Term
	LeaderID   ReplicaID

	HasPrefixTerm bool
	PrefixTerm    Term
	PrefixIndex   int

	Patch  []LogEntry
	Commit int
}

func (ReplicateReq) IsMessage() {}

// ReplicateAck acknowledges a ReplicateReq: Sync is the index just past
// the merged region, Tail is the follower's resulting log length.
type ReplicateAck struct {
	From ReplicaID
	Sync int
	Tail int
}

func (ReplicateAck) IsMessage() {}

// ReplicateRej rejects a ReplicateReq because of a stale term or a
// prefix mismatch.
type ReplicateRej struct {
	From ReplicaID
	Term Term
	At   int
}

func (ReplicateRej) IsMessage() {}

// VoteReq is a candidate's request for a peer's vote.
type VoteReq struct {
	CandidateTerm Term
	CandidateID   ReplicaID
	LastTerm      Term
	LastIndex     int
}

func (VoteReq) IsMessage() {}

// VoteAck grants a vote for Term. The granter is identified by the
// envelope's From field, matching spec.md §6's {term} schema.
type VoteAck struct {
	Term Term
}

func (VoteAck) IsMessage() {}

// VoteRej withholds a vote, reporting the voter's current term.
type VoteRej struct {
	Term Term
}

func (VoteRej) IsMessage() {}
