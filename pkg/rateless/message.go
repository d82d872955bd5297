package rateless

import "github.com/quorumdb/raft/pkg/raft"

// ReplicateReq is the rateless dialect's append/heartbeat RPC
// (SPEC_FULL.md §4.4, §6): Patch is a sequence of codewords spanning
// the leader's uncommitted suffix rather than a contiguous positional
// patch. The classic dialect's prefix field is omitted entirely — see
// DESIGN.md's "Rateless prefix field" decision — since codewords have
// no single position to check a prefix against.
type ReplicateReq struct {
	LeaderTerm raft.Term
	LeaderID   raft.ReplicaID

	Patch  []Codeword
	Commit int
}

func (ReplicateReq) IsMessage() {}

// The remaining wire tags (ProposalReq, ReplicateAck, ReplicateRej,
// VoteReq, VoteAck, VoteRej) are schema-identical to the classic
// dialect (spec.md §6: "identical except ReplicateReq.patch"), so this
// dialect reuses raft's definitions directly rather than redeclaring
// them.
type (
	ProposalReq  = raft.ProposalReq
	ReplicateAck = raft.ReplicateAck
	ReplicateRej = raft.ReplicateRej
	VoteReq      = raft.VoteReq
	VoteAck      = raft.VoteAck
	VoteRej      = raft.VoteRej
)
