// Package rateless implements the rateless erasure-coded replication
// dialect described in SPEC_FULL.md §4.4: a leader ships XOR-combined
// codewords over the uncommitted suffix instead of shipping entries
// one-for-one, and followers recover the suffix by peeling.
package rateless

import "github.com/quorumdb/raft/pkg/raft"

// Symbol names one source entry folded into a Codeword: its absolute
// log position, its proposal identifier, and its term-of-creation. Only
// the payload is XOR-combined; this metadata travels in the clear
// alongside the combined payload so a follower can place a peeled entry
// at the right index without a separate index-resolution round trip.
type Symbol struct {
	Index      int
	ProposalID raft.ProposalID
	Term       raft.Term
}

// Codeword is the rateless dialect's replication unit (SPEC_FULL.md
// §4.4): the XOR of the payloads of every entry named in Symbols.
// Degree is len(Symbols).
type Codeword struct {
	Payload []byte
	Symbols []Symbol
}

func (c Codeword) degree() int { return len(c.Symbols) }

// xorInto returns a XOR b, treating missing trailing bytes as zero so
// codewords combining payloads of different lengths still round-trip.
func xorInto(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	copy(out, a)
	for i := 0; i < len(b); i++ {
		out[i] ^= b[i]
	}
	return out
}
