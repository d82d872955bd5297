// Package cluster describes the fixed membership a Replica runs
// against. Membership change is an explicit non-goal (spec.md §1); a
// PeerSet is immutable once constructed, in contrast to the teacher's
// dynamic join/leave Manager.
package cluster

import (
	"fmt"

	"github.com/quorumdb/raft/pkg/raft"
)

// Peer names one cluster member and where to reach it.
type Peer struct {
	ID      raft.ReplicaID
	Address string
}

// PeerSet is the fixed-at-construction cluster membership a Replica is
// configured against. The quorum-size idiom is kept from the teacher's
// membership.Manager.QuorumSize, simplified to a static cluster rather
// than one tracking joining/leaving/active members.
type PeerSet struct {
	self  raft.ReplicaID
	peers []Peer
}

// New builds a PeerSet. self must not appear in peers. Cluster size
// (1 + len(peers)) should be >= 3, with odd sizes recommended
// (spec.md §6's replica constructor parameters).
func New(self raft.ReplicaID, peers []Peer) (*PeerSet, error) {
	for _, p := range peers {
		if p.ID == self {
			return nil, fmt.Errorf("cluster: self %q listed among peers", self)
		}
	}
	return &PeerSet{self: self, peers: append([]Peer(nil), peers...)}, nil
}

// Self returns this node's own identifier.
func (s *PeerSet) Self() raft.ReplicaID { return s.self }

// PeerIDs returns every other member's identifier, for Replica
// construction.
func (s *PeerSet) PeerIDs() []raft.ReplicaID {
	ids := make([]raft.ReplicaID, len(s.peers))
	for i, p := range s.peers {
		ids[i] = p.ID
	}
	return ids
}

// Address returns the dial address for a peer, if known.
func (s *PeerSet) Address(id raft.ReplicaID) (string, bool) {
	for _, p := range s.peers {
		if p.ID == id {
			return p.Address, true
		}
	}
	return "", false
}

// Addresses returns the {id: address} map a grpc.Transport needs to
// dial every peer.
func (s *PeerSet) Addresses() map[raft.ReplicaID]string {
	out := make(map[raft.ReplicaID]string, len(s.peers))
	for _, p := range s.peers {
		out[p.ID] = p.Address
	}
	return out
}

// Size returns the total cluster size, self included.
func (s *PeerSet) Size() int { return len(s.peers) + 1 }

// QuorumSize returns the number of votes (self included) needed for a
// majority of the cluster.
func (s *PeerSet) QuorumSize() int { return s.Size()/2 + 1 }
