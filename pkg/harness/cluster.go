package harness

import (
	"github.com/quorumdb/raft/pkg/cluster"
	"github.com/quorumdb/raft/pkg/raft"
	"github.com/quorumdb/raft/pkg/simnet"
)

// Cluster wires N raft.Replica instances to a shared simnet.Network and
// drives them round by round, feeding every commit/term/leadership
// observation to an InvariantChecker. Adapted from the teacher's
// TestCluster (pkg/testing/cluster.go), dropping its kv.Store/wal.WAL/
// rpc.LocalTransport dependencies in favor of this module's
// MemoryStore/Network/cooperative Replica.
type Cluster struct {
	ids      []raft.ReplicaID
	replicas map[raft.ReplicaID]*raft.Replica
	stores   map[raft.ReplicaID]*raft.MemoryStore
	net      *simnet.Network
	checker  *InvariantChecker

	lastCommit map[raft.ReplicaID]int
	lastRole   map[raft.ReplicaID]raft.RoleKind
}

// NewCluster builds a Cluster of len(ids) replicas, all peered with one
// another, sharing a simnet.Network configured with the given uniform
// drop rate and tick delay range (see simnet.NewNetwork).
func NewCluster(ids []raft.ReplicaID, electionBound int, dropRate float64, minDelay, maxDelay int) *Cluster {
	net := simnet.NewNetwork(dropRate, minDelay, maxDelay)
	c := &Cluster{
		ids:        append([]raft.ReplicaID(nil), ids...),
		replicas:   make(map[raft.ReplicaID]*raft.Replica, len(ids)),
		stores:     make(map[raft.ReplicaID]*raft.MemoryStore, len(ids)),
		net:        net,
		checker:    NewInvariantChecker(),
		lastCommit: make(map[raft.ReplicaID]int),
		lastRole:   make(map[raft.ReplicaID]raft.RoleKind),
	}

	for _, id := range ids {
		var otherPeers []cluster.Peer
		for _, other := range ids {
			if other != id {
				otherPeers = append(otherPeers, cluster.Peer{ID: other})
			}
		}
		// id is never among otherPeers by construction, so this can't fail.
		peerSet, _ := cluster.New(id, otherPeers)
		store := raft.NewMemoryStore()
		c.stores[id] = store
		c.replicas[id] = raft.NewReplica(raft.Config{
			ID:             peerSet.Self(),
			Peers:          peerSet.PeerIDs(),
			ElectionBound:  electionBound,
			HeartbeatBound: electionBound / 3,
			Batch:          16,
		}, store, net.Endpoint(id))
	}
	return c
}

// Tick advances every replica by one logical tick, advances the
// network's own clock, drains whatever messages the network has
// delivered into Step, then records fresh commit/term/leader
// observations into the InvariantChecker.
func (c *Cluster) Tick() {
	for _, id := range c.ids {
		c.replicas[id].Tick()
	}
	c.net.Advance()
	for _, id := range c.ids {
		r := c.replicas[id]
		ep := c.net.Endpoint(id)
		for {
			env, ok := ep.Receive()
			if !ok {
				break
			}
			r.Step(env)
		}
	}
	c.observe()
}

func (c *Cluster) observe() {
	for _, id := range c.ids {
		r := c.replicas[id]
		store := c.stores[id]

		c.checker.RecordTerm(id, r.Term())
		if r.Role() == raft.RoleLeader && c.lastRole[id] != raft.RoleLeader {
			c.checker.RecordLeader(id, r.Term())
		}
		c.lastRole[id] = r.Role()

		commit := r.CommitIndex()
		for i := c.lastCommit[id]; i < commit; i++ {
			entries := store.Slice(i, i+1)
			if len(entries) == 1 {
				c.checker.RecordCommit(id, i, entries[0])
			}
		}
		c.lastCommit[id] = commit
	}
}

// Propose submits payload to replica id, minting proposalID as given by
// the caller (spec.md §3: callers mint a fresh id per submission).
func (c *Cluster) Propose(id raft.ReplicaID, payload []byte, proposalID raft.ProposalID) error {
	return c.replicas[id].Propose(payload, proposalID)
}

// Replica returns the named replica for direct inspection.
func (c *Cluster) Replica(id raft.ReplicaID) *raft.Replica { return c.replicas[id] }

// Network returns the underlying simnet.Network, for fault injection
// (Partition/Heal/SetDropRate) from a test.
func (c *Cluster) Network() *simnet.Network { return c.net }

// Checker returns the InvariantChecker accumulating this cluster's
// observations.
func (c *Cluster) Checker() *InvariantChecker { return c.checker }

// Leader returns the id of whichever replica currently believes itself
// Leader, if any.
func (c *Cluster) Leader() (raft.ReplicaID, bool) {
	for _, id := range c.ids {
		if c.replicas[id].Role() == raft.RoleLeader {
			return id, true
		}
	}
	return "", false
}
