package rateless

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

type memTransport struct {
	id    raft.ReplicaID
	inbox []raft.Envelope
	net   *memNetwork
}

type memNetwork struct {
	routes map[raft.ReplicaID]*memTransport
}

func newMemNetwork() *memNetwork {
	return &memNetwork{routes: make(map[raft.ReplicaID]*memTransport)}
}

func (n *memNetwork) transportFor(id raft.ReplicaID) *memTransport {
	t := &memTransport{id: id, net: n}
	n.routes[id] = t
	return t
}

func (t *memTransport) Send(env raft.Envelope) {
	dst, ok := t.net.routes[env.To]
	if !ok {
		return
	}
	dst.inbox = append(dst.inbox, env)
}

func (t *memTransport) Receive() (raft.Envelope, bool) {
	if len(t.inbox) == 0 {
		return raft.Envelope{}, false
	}
	env := t.inbox[0]
	t.inbox = t.inbox[1:]
	return env, true
}

func (t *memTransport) drain(step func(raft.Envelope)) {
	for {
		env, ok := t.Receive()
		if !ok {
			return
		}
		step(env)
	}
}

func newTestReplica(id raft.ReplicaID, peers []raft.ReplicaID, net *memNetwork, electionBound int) *Replica {
	cfg := Config{
		ID:             id,
		Peers:          peers,
		ElectionBound:  electionBound,
		HeartbeatBound: 3,
		Batch:          6,
		DegreeDist:     DegreeDistribution(16, 0.05, 0.2),
		Rand:           rand.New(rand.NewSource(7)),
	}
	return NewReplica(cfg, raft.NewMemoryStore(), net.transportFor(id))
}

func threeNodeCluster(t *testing.T) (map[raft.ReplicaID]*Replica, *memNetwork) {
	t.Helper()
	ids := []raft.ReplicaID{"n1", "n2", "n3"}
	net := newMemNetwork()
	replicas := make(map[raft.ReplicaID]*Replica, 3)
	for _, id := range ids {
		var peers []raft.ReplicaID
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		replicas[id] = newTestReplica(id, peers, net, 10)
	}
	return replicas, net
}

func drainAll(t *testing.T, replicas map[raft.ReplicaID]*Replica, net *memNetwork) {
	t.Helper()
	for i := 0; i < 8; i++ {
		for id, r := range replicas {
			net.routes[id].drain(r.Step)
		}
	}
}

func TestRatelessElectionReachesLeader(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]
	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)

	require.Equal(t, raft.RoleLeader, n1.Role())
	require.Equal(t, raft.RoleFollower, replicas["n2"].Role())
	require.Equal(t, raft.RoleFollower, replicas["n3"].Role())
}

func TestRatelessProposalReplicatesByPeelingAndCommits(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]
	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)
	require.Equal(t, raft.RoleLeader, n1.Role())

	for _, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		err := n1.Propose(payload, uuid.New())
		require.NoError(t, err)
	}

	for i := 0; i < 6; i++ {
		n1.Tick()
		drainAll(t, replicas, net)
	}

	require.Equal(t, 3, n1.CommitIndex())
	require.Equal(t, 3, replicas["n2"].CommitIndex())
	require.Equal(t, 3, replicas["n3"].CommitIndex())
}

// TestRatelessReplicateOverwritesConflictingSuffix exercises spec.md
// §8's "conflicting suffix" scenario for the rateless dialect: a
// follower holds an uncommitted entry (Y) at the same index a new
// term-2 leader has since committed a different entry (Z) to. The
// follower must overwrite Y with Z, not get stuck with Y permanently
// shadowed by whatever the leader resolves past it.
func TestRatelessReplicateOverwritesConflictingSuffix(t *testing.T) {
	store := raft.NewMemoryStore()
	require.NoError(t, store.AppendEntry(raft.LogEntry{Payload: []byte("X"), ProposalID: uuid.New(), Term: 1}))
	require.NoError(t, store.MarkCommitted(1))
	require.NoError(t, store.AppendEntry(raft.LogEntry{Payload: []byte("Y-stale"), ProposalID: uuid.New(), Term: 1}))

	net := newMemNetwork()
	follower := NewReplica(Config{
		ID:             "f1",
		Peers:          []raft.ReplicaID{"leader"},
		ElectionBound:  10,
		HeartbeatBound: 3,
		Batch:          6,
		DegreeDist:     DegreeDistribution(16, 0.05, 0.2),
		Rand:           rand.New(rand.NewSource(7)),
	}, store, net.transportFor("f1"))

	require.Equal(t, 1, follower.CommitIndex())

	zID := uuid.New()
	req := ReplicateReq{
		LeaderTerm: 2,
		LeaderID:   "leader",
		Patch: []Codeword{
			{Payload: []byte("Z"), Symbols: []Symbol{{Index: 1, ProposalID: zID, Term: 2}}},
		},
		Commit: 2,
	}
	follower.Step(raft.Envelope{From: "leader", To: "f1", Body: req})

	require.Equal(t, 2, follower.CommitIndex())
	entries := store.Slice(0, 2)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("X"), entries[0].Payload)
	require.Equal(t, []byte("Z"), entries[1].Payload)
	require.Equal(t, zID, entries[1].ProposalID)
	require.Equal(t, raft.Term(2), entries[1].Term)
}
