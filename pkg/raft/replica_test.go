package raft

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memTransport is a deterministic in-memory Transport: Send appends
// directly to the destination's queue, found via a shared registry.
type memTransport struct {
	id    ReplicaID
	inbox []Envelope
	net   *memNetwork
}

type memNetwork struct {
	routes map[ReplicaID]*memTransport
}

func newMemNetwork() *memNetwork {
	return &memNetwork{routes: make(map[ReplicaID]*memTransport)}
}

func (n *memNetwork) transportFor(id ReplicaID) *memTransport {
	t := &memTransport{id: id, net: n}
	n.routes[id] = t
	return t
}

func (t *memTransport) Send(env Envelope) {
	dst, ok := t.net.routes[env.To]
	if !ok {
		return
	}
	dst.inbox = append(dst.inbox, env)
}

func (t *memTransport) Receive() (Envelope, bool) {
	if len(t.inbox) == 0 {
		return Envelope{}, false
	}
	env := t.inbox[0]
	t.inbox = t.inbox[1:]
	return env, true
}

func (t *memTransport) drain(r *Replica) {
	for {
		env, ok := t.Receive()
		if !ok {
			return
		}
		r.Step(env)
	}
}

func newTestReplica(id ReplicaID, peers []ReplicaID, net *memNetwork, electionBound int) *Replica {
	cfg := Config{
		ID:             id,
		Peers:          peers,
		ElectionBound:  electionBound,
		HeartbeatBound: 3,
		Batch:          8,
		Rand:           rand.New(rand.NewSource(1)),
	}
	return NewReplica(cfg, NewMemoryStore(), net.transportFor(id))
}

func threeNodeCluster(t *testing.T) (map[ReplicaID]*Replica, *memNetwork) {
	t.Helper()
	ids := []ReplicaID{"n1", "n2", "n3"}
	net := newMemNetwork()
	replicas := make(map[ReplicaID]*Replica, 3)
	for _, id := range ids {
		var peers []ReplicaID
		for _, other := range ids {
			if other != id {
				peers = append(peers, other)
			}
		}
		replicas[id] = newTestReplica(id, peers, net, 10)
	}
	return replicas, net
}

func drainAll(t *testing.T, replicas map[ReplicaID]*Replica, net *memNetwork) {
	t.Helper()
	for i := 0; i < 5; i++ {
		for id, r := range replicas {
			net.routes[id].drain(r)
		}
	}
}

func TestCoupPromotesToCandidateAndSendsVoteReqs(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]

	for i := 0; i < 10; i++ {
		n1.Tick()
	}

	require.Equal(t, RoleCandidate, n1.Role())
	require.Equal(t, Term(1), n1.Term())

	require.Len(t, net.routes["n2"].inbox, 1)
	require.Len(t, net.routes["n3"].inbox, 1)
	_, ok := net.routes["n2"].inbox[0].Body.(VoteReq)
	require.True(t, ok)
}

func TestElectionReachesLeaderOnMajorityVotes(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]

	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	net.routes["n2"].drain(replicas["n2"])
	net.routes["n3"].drain(replicas["n3"])
	net.routes["n1"].drain(n1)

	require.Equal(t, RoleLeader, n1.Role())
	require.Equal(t, RoleFollower, replicas["n2"].Role())
	require.Equal(t, RoleFollower, replicas["n3"].Role())
}

func TestProposalReplicatesAndCommitsByMajority(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]

	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)
	require.Equal(t, RoleLeader, n1.Role())

	err := n1.Propose([]byte("set x=1"), uuid.New())
	require.NoError(t, err)

	drainAll(t, replicas, net)

	require.Equal(t, 1, n1.CommitIndex())

	// Followers learn the advanced commit index from the leader's next
	// ReplicateReq, sent when its heartbeat timeout expires.
	for i := 0; i < 3; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)

	require.Equal(t, 1, replicas["n2"].CommitIndex())
	require.Equal(t, 1, replicas["n3"].CommitIndex())
}

func TestFollowerRedirectsProposalToKnownLeader(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]

	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)

	leaderHint, ok := replicas["n2"].LeaderHint()
	require.True(t, ok)
	require.Equal(t, ReplicaID("n1"), leaderHint)

	err := replicas["n2"].Propose([]byte("set y=2"), uuid.New())
	require.NoError(t, err)

	drainAll(t, replicas, net)
	require.Equal(t, 1, n1.CommitIndex())
}

func TestProposeWithNoKnownLeaderFails(t *testing.T) {
	replicas, _ := threeNodeCluster(t)
	n2 := replicas["n2"]

	err := n2.Propose([]byte("x"), uuid.New())
	require.Error(t, err)
	var pf *ProposalFailed
	require.ErrorAs(t, err, &pf)
	require.Equal(t, ReasonNotLeader, pf.Reason)
}

func TestVoteRejWithHigherTermResetsCandidacy(t *testing.T) {
	replicas, _ := threeNodeCluster(t)
	n1 := replicas["n1"]
	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	require.Equal(t, Term(1), n1.Term())

	n1.Step(Envelope{From: "n2", To: "n1", Body: VoteRej{Term: 5}})

	require.Equal(t, RoleCandidate, n1.Role())
	require.Equal(t, Term(5), n1.Term())
}

func TestStaleReplicateReqIsRejected(t *testing.T) {
	replicas, net := threeNodeCluster(t)
	n1 := replicas["n1"]
	for i := 0; i < 10; i++ {
		n1.Tick()
	}
	drainAll(t, replicas, net)
	require.Equal(t, RoleLeader, n1.Role())

	n3 := replicas["n3"]
	n3.Step(Envelope{From: "n1", To: "n3", Body: ReplicateReq{
		LeaderTerm: 0,
		LeaderID:   "n1",
		Commit:     0,
	}})

	require.Len(t, net.routes["n1"].inbox, 1)
	_, ok := net.routes["n1"].inbox[0].Body.(ReplicateRej)
	require.True(t, ok)
}

func TestOverlayIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	patch := []LogEntry{{Payload: []byte("a"), Term: 1, ProposalID: uuid.New()}}

	sync1, err := s.Overlay(0, patch)
	require.NoError(t, err)
	sync2, err := s.Overlay(0, patch)
	require.NoError(t, err)

	require.Equal(t, sync1, sync2)
	require.Equal(t, 1, sync2)
	_, length := s.Last()
	require.Equal(t, 1, length)
}
