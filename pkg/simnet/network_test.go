package simnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func TestNetworkDeliversAfterDelayElapses(t *testing.T) {
	net := NewNetwork(0, 2, 2)
	a := net.Endpoint("a")
	b := net.Endpoint("b")

	a.Send(raft.Envelope{From: "a", To: "b", Body: raft.VoteAck{Term: 1}})

	_, ok := b.Receive()
	require.False(t, ok)

	net.Advance()
	_, ok = b.Receive()
	require.False(t, ok)

	net.Advance()
	env, ok := b.Receive()
	require.True(t, ok)
	require.Equal(t, raft.ReplicaID("a"), env.From)
}

func TestNetworkDropsAcrossPartition(t *testing.T) {
	net := NewNetwork(0, 0, 0)
	a := net.Endpoint("a")
	_ = net.Endpoint("b")
	net.Partition("a")

	a.Send(raft.Envelope{From: "a", To: "b", Body: raft.VoteAck{Term: 1}})
	net.Advance()

	require.Len(t, net.Dropped(), 1)
	require.Empty(t, net.Delivered())
}

func TestNetworkHealRestoresDelivery(t *testing.T) {
	net := NewNetwork(0, 0, 0)
	a := net.Endpoint("a")
	b := net.Endpoint("b")
	net.Partition("a")
	net.Heal("a")

	a.Send(raft.Envelope{From: "a", To: "b", Body: raft.VoteAck{Term: 1}})
	net.Advance()

	env, ok := b.Receive()
	require.True(t, ok)
	require.Equal(t, raft.ReplicaID("a"), env.From)
}

func TestBurstNetworkEventuallyDeliversInGoodState(t *testing.T) {
	net := NewBurstNetwork(1.0, 0.0, 0.0, 0.0)
	a := net.Endpoint("a")
	b := net.Endpoint("b")

	for i := 0; i < 10; i++ {
		a.Send(raft.Envelope{From: "a", To: "b", Body: raft.VoteAck{Term: raft.Term(i)}})
	}

	count := 0
	for {
		if _, ok := b.Receive(); ok {
			count++
			continue
		}
		break
	}
	require.Equal(t, 10, count)
}
