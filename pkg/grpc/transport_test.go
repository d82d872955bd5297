package grpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func TestGobCodecRoundTripsEnvelope(t *testing.T) {
	codec := gobCodec{}
	in := raft.Envelope{From: "n1", To: "n2", Body: raft.VoteReq{CandidateTerm: 4, CandidateID: "n1"}}

	data, err := codec.Marshal(&in)
	require.NoError(t, err)

	var out raft.Envelope
	require.NoError(t, codec.Unmarshal(data, &out))

	require.Equal(t, in.From, out.From)
	require.Equal(t, in.To, out.To)
	require.Equal(t, in.Body, out.Body)
}

func TestTransportDeliversEnvelopeOverLoopback(t *testing.T) {
	addrA := "127.0.0.1:17651"
	addrB := "127.0.0.1:17652"

	a := NewTransport("a", addrA, map[raft.ReplicaID]string{"b": addrB}, nil)
	b := NewTransport("b", addrB, map[raft.ReplicaID]string{"a": addrA}, nil)

	require.NoError(t, a.Start())
	require.NoError(t, b.Start())
	defer a.Close()
	defer b.Close()

	a.Send(raft.Envelope{From: "a", To: "b", Body: raft.VoteAck{Term: 3}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env, ok := b.Receive(); ok {
			require.Equal(t, raft.ReplicaID("a"), env.From)
			ack, ok := env.Body.(raft.VoteAck)
			require.True(t, ok)
			require.Equal(t, raft.Term(3), ack.Term)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("envelope never arrived")
}
