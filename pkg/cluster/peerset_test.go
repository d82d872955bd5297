package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func TestQuorumSizeForOddAndEvenClusters(t *testing.T) {
	s3, err := New("n1", []Peer{{ID: "n2"}, {ID: "n3"}})
	require.NoError(t, err)
	require.Equal(t, 3, s3.Size())
	require.Equal(t, 2, s3.QuorumSize())

	s4, err := New("n1", []Peer{{ID: "n2"}, {ID: "n3"}, {ID: "n4"}})
	require.NoError(t, err)
	require.Equal(t, 4, s4.Size())
	require.Equal(t, 3, s4.QuorumSize())
}

func TestNewRejectsSelfAmongPeers(t *testing.T) {
	_, err := New("n1", []Peer{{ID: "n1"}})
	require.Error(t, err)
}

func TestAddressesReturnsDialTable(t *testing.T) {
	s, err := New("n1", []Peer{{ID: "n2", Address: "10.0.0.2:7000"}, {ID: "n3", Address: "10.0.0.3:7000"}})
	require.NoError(t, err)
	require.Equal(t, map[raft.ReplicaID]string{"n2": "10.0.0.2:7000", "n3": "10.0.0.3:7000"}, s.Addresses())
}
