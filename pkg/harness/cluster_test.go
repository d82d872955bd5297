package harness

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func electLeader(t *testing.T, c *Cluster, maxTicks int) raft.ReplicaID {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		c.Tick()
		if id, ok := c.Leader(); ok {
			return id
		}
	}
	t.Fatal("no leader elected within bound")
	return ""
}

// TestSingleLeaderPerTermAndLogMatching exercises spec.md §8 invariants
// 1 (single leader per term) and 2 (log matching) across a run that
// proposes several entries and lets them commit.
func TestSingleLeaderPerTermAndLogMatching(t *testing.T) {
	c := NewCluster([]raft.ReplicaID{"n1", "n2", "n3"}, 10, 0, 1, 2)
	leader := electLeader(t, c, 200)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Propose(leader, []byte{byte(i)}, uuid.New()))
	}
	for i := 0; i < 100; i++ {
		c.Tick()
	}

	ok, violations := c.Checker().Check()
	require.True(t, ok, "%v", violations)
	require.Equal(t, 5, c.Replica(leader).CommitIndex())
}

// TestProgressUnderEventualSynchrony exercises spec.md §8 invariant 6:
// after a partition heals, the cluster still makes progress.
func TestProgressUnderEventualSynchrony(t *testing.T) {
	c := NewCluster([]raft.ReplicaID{"n1", "n2", "n3"}, 10, 0, 1, 2)
	leader := electLeader(t, c, 200)

	c.Network().Partition(leader)
	for i := 0; i < 60; i++ {
		c.Tick()
	}
	c.Network().Heal(leader)

	newLeader, ok := c.Leader()
	require.True(t, ok)

	require.NoError(t, c.Propose(newLeader, []byte("after-partition"), uuid.New()))
	for i := 0; i < 100; i++ {
		c.Tick()
	}

	require.Greater(t, c.Replica(newLeader).CommitIndex(), 0)
	ok, violations := c.Checker().Check()
	require.True(t, ok, "%v", violations)
}
