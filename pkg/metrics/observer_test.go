package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/quorumdb/raft/pkg/raft"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(label).Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserverReportsRoleTermAndCommitIndex(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	obs := reg.ObserverFor("n1")

	obs.OnRoleChange(raft.RoleLeader)
	obs.OnTermChange(raft.Term(4))
	obs.OnCommitAdvance(7)
	obs.OnElection()
	obs.OnReplicationRound()

	require.Equal(t, float64(raft.RoleLeader), gaugeValue(t, reg.role, "n1"))
	require.Equal(t, float64(4), gaugeValue(t, reg.term, "n1"))
	require.Equal(t, float64(7), gaugeValue(t, reg.commitIndex, "n1"))

	var electionMetric dto.Metric
	require.NoError(t, reg.elections.WithLabelValues("n1").Write(&electionMetric))
	require.Equal(t, float64(1), electionMetric.GetCounter().GetValue())
}
