package stratify

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordGrowth(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	fit(t, groupSamples(), DefaultConfig([]string{"group"}, []string{"y1", "y2"}), WithMetrics(m))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodesDeveloped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Leaves.WithLabelValues(LeafReasonInfeasible)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Leaves.WithLabelValues(LeafReasonPruned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesEvaluated))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CandidatesInfeasible))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SplitImprovement))
}

func TestMetricsCountInfeasibleCandidates(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig([]string{"age"}, []string{"y1"})
	cfg.MinSubjectsPerLeaf = 20
	fit(t, groupSamples(), cfg, WithMetrics(m))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesDeveloped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Leaves.WithLabelValues(LeafReasonInfeasible)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.CandidatesInfeasible))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.nodeDeveloped()
		m.leaf(LeafReasonSize)
		m.candidates(1, 1)
		m.split(0.5)
	})
}
