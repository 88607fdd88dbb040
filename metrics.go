package stratify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons for a node to become a leaf, used as label values of the
// leaves metric
const (
	LeafReasonSize       = "size"
	LeafReasonDepth      = "depth"
	LeafReasonInfeasible = "infeasible"
	LeafReasonPruned     = "pruned"
)

/*
Metrics holds the prometheus collectors that track the growth of trees.
A nil *Metrics is valid and records nothing.
*/
type Metrics struct {
	// NodesDeveloped counts the nodes branched out, whether they were
	// split or not
	NodesDeveloped prometheus.Counter
	// Leaves counts the nodes that became leaves by reason
	Leaves *prometheus.CounterVec
	// CandidatesEvaluated counts the candidate partitions scored
	CandidatesEvaluated prometheus.Counter
	// CandidatesInfeasible counts the candidate partitions discarded
	// for leaving less subjects than required on a child
	CandidatesInfeasible prometheus.Counter
	// SplitImprovement observes the IOI improvement of the splits
	// performed
	SplitImprovement prometheus.Histogram
}

/*
NewMetrics takes a prometheus.Registerer and returns Metrics whose
collectors are registered on it. It panics if they cannot be registered,
like promauto does.
*/
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NodesDeveloped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stratify",
			Subsystem: "growth",
			Name:      "nodes_developed_total",
			Help:      "Total nodes branched out",
		}),
		Leaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratify",
			Subsystem: "growth",
			Name:      "leaves_total",
			Help:      "Total nodes that became leaves by reason",
		}, []string{"reason"}),
		CandidatesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stratify",
			Subsystem: "growth",
			Name:      "candidates_evaluated_total",
			Help:      "Total candidate partitions scored",
		}),
		CandidatesInfeasible: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stratify",
			Subsystem: "growth",
			Name:      "candidates_infeasible_total",
			Help:      "Total candidate partitions discarded by the minimum subjects per leaf",
		}),
		SplitImprovement: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stratify",
			Subsystem: "growth",
			Name:      "split_improvement",
			Help:      "IOI improvement of the splits performed",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) nodeDeveloped() {
	if m != nil {
		m.NodesDeveloped.Inc()
	}
}

func (m *Metrics) leaf(reason string) {
	if m != nil {
		m.Leaves.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) candidates(evaluated, infeasible int) {
	if m != nil {
		m.CandidatesEvaluated.Add(float64(evaluated))
		m.CandidatesInfeasible.Add(float64(infeasible))
	}
}

func (m *Metrics) split(improvement float64) {
	if m != nil {
		m.SplitImprovement.Observe(improvement)
	}
}
