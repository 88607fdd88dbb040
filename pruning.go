package stratify

import (
	"context"
	"io"
	"log/slog"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
	"github.com/pbanos/stratify/variability"
)

// Strategy holds the configuration
// for when a node should not be partitioned
// further and how partitions are scored.
type Strategy struct {
	// Pruner is applied to the best partition
	// of a node to determine if the result is
	// worth incorporating into the tree.
	Pruner
	// MinSubjectsPerLeaf is the minimum number
	// of distinct subjects on every node but the
	// root. Nodes with less than twice this
	// number of subjects will not be developed.
	MinSubjectsPerLeaf int
	// MaxDepth is the depth at which nodes are
	// no longer developed, 0 meaning unlimited.
	MaxDepth int
	// ExhaustiveCategoryLimit is the maximum
	// number of values of a discrete covariate
	// for which every bipartition of its values
	// is tried. Discrete covariates with more
	// values are split one value against the
	// rest. It is capped to
	// MaxExhaustiveCategories.
	ExhaustiveCategoryLimit int
	// IOI computes the index of individuality
	// of every feature on a dataset. It defaults
	// to variability.IOI.
	IOI IOIFunc
	// Metrics, if not nil, records the growth
	// of trees.
	Metrics *Metrics
	// Logger, if not nil, receives debug
	// messages about the development of nodes.
	Logger *slog.Logger
}

/*
IOIFunc is the signature of functions that compute the index of
individuality of some features on a dataset, like variability.IOI.
*/
type IOIFunc func(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error)

/*
Pruner is an interface wrapping the Prune method, that can be used
to decide whether a partition is good enough to become part of a tree
or if it must be pruned instead.

The Prune method takes a context, the node being developed and its best
partition and returns a boolean: true to indicate the partition must be
pruned, false to allow its adding to the tree and further development.
*/
type Pruner interface {
	Prune(ctx context.Context, n *tree.Node, p *Partition) (bool, error)
}

/*
PrunerFunc wraps a function with the Prune method signature to implement
the Pruner interface
*/
type PrunerFunc func(ctx context.Context, n *tree.Node, p *Partition) (bool, error)

/*
Prune takes a context.Context, a node and a partition and invokes the
PrunerFunc with those parameters to return its boolean result.
*/
func (pf PrunerFunc) Prune(ctx context.Context, n *tree.Node, p *Partition) (bool, error) {
	return pf(ctx, n, p)
}

/*
DefaultPruner returns a Pruner whose Prune method returns true unless
the combined objective of the partition is strictly lower than the IOI
of the node.
*/
func DefaultPruner() Pruner {
	return MinimumImprovementPruner(0)
}

/*
MinimumImprovementPruner takes a minimum improvement float64 value and
returns a Pruner whose Prune method returns true unless the partition
lowers the IOI of the node by more than the minimum. Partitions with an
undefined (NaN) improvement are always pruned.
*/
func MinimumImprovementPruner(minimum float64) Pruner {
	return PrunerFunc(func(ctx context.Context, n *tree.Node, p *Partition) (bool, error) {
		return !(p.Improvement > minimum), nil
	})
}

func (s *Strategy) pruner() Pruner {
	if s.Pruner == nil {
		return DefaultPruner()
	}
	return s.Pruner
}

func (s *Strategy) minSubjectsPerLeaf() int {
	if s.MinSubjectsPerLeaf < 1 {
		return 1
	}
	return s.MinSubjectsPerLeaf
}

func (s *Strategy) exhaustiveCategoryLimit() int {
	if s.ExhaustiveCategoryLimit > MaxExhaustiveCategories {
		return MaxExhaustiveCategories
	}
	return s.ExhaustiveCategoryLimit
}

func (s *Strategy) ioi(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error) {
	if s.IOI == nil {
		return variability.IOI(ctx, ds, features)
	}
	return s.IOI(ctx, ds, features)
}

func (s *Strategy) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}
