package tree

import (
	"math"

	"github.com/pbanos/stratify/feature"
	"gonum.org/v1/gonum/stat"
)

/*
Node is a node of the tree: a group of subjects.
*/
type Node struct {
	// An ID to identify the node, derived from the path from the root
	// to the node: the root is "1" and the children of node "x" are
	// "x.1" and "x.2"
	ID string
	// The ID for the parent of the node in the tree
	ParentID string
	// An slice with the IDs of the nodes directly under this node,
	// either none or two: the left child first
	SubtreeIDs []string
	// The constraint the subjects of this node satisfy and the
	// subjects of its sibling do not. It is nil for the root node.
	FeatureCriterion feature.Criterion
	// The covariate on which nodes directly under this node impose a
	// constraint, nil for leaves.
	SubtreeFeature feature.Feature
	// The number of edges from the root to the node
	Depth int
	// The number of distinct subjects in the node
	Subjects int
	// The number of rows of the subjects in the node
	Samples int
	// The aggregate index of individuality of the node's subjects
	IOI float64
	// The index of individuality of each measured feature for the
	// node's subjects
	FeatureIOI map[string]float64
}

// IsLeaf returns whether the node has no subtrees
func (n *Node) IsLeaf() bool {
	return len(n.SubtreeIDs) == 0
}

/*
Improvement returns the difference between the IOI of the node and the
subject-weighted mean IOI of the given children. It returns NaN when there
are no subjects in the children, or both IOIs are infinite.
*/
func (n *Node) Improvement(children ...*Node) float64 {
	iois := make([]float64, 0, len(children))
	weights := make([]float64, 0, len(children))
	for _, c := range children {
		if c.Subjects == 0 {
			continue
		}
		iois = append(iois, c.IOI)
		weights = append(weights, float64(c.Subjects))
	}
	if len(iois) == 0 {
		return math.NaN()
	}
	return n.IOI - stat.Mean(iois, weights)
}
