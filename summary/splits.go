package summary

import (
	"context"
	"fmt"

	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
)

// Directions of a node with respect to its parent
const (
	Root  = "root"
	Left  = "left"
	Right = "right"
)

/*
Split is the summary of an internal node of a tree.
*/
type Split struct {
	NodeID   string
	ParentID string
	// Root for the root node, Left or Right for the rest
	Direction string
	Depth     int
	// Name of the covariate the node is split on
	Covariate string
	// Criterion selecting the left subtree
	Criterion   feature.Criterion
	Subjects    int
	IOI         float64
	Improvement float64
}

/*
Splits takes a context and a tree and returns the summary of its internal
nodes in depth-first order, left subtrees first. It returns ErrTreeNotGrown
for a nil tree.
*/
func Splits(ctx context.Context, t *tree.Tree) ([]*Split, error) {
	if t == nil {
		return nil, ErrTreeNotGrown
	}
	directions := map[string]string{t.RootID: Root}
	var splits []*Split
	err := t.Traverse(ctx, false, func(ctx context.Context, n *tree.Node) error {
		if n.IsLeaf() {
			return nil
		}
		children := make([]*tree.Node, 0, len(n.SubtreeIDs))
		for i, id := range n.SubtreeIDs {
			c, err := t.Get(ctx, id)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("node %s not found", id)
			}
			children = append(children, c)
			directions[id] = Left
			if i > 0 {
				directions[id] = Right
			}
		}
		s := &Split{
			NodeID:      n.ID,
			ParentID:    n.ParentID,
			Direction:   directions[n.ID],
			Depth:       n.Depth,
			Criterion:   children[0].FeatureCriterion,
			Subjects:    n.Subjects,
			IOI:         n.IOI,
			Improvement: n.Improvement(children...),
		}
		if n.SubtreeFeature != nil {
			s.Covariate = n.SubtreeFeature.Name()
		}
		splits = append(splits, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("summarizing splits: %w", err)
	}
	return splits, nil
}
