/*
Package tree provides the stratification tree: an arena of nodes kept in a
NodeStore and referencing each other by ID.
*/
package tree

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/stratify/feature"
)

// Tree represents a stratification tree. It is composed of a
// NodeStore where all its nodes are stored, the id for the
// root node of the tree, the covariates its nodes split
// subjects on and the features whose IOI it minimizes.
type Tree struct {
	NodeStore
	RootID     string
	Covariates []feature.Feature
	Features   []feature.Feature
}

// New takes the ID for the root Node, a NodeStore, the covariates and the
// measured features and returns a tree composed of the nodes in the NodeStore
// connected to the node with the given root ID.
func New(rootID string, nodeStore NodeStore, covariates, features []feature.Feature) *Tree {
	return &Tree{nodeStore, rootID, covariates, features}
}

// Assign takes a sample and returns the leaf of the tree it belongs to: at
// every node it descends into the first subtree whose criterion the sample
// satisfies. It returns ErrNoMatchingNode if no subtree criterion is satisfied
// at some node.
// Nodes split subjects on their subject-level values, so the sample should
// be a subject (a *dataset.Subject) rather than one of its rows.
func (t *Tree) Assign(ctx context.Context, s feature.Sample) (*Node, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tree cannot assign samples")
	}
	n, err := t.getNode(ctx, t.RootID)
	if err != nil {
		return nil, fmt.Errorf("assigning sample: %w", err)
	}
	for !n.IsLeaf() {
		var selectedNode *Node
		for _, nID := range n.SubtreeIDs {
			subnode, err := t.getNode(ctx, nID)
			if err != nil {
				return nil, fmt.Errorf("assigning sample: %w", err)
			}
			if subnode.FeatureCriterion == nil {
				return nil, fmt.Errorf("assigning sample: node %v has no criterion", nID)
			}
			ok, err := subnode.FeatureCriterion.SatisfiedBy(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("assigning sample: evaluating %v: %w", subnode.FeatureCriterion, err)
			}
			if ok {
				selectedNode = subnode
				break
			}
		}
		if selectedNode == nil {
			if n.SubtreeFeature == nil {
				return nil, fmt.Errorf("%w at node %s", ErrNoMatchingNode, n.ID)
			}
			return nil, fmt.Errorf("%w on feature %s at node %s", ErrNoMatchingNode, n.SubtreeFeature.Name(), n.ID)
		}
		n = selectedNode
	}
	return n, nil
}

// Leaves returns the leaves of the tree in depth-first order, left subtrees
// first.
func (t *Tree) Leaves(ctx context.Context) ([]*Node, error) {
	var leaves []*Node
	err := t.Traverse(ctx, false, func(_ context.Context, n *Node) error {
		if n.IsLeaf() {
			leaves = append(leaves, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

// Traverse takes a context, bottomup boolean and an
// error-returning function that takes a context and a node
// as parameters, and goes through the tree running the
// function with the context and every traversed node.
// Traverse will call the function with a parent node before
// calling it for its children if bottomup is false, and
// call it after its children if bottomup is true. Children
// are traversed left first.
// If the given context times out or is cancelled, the context
// error is returned. If a node cannot be retrieved from the
// tree's node store, the obtained error is returned. If the
// call to the function returns an error, the traversing is
// aborted and the error is returned. Otherwise, when the
// traversing is over, nil is returned.
func (t *Tree) Traverse(ctx context.Context, bottomup bool, f func(context.Context, *Node) error) error {
	n, err := t.getNode(ctx, t.RootID)
	if err != nil {
		return err
	}
	return t.traverse(ctx, n, bottomup, f)
}

func (t *Tree) traverse(ctx context.Context, n *Node, bottomup bool, f func(context.Context, *Node) error) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	if !bottomup {
		err = f(ctx, n)
	}
	if err != nil {
		return err
	}
	for _, snID := range n.SubtreeIDs {
		sn, err := t.getNode(ctx, snID)
		if err != nil {
			return err
		}
		err = t.traverse(ctx, sn, bottomup, f)
		if err != nil {
			return err
		}
	}
	if bottomup {
		err = f(ctx, n)
	}
	return err
}

func (t *Tree) getNode(ctx context.Context, id string) (*Node, error) {
	n, err := t.NodeStore.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieving node %v: %w", id, err)
	}
	if n == nil {
		return nil, fmt.Errorf("node %v not found", id)
	}
	return n, nil
}

func (t *Tree) String() string {
	return t.subtreeString(t.RootID)
}

func (t *Tree) subtreeString(nodeID string) string {
	n, err := t.getNode(context.TODO(), nodeID)
	if err != nil {
		return fmt.Sprintf("ERROR: %s\n", err.Error())
	}
	result := fmt.Sprintf("[%s]\n", nodeID)
	if n.FeatureCriterion != nil {
		result = fmt.Sprintf("%s{ %v }\n", result, n.FeatureCriterion)
	}
	result = fmt.Sprintf("%s{ subjects: %d, samples: %d, ioi: %s }\n", result, n.Subjects, n.Samples, feature.FormatThreshold(n.IOI))
	if len(n.SubtreeIDs) > 0 {
		result = fmt.Sprintf("%s|\n", result)
	} else {
		result = fmt.Sprintf("%s \n", result)
	}
	for i, subtreeID := range n.SubtreeIDs {
		for j, line := range strings.Split(t.subtreeString(subtreeID), "\n") {
			if len(line) > 0 {
				if j == 0 {
					result = fmt.Sprintf("%s|__%s\n", result, line)
				} else {
					if i == len(n.SubtreeIDs)-1 {
						result = fmt.Sprintf("%s   %s\n", result, line)
					} else {
						result = fmt.Sprintf("%s|  %s\n", result, line)
					}
				}
			}
		}
	}
	return result
}
