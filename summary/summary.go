/*
Package summary flattens a stratification tree into its leaves: numbered
groups of subjects described by the conjunction of the conditions on the
path from the root, that subjects can be assigned to without the tree.
*/
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
)

// Error represents an error summarizing a tree or using its summary
type Error string

const (
	// ErrTreeNotGrown is returned when summarizing a tree that has not been grown
	ErrTreeNotGrown = Error("tree has not been grown")
	// ErrNoMatchingLeaf is returned by AssignToLeaf when a sample satisfies
	// the conditions of no leaf
	ErrNoMatchingLeaf = Error("sample does not satisfy the conditions of any leaf")
)

func (e Error) Error() string {
	return string(e)
}

/*
Leaf is the summary of a leaf of a tree.
*/
type Leaf struct {
	// 1-based position of the leaf in depth-first order, left subtrees first
	ID int
	// ID of the leaf node on the tree
	NodeID string
	// Criteria on the path from the root to the leaf, the root's child first
	Conditions []feature.Criterion
	Subjects   int
	Samples    int
	IOI        float64
	FeatureIOI map[string]float64
}

/*
Matches returns whether the sample satisfies all the conditions of the leaf.
*/
func (l *Leaf) Matches(ctx context.Context, s feature.Sample) (bool, error) {
	for _, c := range l.Conditions {
		ok, err := c.SatisfiedBy(ctx, s)
		if err != nil {
			return false, fmt.Errorf("evaluating %v on leaf %d: %w", c, l.ID, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

/*
Rule returns the conditions of the leaf joined by AND, or an empty string
for a root leaf.
*/
func (l *Leaf) Rule() string {
	conditions := make([]string, 0, len(l.Conditions))
	for _, c := range l.Conditions {
		conditions = append(conditions, fmt.Sprint(c))
	}
	return strings.Join(conditions, " AND ")
}

func (l *Leaf) String() string {
	return fmt.Sprintf("{Leaf %d (%s): %s}", l.ID, l.NodeID, l.Rule())
}

/*
Summarize takes a context and a tree and returns the summary of its leaves,
in depth-first order with left subtrees first, and the tree itself. It
returns ErrTreeNotGrown for a nil tree.
*/
func Summarize(ctx context.Context, t *tree.Tree) ([]*Leaf, *tree.Tree, error) {
	if t == nil {
		return nil, nil, ErrTreeNotGrown
	}
	nodes := make(map[string]*tree.Node)
	var leaves []*Leaf
	err := t.Traverse(ctx, false, func(_ context.Context, n *tree.Node) error {
		nodes[n.ID] = n
		if !n.IsLeaf() {
			return nil
		}
		conditions, err := path(nodes, n)
		if err != nil {
			return err
		}
		leaves = append(leaves, &Leaf{
			ID:         len(leaves) + 1,
			NodeID:     n.ID,
			Conditions: conditions,
			Subjects:   n.Subjects,
			Samples:    n.Samples,
			IOI:        n.IOI,
			FeatureIOI: n.FeatureIOI,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("summarizing tree: %w", err)
	}
	return leaves, t, nil
}

// path returns the criteria from the root to n, given its visited ancestors
func path(nodes map[string]*tree.Node, n *tree.Node) ([]feature.Criterion, error) {
	var reversed []feature.Criterion
	for n.ParentID != "" {
		if n.FeatureCriterion == nil {
			return nil, fmt.Errorf("node %s has no criterion", n.ID)
		}
		reversed = append(reversed, n.FeatureCriterion)
		parent, ok := nodes[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("parent %s of node %s not found", n.ParentID, n.ID)
		}
		n = parent
	}
	conditions := make([]feature.Criterion, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		conditions = append(conditions, reversed[i])
	}
	return conditions, nil
}

/*
AssignToLeaf takes a context, the leaves of a summary and a sample and
returns the ID of the first leaf whose conditions the sample satisfies. It
returns ErrNoMatchingLeaf if there is none.

The values of the sample must be subject-level, as trees split subjects on
the mean of their rows for continuous covariates. A single row of a subject
whose continuous covariates vary between visits may not belong to the leaf
of its subject: use AssignSubject or AssignSamples to assign rows.
*/
func AssignToLeaf(ctx context.Context, leaves []*Leaf, s feature.Sample) (int, error) {
	for _, l := range leaves {
		ok, err := l.Matches(ctx, s)
		if err != nil {
			return 0, err
		}
		if ok {
			return l.ID, nil
		}
	}
	return 0, ErrNoMatchingLeaf
}

/*
AssignSubject takes a context, the leaves of a summary and a subject and
returns the ID of the leaf the subject belongs to, evaluating the conditions
on its subject-level values. All the rows of the subject belong to that
leaf.
*/
func AssignSubject(ctx context.Context, leaves []*Leaf, s *dataset.Subject) (int, error) {
	id, err := AssignToLeaf(ctx, leaves, s)
	if err != nil {
		return 0, fmt.Errorf("assigning subject %s: %w", s.ID(), err)
	}
	return id, nil
}

/*
AssignSamples takes a context, the leaves of a summary and the rows of a
table and returns the ID of the leaf of every subject in the rows, by subject
identifier.
*/
func AssignSamples(ctx context.Context, leaves []*Leaf, samples []dataset.Sample) (map[string]int, error) {
	result := make(map[string]int)
	for _, subject := range dataset.GroupSubjects(samples) {
		id, err := AssignSubject(ctx, leaves, subject)
		if err != nil {
			return nil, err
		}
		result[subject.ID()] = id
	}
	return result, nil
}
