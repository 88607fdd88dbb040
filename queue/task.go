package queue

import (
	"fmt"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/tree"
)

// Task represents a tree.Node to be developed
// on a tree.Tree.
type Task struct {
	// The node to be developed
	Node *tree.Node
	// The dataset with the subjects satisfying the
	// constraints on the node and its ancestors.
	Dataset dataset.Dataset
}

// ID returns a string that identifies the
// task, the ID of its Node.
func (t *Task) ID() string {
	return t.Node.ID
}

func (t *Task) String() string {
	return fmt.Sprintf("{Task %s}", t.Node.ID)
}
