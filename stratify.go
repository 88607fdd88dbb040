/*
Package stratify grows stratification trees: trees that recursively split
the subjects of a longitudinal observation table in two groups on their
covariates, choosing at every node the split that most lowers the index of
individuality (IOI) of the measured features.
*/
package stratify

import (
	"context"
	"time"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/queue"
	"github.com/pbanos/stratify/tree"
)

// Seed takes a context, a slice of covariates, a slice of
// measured features, a dataset, a queue and a node store and
// sets everything up so that workers that consume from the
// queue afterwards grow a tree that splits the subjects of the
// dataset on the given covariates minimizing the IOI of the
// given features.
// Specifically it will create the root node of the tree on the
// node store and push a task to branch it out on the queue.
// The function returns the tree that can be grown or an error
// if the node cannot be created on the store, or the task pushed
// to the queue (in the amount of time allowed by the given
// context).
func Seed(ctx context.Context, covariates, features []feature.Feature, s dataset.Dataset, q queue.Queue, ns tree.NodeStore) (*tree.Tree, error) {
	n := &tree.Node{}
	err := ns.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	task := &queue.Task{Node: n, Dataset: s}
	t := tree.New(n.ID, ns, covariates, features)
	err = q.Push(ctx, task)
	if err != nil {
		ns.Delete(ctx, n)
		return nil, err
	}
	return t, nil
}

// BranchOut takes a context, a task, a tree and a growth strategy,
// develops the node in the task using the task's dataset and the
// tree's covariates and returns the tasks to develop the two
// resulting children nodes, no tasks if the node is a leaf, or an
// error.
func BranchOut(ctx context.Context, task *queue.Task, t *tree.Tree, s *Strategy) (tasks []*queue.Task, e error) {
	n := task.Node
	if n.FeatureIOI == nil {
		err := s.describe(ctx, n, task.Dataset, t.Features)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		err := t.NodeStore.Store(ctx, n)
		if e == nil {
			e = err
		}
	}()
	s.Metrics.nodeDeveloped()
	log := s.logger().With("node", n.ID, "subjects", n.Subjects, "ioi", n.IOI)
	if n.Subjects < 2*s.minSubjectsPerLeaf() {
		log.Debug("node too small to split")
		s.Metrics.leaf(LeafReasonSize)
		return nil, nil
	}
	if s.MaxDepth > 0 && n.Depth >= s.MaxDepth {
		log.Debug("node at maximum depth")
		s.Metrics.leaf(LeafReasonDepth)
		return nil, nil
	}
	selectedPartition, err := s.bestPartition(ctx, task, t)
	if err != nil {
		return nil, err
	}
	if selectedPartition == nil {
		log.Debug("no feasible partition")
		s.Metrics.leaf(LeafReasonInfeasible)
		return nil, nil
	}
	ok, err := s.pruner().Prune(ctx, n, selectedPartition)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Debug("partition pruned", "covariate", selectedPartition.Feature.Name(), "objective", selectedPartition.Objective)
		s.Metrics.leaf(LeafReasonPruned)
		return nil, nil
	}
	stNodeIDs := make([]string, 0, len(selectedPartition.Tasks))
	for _, st := range selectedPartition.Tasks {
		st.Node.ParentID = n.ID
		st.Node.Depth = n.Depth + 1
		err = t.NodeStore.Create(ctx, st.Node)
		if err != nil {
			return nil, err
		}
		stNodeIDs = append(stNodeIDs, st.Node.ID)
	}
	n.SubtreeFeature = selectedPartition.Feature
	n.SubtreeIDs = stNodeIDs
	s.Metrics.split(selectedPartition.Improvement)
	log.Debug("node split", "covariate", selectedPartition.Feature.Name(), "objective", selectedPartition.Objective, "subtrees", stNodeIDs)
	return selectedPartition.Tasks, nil
}

// Work takes a context, a tree, a queue, a growth strategy
// and an emptyQueueSleep duration and enters a loop in which
// it:
//   - pulls a task for the queue,
//   - branches its node out into new subnodes using BranchOut
//   - pushes the tasks for the new subnodes into the queue
//   - marks the task as completed on the queue
//
// If at some point no task can be pulled from the queue and
// the sum of tasks running and pending on the queue is 0, the
// worker ends returning nil. If no task can be pulled but the
// sum is not 0, then the worker will sleep for the given
// emptyQueueSleep duration and then retry.
//
// Work will return a non-nil error if the given context
// times out or is cancelled, if BranchOut returns a non-nil
// error or if an operation with the given queue returns a
// non-nil error.
func Work(ctx context.Context, t *tree.Tree, q queue.Queue, s *Strategy, emptyQueueSleep time.Duration) error {
	for {
		task, tctx, tcf, err := q.Pull(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			p, r, err := q.Count(ctx)
			if err != nil {
				return err
			}
			if r+p == 0 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(emptyQueueSleep):
			}
			continue
		}
		mctx, cancel := mergeCtxCancel(tctx, ctx)
		err = workTask(mctx, task, t, q, s)
		cancel()
		tcf()
		if err != nil {
			return err
		}
		err = ctx.Err()
		if err != nil {
			return err
		}
	}
	return nil
}

func workTask(ctx context.Context, task *queue.Task, t *tree.Tree, q queue.Queue, s *Strategy) error {
	defer func() {
		q.Drop(ctx, task.ID())
	}()
	tasks, err := BranchOut(ctx, task, t, s)
	if err != nil {
		return err
	}
	for _, st := range tasks {
		err = q.Push(ctx, st)
		if err != nil {
			return err
		}
	}
	return q.Complete(ctx, task.ID())
}

func mergeCtxCancel(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	mctx, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-mctx.Done():
		case <-ctx2.Done():
			cancel()
		}
	}()
	return mctx, cancel
}
