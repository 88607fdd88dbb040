package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Queue keeps the tasks to develop the nodes of a tree
// while it is grown. Workers Pull a task, develop its
// node, Push the tasks for the children of the node and
// then Complete the task, or Drop it to have it developed
// again if they fail halfway.
//
// Tasks are identified by the ID of their node, so a node
// is queued at most once.
type Queue interface {
	// Push takes a task and stores it in the queue as
	// pending or returns an error, also when the node of
	// the task is already queued.
	Push(context.Context, *Task) error
	// Pull returns the pending task that was pushed first,
	// a context for its development and the function to
	// release it, or an error. The pulled task counts as
	// running from then on.
	// If there are no pending tasks, it returns 4 nil
	// values. In case of cancellation of the returned
	// context, workers should still drop the task.
	Pull(context.Context) (*Task, context.Context, context.CancelFunc, error)
	// Drop takes the ID of a running task and makes it
	// pending again. Dropping a task that is not running
	// is a no-op.
	Drop(context.Context, string) error
	// Complete takes the ID of a running task and removes
	// it from the queue.
	Complete(context.Context, string) error
	// Count returns the number of pending and running
	// tasks in the queue or an error. Growth is over when
	// both are 0.
	Count(context.Context) (pending int, running int, err error)
	// Stop cancels the contexts of the pulled tasks and
	// frees the resources of the queue.
	Stop(context.Context) error
}

type memQueue struct {
	lock    sync.Mutex
	pending []*Task
	queued  map[string]bool
	running map[string]*Task
	ctx     context.Context
	stop    context.CancelFunc
}

const waitForPollInterval = 100 * time.Millisecond

// New returns a queue backed only by the process memory
func New() Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &memQueue{
		queued:  make(map[string]bool),
		running: make(map[string]*Task),
		ctx:     ctx,
		stop:    cancel,
	}
}

// WaitFor takes a context and a queue and waits until
// the queue has no pending or running tasks, that is,
// until the tree being grown through it is complete.
// It returns a non-nil error if the given context times
// out or is cancelled, or if the queue's Count operation
// returns an error.
func WaitFor(ctx context.Context, q Queue) error {
	ticker := time.NewTicker(waitForPollInterval)
	defer ticker.Stop()
	for {
		pending, running, err := q.Count(ctx)
		if err != nil {
			return err
		}
		if pending+running == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (mq *memQueue) Push(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if mq.queued[t.ID()] {
		return fmt.Errorf("pushing task %s: node already queued", t.ID())
	}
	mq.queued[t.ID()] = true
	mq.pending = append(mq.pending, t)
	return nil
}

func (mq *memQueue) Pull(ctx context.Context) (*Task, context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if len(mq.pending) == 0 {
		return nil, nil, nil, nil
	}
	t := mq.pending[0]
	mq.pending[0] = nil
	mq.pending = mq.pending[1:]
	mq.running[t.ID()] = t
	tctx, cancel := context.WithCancel(mq.ctx)
	return t, tctx, cancel, nil
}

func (mq *memQueue) Drop(ctx context.Context, id string) error {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	t, ok := mq.running[id]
	if !ok {
		return nil
	}
	delete(mq.running, id)
	mq.pending = append(mq.pending, t)
	return nil
}

func (mq *memQueue) Complete(ctx context.Context, id string) error {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	if _, ok := mq.running[id]; ok {
		delete(mq.running, id)
		delete(mq.queued, id)
	}
	return nil
}

func (mq *memQueue) Count(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	mq.lock.Lock()
	defer mq.lock.Unlock()
	return len(mq.pending), len(mq.running), nil
}

func (mq *memQueue) Stop(ctx context.Context) error {
	mq.stop()
	return nil
}

func (mq *memQueue) String() string {
	mq.lock.Lock()
	defer mq.lock.Unlock()
	return fmt.Sprintf("{Queue pending: %v running: %d}", mq.pending, len(mq.running))
}
