package redisq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pbanos/stratify/queue"
	"github.com/pbanos/stratify/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redis "gopkg.in/redis.v5"
)

type nodeIDEncodeDecoder struct{}

func (nodeIDEncodeDecoder) Encode(_ context.Context, t *queue.Task) ([]byte, error) {
	if t.ID() == "bad" {
		return nil, errors.New("cannot encode")
	}
	return []byte(t.ID()), nil
}

func (nodeIDEncodeDecoder) Decode(_ context.Context, data []byte) (*queue.Task, error) {
	if string(data) == "undecodable" {
		return nil, errors.New("cannot decode")
	}
	return &queue.Task{Node: &tree.Node{ID: string(data)}}, nil
}

func task(id string) *queue.Task {
	return &queue.Task{Node: &tree.Node{ID: id}}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return mr, rc
}

func count(t *testing.T, q queue.Queue) (int, int) {
	pending, running, err := q.Count(context.Background())
	require.NoError(t, err)
	return pending, running
}

func TestPullIsFIFO(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	defer q.Stop(ctx)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(ctx, task(fmt.Sprintf("1.%d", i))))
	}
	pending, running := count(t, q)
	assert.Equal(t, 3, pending)
	assert.Equal(t, 0, running)

	for i := 1; i <= 3; i++ {
		tk, tctx, cancel, err := q.Pull(ctx)
		require.NoError(t, err)
		require.NotNil(t, tk)
		assert.Equal(t, fmt.Sprintf("1.%d", i), tk.ID())
		assert.NoError(t, tctx.Err())
		cancel()
	}
	pending, running = count(t, q)
	assert.Equal(t, 0, pending)
	assert.Equal(t, 3, running)

	tk, tctx, cancel, err := q.Pull(ctx)
	require.NoError(t, err)
	assert.Nil(t, tk)
	assert.Nil(t, tctx)
	assert.Nil(t, cancel)
}

func TestPushRejectsQueuedNode(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	require.NoError(t, q.Push(ctx, task("1")))
	assert.Error(t, q.Push(ctx, task("1")))
	assert.Error(t, q.Push(ctx, task("bad")))
	pending, _ := count(t, q)
	assert.Equal(t, 1, pending)
}

func TestDropRequeuesAtTheEnd(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	require.NoError(t, q.Push(ctx, task("1.1")))
	require.NoError(t, q.Push(ctx, task("1.2")))
	tk, _, cancel, err := q.Pull(ctx)
	require.NoError(t, err)
	cancel()
	assert.Equal(t, "1.1", tk.ID())
	require.NoError(t, q.Drop(ctx, tk.ID()))
	pending, running := count(t, q)
	assert.Equal(t, 2, pending)
	assert.Equal(t, 0, running)

	tk, _, cancel, err = q.Pull(ctx)
	require.NoError(t, err)
	cancel()
	assert.Equal(t, "1.2", tk.ID())
}

func TestCompleteRemovesTask(t *testing.T) {
	ctx := context.Background()
	mr, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	require.NoError(t, q.Push(ctx, task("1")))
	tk, _, cancel, err := q.Pull(ctx)
	require.NoError(t, err)
	cancel()
	require.NoError(t, q.Complete(ctx, tk.ID()))
	// a completed task is not requeued
	require.NoError(t, q.Drop(ctx, tk.ID()))
	pending, running := count(t, q)
	assert.Zero(t, pending+running)
	require.NoError(t, queue.WaitFor(ctx, q))
	assert.False(t, mr.Exists("grow:tasks"))
	assert.False(t, mr.Exists("grow:leases"))
}

func TestExpiredLeaseIsRequeued(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	stalled := New("grow", rc, 20*time.Millisecond, nodeIDEncodeDecoder{})
	defer stalled.Stop(ctx)
	q := New("grow", rc, time.Minute, nodeIDEncodeDecoder{})
	defer q.Stop(ctx)
	require.NoError(t, q.Push(ctx, task("1")))

	tk, tctx, cancel, err := stalled.Pull(ctx)
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, "1", tk.ID())
	<-tctx.Done()
	assert.ErrorIs(t, tctx.Err(), context.DeadlineExceeded)

	tk, _, cancel2, err := q.Pull(ctx)
	require.NoError(t, err)
	defer cancel2()
	require.NotNil(t, tk)
	assert.Equal(t, "1", tk.ID())

	assert.ErrorIs(t, stalled.Complete(ctx, "1"), ErrLeaseLost)
	_, running := count(t, q)
	assert.Equal(t, 1, running)
	require.NoError(t, q.Complete(ctx, "1"))
	pending, running := count(t, q)
	assert.Zero(t, pending+running)
}

func TestPullDiscardsUndecodableTask(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	require.NoError(t, q.Push(ctx, task("undecodable")))
	_, _, _, err := q.Pull(ctx)
	assert.Error(t, err)
	pending, running := count(t, q)
	assert.Zero(t, pending+running)
}

func TestStopCancelsPulledTasks(t *testing.T) {
	ctx := context.Background()
	_, rc := newRedis(t)
	q := New("grow", rc, 0, nodeIDEncodeDecoder{})
	require.NoError(t, q.Push(ctx, task("1")))
	_, tctx, cancel, err := q.Pull(ctx)
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
	assert.Error(t, tctx.Err())
}

func TestKeys(t *testing.T) {
	rq := &redisQ{id: "grow"}
	assert.Equal(t, "grow:tasks", rq.tasksKey())
	assert.Equal(t, "grow:pending", rq.pendingKey())
	assert.Equal(t, "grow:running", rq.runningKey())
	assert.Equal(t, "grow:leases", rq.leasesKey())
	assert.Equal(t, "grow:seq", rq.seqKey())
}
