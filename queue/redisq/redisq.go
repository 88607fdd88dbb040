/*
Package redisq provides a queue.Queue backed by a redis database, so that
workers on several processes can grow a tree together.
*/
package redisq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbanos/stratify/queue"
	redis "gopkg.in/redis.v5"
)

/*
EncodeDecoder is an interface for objects
that allow encoding tasks as slices of bytes and decoding
them back to tasks. It is used to serialize tasks into a
representation to store on redis
*/
type EncodeDecoder interface {
	Encode(context.Context, *queue.Task) ([]byte, error)
	Decode(context.Context, []byte) (*queue.Task, error)
}

/*
ErrLeaseLost is returned when completing a task whose lease expired: the
task was requeued for another worker to develop its node.
*/
var ErrLeaseLost = errors.New("task lease lost")

// score of the running tasks that never expire
const noDeadline = 1 << 53

// KEYS: tasks, pending, seq. ARGV: node id, data
var pushScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[2], tostring(redis.call("INCR", KEYS[3])), ARGV[1])
return 1
`)

// KEYS: pending, running, tasks, leases, seq. ARGV: now, deadline, lease
var pullScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for _, id in ipairs(expired) do
	redis.call("ZREM", KEYS[2], id)
	redis.call("HDEL", KEYS[4], id)
	redis.call("ZADD", KEYS[1], tostring(redis.call("INCR", KEYS[5])), id)
end
local ids = redis.call("ZRANGE", KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call("ZREM", KEYS[1], id)
redis.call("ZADD", KEYS[2], ARGV[2], id)
redis.call("HSET", KEYS[4], id, ARGV[3])
local data = redis.call("HGET", KEYS[3], id)
if not data then
	return {id}
end
return {id, data}
`)

// KEYS: running, pending, leases, seq. ARGV: node id, lease
var dropScript = redis.NewScript(`
if redis.call("HGET", KEYS[3], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call("HDEL", KEYS[3], ARGV[1])
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("ZADD", KEYS[2], tostring(redis.call("INCR", KEYS[4])), ARGV[1])
return 1
`)

// KEYS: running, tasks, leases. ARGV: node id, lease
var completeScript = redis.NewScript(`
if redis.call("HGET", KEYS[3], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call("HDEL", KEYS[3], ARGV[1])
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
return 1
`)

// KEYS: pending, running
var countScript = redis.NewScript(`
return {redis.call("ZCARD", KEYS[1]), redis.call("ZCARD", KEYS[2])}
`)

type redisQ struct {
	id         string
	rc         *redis.Client
	taskMaxRun time.Duration
	allTaskCtx context.Context
	allTaskCF  context.CancelFunc
	lock       sync.Mutex
	leases     map[string]string
	EncodeDecoder
}

/*
New returns a queue.Queue that uses the given redis client as a
backend. Tasks are identified by the ID of the node they develop and
are encoded and decoded using the given EncodeDecoder. The given id
prefixes the keys used on redis to keep the queue's data, which are the
following:
  - id:tasks is a hash from node IDs to encoded tasks
  - id:pending is a sorted set with the node IDs of the pending tasks,
    scored by their position in the queue
  - id:running is a sorted set with the node IDs of the running tasks,
    scored by the unix time in milliseconds when their lease expires
  - id:leases is a hash from the node IDs of the running tasks to the
    lease of the worker that pulled them
  - id:seq is the counter that positions tasks in the queue

Every pull leases the task for the given taskMaxRun duration. Pulls
requeue the running tasks whose lease has expired, so that the nodes of a
worker that stopped are developed by another one. A zero taskMaxRun
makes leases never expire.

All operations on the keys run as redis scripts, so several queues on the
same id can be used at the same time by different processes. The returned
queue is secure for concurrent use by multiple goroutines.
*/
func New(id string, rc *redis.Client, taskMaxRun time.Duration, encDec EncodeDecoder) queue.Queue {
	ctx, cf := context.WithCancel(context.Background())
	return &redisQ{
		id:            id,
		rc:            rc,
		taskMaxRun:    taskMaxRun,
		allTaskCtx:    ctx,
		allTaskCF:     cf,
		leases:        make(map[string]string),
		EncodeDecoder: encDec,
	}
}

func (rq *redisQ) Push(ctx context.Context, t *queue.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := rq.Encode(ctx, t)
	if err != nil {
		return fmt.Errorf("pushing task %s to queue %s: %w", t.ID(), rq.id, err)
	}
	res, err := pushScript.Run(rq.rc, []string{rq.tasksKey(), rq.pendingKey(), rq.seqKey()}, t.ID(), string(data)).Result()
	if err != nil {
		return fmt.Errorf("pushing task %s to queue %s: %w", t.ID(), rq.id, err)
	}
	if res != int64(1) {
		return fmt.Errorf("pushing task %s to queue %s: node already queued", t.ID(), rq.id)
	}
	return nil
}

func (rq *redisQ) Pull(ctx context.Context) (*queue.Task, context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	now := time.Now()
	deadline := int64(noDeadline)
	if rq.taskMaxRun > 0 {
		deadline = now.Add(rq.taskMaxRun).UnixMilli()
	}
	lease := uuid.NewString()
	keys := []string{rq.pendingKey(), rq.runningKey(), rq.tasksKey(), rq.leasesKey(), rq.seqKey()}
	res, err := pullScript.Run(rq.rc, keys, strconv.FormatInt(now.UnixMilli(), 10), strconv.FormatInt(deadline, 10), lease).Result()
	if err == redis.Nil {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pulling task from queue %s: %w", rq.id, err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) == 0 {
		return nil, nil, nil, fmt.Errorf("pulling task from queue %s: unexpected reply %v", rq.id, res)
	}
	id, _ := values[0].(string)
	rq.lock.Lock()
	rq.leases[id] = lease
	rq.lock.Unlock()
	if len(values) < 2 {
		rq.Complete(ctx, id)
		return nil, nil, nil, fmt.Errorf("pulling task %s from queue %s: task data missing", id, rq.id)
	}
	data, _ := values[1].(string)
	t, err := rq.Decode(ctx, []byte(data))
	if err != nil {
		rq.Complete(ctx, id)
		return nil, nil, nil, fmt.Errorf("pulling task %s from queue %s: %w", id, rq.id, err)
	}
	if rq.taskMaxRun == 0 {
		tctx, tcf := context.WithCancel(rq.allTaskCtx)
		return t, tctx, tcf, nil
	}
	tctx, tcf := context.WithDeadline(rq.allTaskCtx, now.Add(rq.taskMaxRun))
	return t, tctx, tcf, nil
}

// Drop requeues a task pulled by this queue, unless it was completed or
// its lease expired.
func (rq *redisQ) Drop(ctx context.Context, id string) error {
	lease, ok := rq.release(id)
	if !ok {
		return nil
	}
	_, err := dropScript.Run(rq.rc, []string{rq.runningKey(), rq.pendingKey(), rq.leasesKey(), rq.seqKey()}, id, lease).Result()
	if err != nil {
		return fmt.Errorf("dropping task %s on queue %s: %w", id, rq.id, err)
	}
	return nil
}

// Complete removes a task pulled by this queue. It returns ErrLeaseLost
// if the lease of the task expired before.
func (rq *redisQ) Complete(ctx context.Context, id string) error {
	lease, ok := rq.release(id)
	if !ok {
		return nil
	}
	res, err := completeScript.Run(rq.rc, []string{rq.runningKey(), rq.tasksKey(), rq.leasesKey()}, id, lease).Result()
	if err != nil {
		return fmt.Errorf("completing task %s on queue %s: %w", id, rq.id, err)
	}
	if res != int64(1) {
		return fmt.Errorf("completing task %s on queue %s: %w", id, rq.id, ErrLeaseLost)
	}
	return nil
}

func (rq *redisQ) Count(ctx context.Context) (int, int, error) {
	// both sets are counted by a single script so that a task moving
	// between them is never missed
	res, err := countScript.Run(rq.rc, []string{rq.pendingKey(), rq.runningKey()}).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("counting tasks on queue %s: %w", rq.id, err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("counting tasks on queue %s: unexpected reply %v", rq.id, res)
	}
	pending, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("counting tasks on queue %s: pending count %v (%T) is not an integer", rq.id, values[0], values[0])
	}
	running, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("counting tasks on queue %s: running count %v (%T) is not an integer", rq.id, values[1], values[1])
	}
	return int(pending), int(running), nil
}

// Stop cancels the contexts of the tasks pulled by this queue. Their
// leases are kept, so they expire or are released by Drop and Complete.
func (rq *redisQ) Stop(context.Context) error {
	rq.allTaskCF()
	return nil
}

func (rq *redisQ) release(id string) (string, bool) {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	lease, ok := rq.leases[id]
	delete(rq.leases, id)
	return lease, ok
}

func (rq *redisQ) tasksKey() string {
	return rq.id + ":tasks"
}

func (rq *redisQ) pendingKey() string {
	return rq.id + ":pending"
}

func (rq *redisQ) runningKey() string {
	return rq.id + ":running"
}

func (rq *redisQ) leasesKey() string {
	return rq.id + ":leases"
}

func (rq *redisQ) seqKey() string {
	return rq.id + ":seq"
}
