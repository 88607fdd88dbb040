/*
Package json provides the JSON encoding of growth tasks, used to keep them
on a redis queue.
*/
package json

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/queue"
	"github.com/pbanos/stratify/tree"
)

/*
TaskEncodeDecoder is an interface for objects
that allow encoding tasks as slices of bytes and decoding
them back to tasks. It is used to serialize tasks into a
representation to store on redis.
*/
type TaskEncodeDecoder interface {

	//Encode receives a *queue.Task
	// and returns a slice of bytes with the task encoded or an
	//error if the encoding could not be performed for
	//some reason.
	Encode(context.Context, *queue.Task) ([]byte, error)

	//Decode receives a slice of bytes
	//and returns a *queue.Task decoded from the slice of bytes
	//or an error if the decoding could not be performed
	//for some reason.
	Decode(context.Context, []byte) (*queue.Task, error)
}

/*
DatasetEncodeDecoder is an interface for objects
that allow encoding datasets into slices of
bytes and decoding them back to datasets.
*/
type DatasetEncodeDecoder interface {
	Encode(context.Context, dataset.Dataset) ([]byte, error)
	Decode(context.Context, []byte) (dataset.Dataset, error)
}

type jsonEncodeDecoder struct {
	ded DatasetEncodeDecoder
	ns  tree.NodeStore
}

type jsonTask struct {
	NodeID  string          `json:"id"`
	Dataset json.RawMessage `json:"ds"`
}

/*
New takes a DatasetEncodeDecoder and the NodeStore of the tree being grown
and returns a TaskEncodeDecoder that encodes tasks as the ID of their node
and their encoded dataset. Decoding retrieves the node from the NodeStore.
*/
func New(ded DatasetEncodeDecoder, ns tree.NodeStore) TaskEncodeDecoder {
	return &jsonEncodeDecoder{ded, ns}
}

func (jed *jsonEncodeDecoder) Encode(ctx context.Context, t *queue.Task) ([]byte, error) {
	jt := &jsonTask{NodeID: t.ID()}
	denc, err := jed.ded.Encode(ctx, t.Dataset)
	if err != nil {
		return nil, fmt.Errorf("encoding task as json: %w", err)
	}
	jt.Dataset = denc
	return json.Marshal(jt)
}

func (jed *jsonEncodeDecoder) Decode(ctx context.Context, data []byte) (*queue.Task, error) {
	jt := &jsonTask{}
	err := json.Unmarshal(data, jt)
	if err != nil {
		return nil, fmt.Errorf("decoding task from json: %w", err)
	}
	t := &queue.Task{}
	t.Node, err = jed.ns.Get(ctx, jt.NodeID)
	if err != nil {
		return nil, fmt.Errorf("decoding json task: getting task node: %w", err)
	}
	if t.Node == nil {
		return nil, fmt.Errorf("decoding json task: could not get node %q from node store", jt.NodeID)
	}
	t.Dataset, err = jed.ded.Decode(ctx, jt.Dataset)
	if err != nil {
		return nil, fmt.Errorf("decoding json task: decoding task dataset: %w", err)
	}
	return t, nil
}
