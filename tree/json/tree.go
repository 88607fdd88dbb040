/*
Package json provides the streaming JSON encoding of trees, the dump of
their node arena.
*/
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
)

type jsonTreeHeader struct {
	RootID     string             `json:"rootID"`
	Covariates []string           `json:"covariates"`
	Features   []string           `json:"features"`
	Nodes      []*json.RawMessage `json:"nodes"`
}

/*
WriteJSONTree takes a context.Context, a pointer to a tree.Tree
a NodeEncodeDecoder and an io.Writer and serializes the given tree
as JSON onto the io.Writer.
A tree is serialized as a JSON object with the following fields:
* "rootID": a string with the ID of the node at the root of the tree
* "covariates": an array with the names of the covariates the tree splits on
* "features": an array with the names of the features whose IOI the tree minimizes
* "nodes": an array containing the nodes that can be traversed on the tree
  serialized by the given NodeEncodeDecoder.
An error is returned if the tree cannot be traversed, serialized or written
onto the io.Writer.
*/
func WriteJSONTree(ctx context.Context, t *tree.Tree, ned NodeEncodeDecoder, w io.Writer) error {
	err := marshalJSONTreeHeader(t, w)
	if err != nil {
		return err
	}
	var i int
	err = t.Traverse(ctx, false, func(ctx context.Context, n *tree.Node) error {
		err := writeNode(i, n, ned, w)
		i++
		return err
	})
	if err != nil {
		return err
	}
	return marshalJSONTreeFooter(w)
}

/*
ReadJSONTree takes a context.Context, a pointer to a tree.Tree, a
NodeEncodeDecoder, the available features and an io.Reader and unmarshals
the contents of the io.Reader onto the given tree, storing its nodes on the
tree's NodeStore.
A tree is expected to be a JSON object with the fields WriteJSONTree writes.
An error is returned if the JSON cannot be read from the io.Reader, refers to
unknown features or cannot be unmarshalled onto the tree.
*/
func ReadJSONTree(ctx context.Context, t *tree.Tree, ned NodeEncodeDecoder, features []feature.Feature, r io.Reader) error {
	dec := json.NewDecoder(r)
	jt := &jsonTreeHeader{}
	err := dec.Decode(jt)
	if err != nil {
		return err
	}
	if jt.RootID == "" {
		return fmt.Errorf("no root node id available")
	}
	t.Covariates, err = lookupFeatures(features, jt.Covariates)
	if err != nil {
		return fmt.Errorf("reading tree covariates: %w", err)
	}
	t.Features, err = lookupFeatures(features, jt.Features)
	if err != nil {
		return fmt.Errorf("reading tree features: %w", err)
	}
	t.RootID = jt.RootID
	for _, jn := range jt.Nodes {
		if jn == nil {
			return fmt.Errorf("reading tree: null node")
		}
		n, err := ned.Decode(*jn)
		if err != nil {
			return err
		}
		err = t.NodeStore.Store(ctx, n)
		if err != nil {
			return err
		}
	}
	return nil
}

func lookupFeatures(features []feature.Feature, names []string) ([]feature.Feature, error) {
	result := make([]feature.Feature, 0, len(names))
	for _, name := range names {
		f := feature.Lookup(features, name)
		if f == nil {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		result = append(result, f)
	}
	return result, nil
}

func featureNames(features []feature.Feature) []string {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name())
	}
	return names
}

func marshalJSONTreeHeader(t *tree.Tree, w io.Writer) error {
	jrootID, err := json.Marshal(t.RootID)
	if err != nil {
		return err
	}
	jCovariates, err := json.Marshal(featureNames(t.Covariates))
	if err != nil {
		return err
	}
	jFeatures, err := json.Marshal(featureNames(t.Features))
	if err != nil {
		return err
	}
	header := fmt.Sprintf(`{"rootID":%s,"covariates":%s,"features":%s,"nodes":[`, jrootID, jCovariates, jFeatures)
	_, err = w.Write([]byte(header))
	return err
}

func writeNode(i int, n *tree.Node, ned NodeEncodeDecoder, w io.Writer) error {
	if i != 0 {
		_, err := w.Write([]byte(","))
		if err != nil {
			return err
		}
	}
	jn, err := ned.Encode(n)
	if err != nil {
		return err
	}
	_, err = w.Write(jn)
	return err
}

func marshalJSONTreeFooter(w io.Writer) error {
	_, err := w.Write([]byte(`]}`))
	return err
}
