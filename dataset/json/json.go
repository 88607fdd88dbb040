/*
Package json provides the JSON encoding of datasets as the URI of their root
dataset and the chain of criteria applied on it, used to pass datasets
between processes growing a tree together.
*/
package json

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

/*
DatasetEncodeDecoder is an interface for objects
that allow encoding datasets into slices of
bytes and decoding them back to datasets.
*/
type DatasetEncodeDecoder interface {

	//Encode receives a dataset.Dataset
	// and returns a slice of bytes with the dataset
	//encoded or an error if the encoding could not
	//be performed for some reason.
	Encode(context.Context, dataset.Dataset) ([]byte, error)

	//Decode receives a slice of bytes
	//and returns a dataset.Dataset decoded from the
	//slice of bytes or an error if the decoding
	//could not be performed for some reason.
	Decode(context.Context, []byte) (dataset.Dataset, error)
}

/*
CriteriaEncodeDecoder is an interface for objects
that allow encoding criteria into slices of
bytes and decoding them back to criteria.
*/
type CriteriaEncodeDecoder interface {
	Encode(feature.Criterion) ([]byte, error)
	Decode([]byte) (feature.Criterion, error)
}

// subsetter returns the subset of the root dataset obtained applying the
// criteria in order
type subsetter func(context.Context, []feature.Criterion) (dataset.Dataset, error)

type jsonEncodeDecoder struct {
	ced            CriteriaEncodeDecoder
	subset         subsetter
	rootDatasetURI string
}

type jsonDataset struct {
	URI      string            `json:"uri"`
	Criteria []json.RawMessage `json:"criteria"`
}

/*
New takes a dataset, an URI for it and a CriteriaEncodeDecoder and returns
a DatasetEncodeDecoder that encodes/decodes datasets as JSON objects, representing them
as the given URI with the criteria encoded using the given CriteriaEncodeDecoder.
Criteria are encoded in the order they were applied, so decoding subsets the
root dataset in that same order.
*/
func New(rootDataset dataset.Dataset, rootDatasetURI string, ced CriteriaEncodeDecoder) DatasetEncodeDecoder {
	subset := func(ctx context.Context, criteria []feature.Criterion) (dataset.Dataset, error) {
		ds := rootDataset
		for _, c := range criteria {
			var err error
			ds, err = ds.SubsetWith(ctx, c)
			if err != nil {
				return nil, fmt.Errorf("applying criteria %v: %w", c, err)
			}
		}
		return ds, nil
	}
	return &jsonEncodeDecoder{
		ced:            ced,
		subset:         subset,
		rootDatasetURI: rootDatasetURI,
	}
}

/*
NewSubsetReading works like New, but decoded datasets are loaded with the
given features from the given SubsetReader, with their criteria pushed down
to it, instead of subsetting a dataset in memory. Use it to develop nodes
reading only their subjects from a database.
*/
func NewSubsetReading(r dataset.SubsetReader, features []feature.Feature, rootDatasetURI string, ced CriteriaEncodeDecoder) DatasetEncodeDecoder {
	subset := func(ctx context.Context, criteria []feature.Criterion) (dataset.Dataset, error) {
		return dataset.LoadSubset(ctx, features, r, criteria)
	}
	return &jsonEncodeDecoder{
		ced:            ced,
		subset:         subset,
		rootDatasetURI: rootDatasetURI,
	}
}

func (jed *jsonEncodeDecoder) Encode(ctx context.Context, ds dataset.Dataset) ([]byte, error) {
	cs, err := ds.Criteria(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining dataset criteria: %w", err)
	}
	criteria := make([]json.RawMessage, 0, len(cs))
	for i := len(cs) - 1; i >= 0; i-- {
		ec, err := jed.ced.Encode(cs[i])
		if err != nil {
			return nil, fmt.Errorf("encoding criterion %v: %w", cs[i], err)
		}
		criteria = append(criteria, ec)
	}
	res := &jsonDataset{
		URI:      jed.rootDatasetURI,
		Criteria: criteria,
	}
	return json.Marshal(res)
}

func (jed *jsonEncodeDecoder) Decode(ctx context.Context, data []byte) (dataset.Dataset, error) {
	jds := &jsonDataset{}
	err := json.Unmarshal(data, jds)
	if err != nil {
		return nil, err
	}
	if jds.URI != jed.rootDatasetURI {
		return nil, fmt.Errorf("decoded dataset does not have the right root dataset URI: found %q, expected %q", jds.URI, jed.rootDatasetURI)
	}
	criteria := make([]feature.Criterion, 0, len(jds.Criteria))
	for _, ec := range jds.Criteria {
		c, err := jed.ced.Decode(ec)
		if err != nil {
			return nil, fmt.Errorf("decoding dataset criteria: %w", err)
		}
		criteria = append(criteria, c)
	}
	ds, err := jed.subset(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	return ds, nil
}
