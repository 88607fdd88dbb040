package json

import (
	"context"
	"fmt"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	fjson "github.com/pbanos/stratify/feature/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ctx := context.Background()
	age := feature.NewContinuousFeature("age")
	sex := feature.NewDiscreteFeature("sex", []string{"0", "1"})
	features := []feature.Feature{age, sex}
	root := dataset.New(features, []dataset.Sample{
		dataset.NewSample("a", map[string]interface{}{"age": 20.0, "sex": "0"}),
		dataset.NewSample("b", map[string]interface{}{"age": 30.0, "sex": "1"}),
		dataset.NewSample("c", map[string]interface{}{"age": 50.0, "sex": "1"}),
	})
	ded := New(root, "file:///observations.csv", fjson.NewCriteriaEncodeDecoder(features))

	young, err := root.SubsetWith(ctx, feature.LessOrEqualThan(age, 40))
	require.NoError(t, err)
	youngMen, err := young.SubsetWith(ctx, feature.InSet(sex, "1"))
	require.NoError(t, err)

	data, err := ded.Encode(ctx, youngMen)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uri":"file:///observations.csv","criteria":[{"f":"age","op":"<=","t":"40"},{"f":"sex","op":"in","vs":["1"]}]}`, string(data))

	decoded, err := ded.Decode(ctx, data)
	require.NoError(t, err)
	subjects, err := decoded.Subjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "b", subjects[0].ID())

	_, err = New(root, "other", fjson.NewCriteriaEncodeDecoder(features)).Decode(ctx, data)
	assert.Error(t, err)
}

// recordingReader serves the subjects of a dataset satisfying the criteria it
// is asked for, recording them
type recordingReader struct {
	ds       dataset.Dataset
	criteria [][]feature.Criterion
}

func (rr *recordingReader) ReadSubset(ctx context.Context, criteria ...feature.Criterion) (<-chan dataset.Sample, <-chan error) {
	rr.criteria = append(rr.criteria, criteria)
	samples := make(chan dataset.Sample)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(samples)
		ds := rr.ds
		for _, c := range criteria {
			var err error
			ds, err = ds.SubsetWith(ctx, c)
			if err != nil {
				errs <- err
				return
			}
		}
		all, err := ds.Samples(ctx)
		if err != nil {
			errs <- err
			return
		}
		for _, s := range all {
			samples <- s
		}
	}()
	return samples, errs
}

func TestSubsetReadingDecode(t *testing.T) {
	ctx := context.Background()
	age := feature.NewContinuousFeature("age")
	sex := feature.NewDiscreteFeature("sex", []string{"0", "1"})
	features := []feature.Feature{age, sex}
	root := dataset.New(features, []dataset.Sample{
		dataset.NewSample("a", map[string]interface{}{"age": 20.0, "sex": "0"}),
		dataset.NewSample("b", map[string]interface{}{"age": 30.0, "sex": "1"}),
		dataset.NewSample("b", map[string]interface{}{"age": 44.0, "sex": "1"}),
		dataset.NewSample("c", map[string]interface{}{"age": 50.0, "sex": "1"}),
	})
	ced := fjson.NewCriteriaEncodeDecoder(features)
	rr := &recordingReader{ds: root}
	ded := NewSubsetReading(rr, features, "sqlite3://observations.db", ced)

	young, err := root.SubsetWith(ctx, feature.LessOrEqualThan(age, 40))
	require.NoError(t, err)
	youngMen, err := young.SubsetWith(ctx, feature.InSet(sex, "1"))
	require.NoError(t, err)
	data, err := New(root, "sqlite3://observations.db", ced).Encode(ctx, youngMen)
	require.NoError(t, err)

	decoded, err := ded.Decode(ctx, data)
	require.NoError(t, err)
	require.Len(t, rr.criteria, 1)
	require.Len(t, rr.criteria[0], 2)
	assert.Equal(t, "age <= 40", fmt.Sprint(rr.criteria[0][0]))
	subjects, err := decoded.Subjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "b", subjects[0].ID())
	rows, err := decoded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	reencoded, err := ded.Encode(ctx, decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(reencoded))
}
