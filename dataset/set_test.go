package dataset

import (
	"context"
	"testing"

	"github.com/pbanos/stratify/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	age      = feature.NewContinuousFeature("age")
	sex      = feature.NewDiscreteFeature("sex", []string{"0", "1"})
	weight   = feature.NewContinuousFeature("weight")
	features = []feature.Feature{age, sex, weight}
)

func testSamples() []Sample {
	return []Sample{
		NewSample("c", map[string]interface{}{"age": 50.0, "sex": "1", "weight": 80.0}),
		NewSample("a", map[string]interface{}{"age": 20.0, "sex": "0", "weight": 60.0}),
		NewSample("b", map[string]interface{}{"age": 30.0, "sex": "1", "weight": 70.0}),
		NewSample("a", map[string]interface{}{"age": 22.0, "sex": "0", "weight": 61.0}),
		NewSample("c", map[string]interface{}{"age": 52.0, "sex": "1", "weight": 82.0}),
		NewSample("b", map[string]interface{}{"age": 30.0, "sex": nil, "weight": 71.0}),
	}
}

func constructors() map[string]func([]feature.Feature, []Sample) Dataset {
	return map[string]func([]feature.Feature, []Sample) Dataset{
		"memory intensive": NewMemoryIntensive,
		"cpu intensive":    NewCPUIntensive,
	}
}

func subjectIDs(t *testing.T, ds Dataset) []string {
	subjects, err := ds.Subjects(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, s := range subjects {
		ids = append(ids, s.ID())
	}
	return ids
}

func TestGroupSubjects(t *testing.T) {
	subjects := GroupSubjects(testSamples())
	require.Len(t, subjects, 3)
	assert.Equal(t, "a", subjects[0].ID())
	assert.Len(t, subjects[0].Samples(), 2)
	assert.Equal(t, "c", subjects[2].ID())
}

func TestSubjectValueFor(t *testing.T) {
	ctx := context.Background()
	subjects := GroupSubjects(testSamples())

	v, err := subjects[0].ValueFor(ctx, age)
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)

	v, err = subjects[1].ValueFor(ctx, sex)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	undefined := NewSubject("x", []Sample{NewSample("x", map[string]interface{}{})})
	v, err = undefined.ValueFor(ctx, age)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSubjectValueForInconsistentDiscreteValues(t *testing.T) {
	s := NewSubject("x", []Sample{
		NewSample("x", map[string]interface{}{"sex": "0"}),
		NewSample("x", map[string]interface{}{"sex": "1"}),
	})
	_, err := s.ValueFor(context.Background(), sex)
	require.Error(t, err)
	assert.IsType(t, InconsistentValueError(""), err)
}

func TestSubsetWithKeepsSubjectsWhole(t *testing.T) {
	ctx := context.Background()
	for name, constructor := range constructors() {
		t.Run(name, func(t *testing.T) {
			ds := constructor(features, testSamples())
			count, err := ds.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 6, count)

			left, err := ds.SubsetWith(ctx, feature.LessOrEqualThan(age, 30.5))
			require.NoError(t, err)
			right, err := ds.SubsetWith(ctx, feature.GreaterThan(age, 30.5))
			require.NoError(t, err)

			assert.Equal(t, []string{"a", "b"}, subjectIDs(t, left))
			assert.Equal(t, []string{"c"}, subjectIDs(t, right))
			count, err = left.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, count)
			subjectCount, err := right.CountSubjects(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, subjectCount)

			samples, err := left.Samples(ctx)
			require.NoError(t, err)
			require.Len(t, samples, 4)
			assert.Equal(t, "a", samples[0].SubjectID())
			assert.Equal(t, "b", samples[3].SubjectID())

			criteria, err := left.Criteria(ctx)
			require.NoError(t, err)
			require.Len(t, criteria, 1)

			nested, err := left.SubsetWith(ctx, feature.InSet(sex, "1"))
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, subjectIDs(t, nested))
			criteria, err = nested.Criteria(ctx)
			require.NoError(t, err)
			require.Len(t, criteria, 2)
			assert.Equal(t, feature.In, criteria[0].Operator())
		})
	}
}

func TestFeatureValues(t *testing.T) {
	ctx := context.Background()
	for name, constructor := range constructors() {
		t.Run(name, func(t *testing.T) {
			ds := constructor(features, testSamples())
			values, err := ds.FeatureValues(ctx, age)
			require.NoError(t, err)
			assert.Equal(t, []interface{}{21.0, 30.0, 51.0}, values)
			values, err = ds.FeatureValues(ctx, sex)
			require.NoError(t, err)
			assert.Equal(t, []interface{}{"0", "1"}, values)
		})
	}
}

type sliceReader []Sample

func (sr sliceReader) Read(ctx context.Context) (<-chan Sample, <-chan error) {
	samples := make(chan Sample)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(samples)
		for _, s := range sr {
			samples <- s
		}
	}()
	return samples, errs
}

func TestLoad(t *testing.T) {
	ds, err := Load(context.Background(), features, sliceReader(testSamples()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, subjectIDs(t, ds))
	assert.Equal(t, features, ds.Features())
}
