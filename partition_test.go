package stratify

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colour = feature.NewDiscreteFeature("colour", nil)

func candidateStrings(cs []Candidate) []string {
	result := make([]string, 0, len(cs))
	for _, c := range cs {
		result = append(result, c.String())
	}
	return result
}

func subjectsDataset(values map[string]map[string]interface{}) dataset.Dataset {
	var samples []dataset.Sample
	for id, v := range values {
		samples = append(samples, dataset.NewSample(id, v), dataset.NewSample(id, v))
	}
	return dataset.New([]feature.Feature{age, colour}, samples)
}

func TestContinuousCandidates(t *testing.T) {
	ds := subjectsDataset(map[string]map[string]interface{}{
		"a": {"age": 35.0},
		"b": {"age": 30.0},
		"c": {"age": 32.0},
		"d": {"age": 30.0},
	})
	cs, err := Candidates(context.Background(), ds, age, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"age <= 31 | age > 31",
		"age <= 33.5 | age > 33.5",
	}, candidateStrings(cs))
}

func TestDiscreteCandidates(t *testing.T) {
	ds := subjectsDataset(map[string]map[string]interface{}{
		"a": {"colour": "red"},
		"b": {"colour": "blue"},
		"c": {"colour": "green"},
	})
	ctx := context.Background()

	cs, err := Candidates(ctx, ds, colour, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"colour in {blue} | colour not in {blue}",
		"colour in {green} | colour not in {green}",
		"colour in {red} | colour not in {red}",
	}, candidateStrings(cs))

	cs, err = Candidates(ctx, ds, colour, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"colour in {blue} | colour not in {blue}",
		"colour in {blue, green} | colour not in {blue, green}",
		"colour in {blue, red} | colour not in {blue, red}",
	}, candidateStrings(cs))
}

func TestDiscreteCandidatesSkipMirror(t *testing.T) {
	ds := subjectsDataset(map[string]map[string]interface{}{
		"a": {"colour": "red"},
		"b": {"colour": "blue"},
	})
	cs, err := Candidates(context.Background(), ds, colour, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"colour in {blue} | colour not in {blue}"}, candidateStrings(cs))
}

func TestExhaustiveCandidatesCount(t *testing.T) {
	values := make(map[string]map[string]interface{})
	for i := 0; i < 5; i++ {
		values[fmt.Sprintf("s%d", i)] = map[string]interface{}{"colour": fmt.Sprintf("c%d", i)}
	}
	ds := subjectsDataset(values)
	cs, err := Candidates(context.Background(), ds, colour, MaxExhaustiveCategories)
	require.NoError(t, err)
	assert.Len(t, cs, 15)
	cs, err = Candidates(context.Background(), ds, colour, 4)
	require.NoError(t, err)
	assert.Len(t, cs, 5)
}

func TestNoCandidatesOnSingleValue(t *testing.T) {
	ds := subjectsDataset(map[string]map[string]interface{}{
		"a": {"age": 30.0, "colour": "red"},
		"b": {"age": 30.0, "colour": "red"},
	})
	for _, f := range []feature.Feature{age, colour} {
		cs, err := Candidates(context.Background(), ds, f, MaxExhaustiveCategories)
		require.NoError(t, err)
		assert.Empty(t, cs)
	}
}

func TestWeightedObjective(t *testing.T) {
	left := &tree.Node{Subjects: 10, IOI: 0.5}
	right := &tree.Node{Subjects: 30, IOI: 1}
	assert.InDelta(t, 0.875, weightedObjective(left, right), 1e-12)
	right.IOI = math.Inf(1)
	assert.True(t, math.IsInf(weightedObjective(left, right), 1))
}

func TestMinimumImprovementPruner(t *testing.T) {
	ctx := context.Background()
	n := &tree.Node{IOI: 1}
	testCases := []struct {
		minimum     float64
		improvement float64
		prune       bool
	}{
		{0, 0.1, false},
		{0, 0, true},
		{0, -0.1, true},
		{0, math.NaN(), true},
		{0, math.Inf(1), false},
		{0.2, 0.1, true},
		{0.2, 0.3, false},
	}
	for _, tc := range testCases {
		ok, err := MinimumImprovementPruner(tc.minimum).Prune(ctx, n, &Partition{Improvement: tc.improvement})
		require.NoError(t, err)
		assert.Equal(t, tc.prune, ok, "minimum %v improvement %v", tc.minimum, tc.improvement)
	}
}
