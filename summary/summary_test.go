package summary

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	age        = feature.NewContinuousFeature("age")
	sex        = feature.NewDiscreteFeature("sex", []string{"0", "1"})
	x          = feature.NewContinuousFeature("x")
	covariates = []feature.Feature{age, sex}
)

// buildTree returns a tree splitting subjects by age <= 42.5, and the older
// ones by sex.
func buildTree(t *testing.T) *tree.Tree {
	ctx := context.Background()
	ns := tree.NewMemoryNodeStore()
	root := &tree.Node{Subjects: 40, Samples: 160, IOI: 1, SubtreeFeature: age, FeatureIOI: map[string]float64{"x": 1}}
	require.NoError(t, ns.Create(ctx, root))
	young := &tree.Node{ParentID: root.ID, Depth: 1, FeatureCriterion: feature.LessOrEqualThan(age, 42.5), Subjects: 20, Samples: 80, IOI: 0.5, FeatureIOI: map[string]float64{"x": 0.5}}
	old := &tree.Node{ParentID: root.ID, Depth: 1, FeatureCriterion: feature.GreaterThan(age, 42.5), Subjects: 20, Samples: 80, IOI: 0.8, SubtreeFeature: sex, FeatureIOI: map[string]float64{"x": 0.8}}
	require.NoError(t, ns.Create(ctx, young))
	require.NoError(t, ns.Create(ctx, old))
	root.SubtreeIDs = []string{young.ID, old.ID}
	require.NoError(t, ns.Store(ctx, root))
	female := &tree.Node{ParentID: old.ID, Depth: 2, FeatureCriterion: feature.InSet(sex, "0"), Subjects: 10, Samples: 40, IOI: 0.4, FeatureIOI: map[string]float64{"x": 0.4}}
	male := &tree.Node{ParentID: old.ID, Depth: 2, FeatureCriterion: feature.NotInSet(sex, "0"), Subjects: 10, Samples: 40, IOI: math.Inf(1), FeatureIOI: map[string]float64{"x": math.Inf(1)}}
	require.NoError(t, ns.Create(ctx, female))
	require.NoError(t, ns.Create(ctx, male))
	old.SubtreeIDs = []string{female.ID, male.ID}
	require.NoError(t, ns.Store(ctx, old))
	return tree.New(root.ID, ns, covariates, []feature.Feature{x})
}

func summarize(t *testing.T) []*Leaf {
	leaves, tr, err := Summarize(context.Background(), buildTree(t))
	require.NoError(t, err)
	require.NotNil(t, tr)
	return leaves
}

func TestSummarize(t *testing.T) {
	leaves := summarize(t)
	require.Len(t, leaves, 3)
	expected := []struct {
		id       int
		nodeID   string
		rule     string
		subjects int
	}{
		{1, "1.1", "age <= 42.5", 20},
		{2, "1.2.1", "age > 42.5 AND sex in {0}", 10},
		{3, "1.2.2", "age > 42.5 AND sex not in {0}", 10},
	}
	for i, e := range expected {
		assert.Equal(t, e.id, leaves[i].ID)
		assert.Equal(t, e.nodeID, leaves[i].NodeID)
		assert.Equal(t, e.rule, leaves[i].Rule())
		assert.Equal(t, e.subjects, leaves[i].Subjects)
	}
}

func TestSummarizeRootLeaf(t *testing.T) {
	ctx := context.Background()
	ns := tree.NewMemoryNodeStore()
	root := &tree.Node{Subjects: 5, Samples: 9, IOI: 0.3}
	require.NoError(t, ns.Create(ctx, root))
	leaves, _, err := Summarize(ctx, tree.New(root.ID, ns, covariates, []feature.Feature{x}))
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Empty(t, leaves[0].Conditions)
	assert.Equal(t, "", leaves[0].Rule())
	id, err := AssignToLeaf(ctx, leaves, dataset.NewSample("s", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestSummarizeNilTree(t *testing.T) {
	_, _, err := Summarize(context.Background(), nil)
	assert.Equal(t, ErrTreeNotGrown, err)
	_, err = Splits(context.Background(), nil)
	assert.Equal(t, ErrTreeNotGrown, err)
}

func TestAssignToLeaf(t *testing.T) {
	ctx := context.Background()
	leaves := summarize(t)
	tr := buildTree(t)
	testCases := []struct {
		values map[string]interface{}
		leaf   int
		node   string
	}{
		{map[string]interface{}{"age": 30.0, "sex": "1"}, 1, "1.1"},
		{map[string]interface{}{"age": 42.5}, 1, "1.1"},
		{map[string]interface{}{"age": 50.0, "sex": "0"}, 2, "1.2.1"},
		{map[string]interface{}{"age": 50.0, "sex": "1"}, 3, "1.2.2"},
	}
	for _, tc := range testCases {
		s := dataset.NewSample("s", tc.values)
		id, err := AssignToLeaf(ctx, leaves, s)
		require.NoError(t, err)
		assert.Equal(t, tc.leaf, id, "%v", tc.values)
		n, err := tr.Assign(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, tc.node, n.ID)
	}
}

func TestAssignToLeafWithoutMatch(t *testing.T) {
	ctx := context.Background()
	leaves := summarize(t)
	for _, values := range []map[string]interface{}{
		{"sex": "0"},
		{"age": 50.0},
	} {
		_, err := AssignToLeaf(ctx, leaves, dataset.NewSample("s", values))
		assert.True(t, errors.Is(err, ErrNoMatchingLeaf), "%v", values)
	}
}

func TestAssignToLeafWithInvalidValue(t *testing.T) {
	_, err := AssignToLeaf(context.Background(), summarize(t), dataset.NewSample("s", map[string]interface{}{"age": "old"}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoMatchingLeaf))
}

func TestSplits(t *testing.T) {
	splits, err := Splits(context.Background(), buildTree(t))
	require.NoError(t, err)
	require.Len(t, splits, 2)

	assert.Equal(t, "1", splits[0].NodeID)
	assert.Equal(t, Root, splits[0].Direction)
	assert.Equal(t, "age", splits[0].Covariate)
	assert.Equal(t, "age <= 42.5", splits[0].Criterion.(interface{ String() string }).String())
	assert.InDelta(t, 0.35, splits[0].Improvement, 1e-12)

	assert.Equal(t, "1.2", splits[1].NodeID)
	assert.Equal(t, "1", splits[1].ParentID)
	assert.Equal(t, Right, splits[1].Direction)
	assert.Equal(t, 1, splits[1].Depth)
	assert.Equal(t, "sex", splits[1].Covariate)
	assert.True(t, math.IsInf(splits[1].Improvement, -1))
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	leaves := summarize(t)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteJSON(buf, leaves))
	assert.Contains(t, buf.String(), `"f": "age"`)
	assert.Contains(t, buf.String(), `"op": "<="`)
	assert.Contains(t, buf.String(), `"t": "42.5"`)
	assert.Contains(t, buf.String(), `"vs": [`)
	assert.Contains(t, buf.String(), `"ioi": "+Inf"`)

	read, err := ReadJSON(buf, covariates)
	require.NoError(t, err)
	require.Len(t, read, 3)
	for i, l := range read {
		assert.Equal(t, leaves[i].ID, l.ID)
		assert.Equal(t, leaves[i].Rule(), l.Rule())
		assert.Equal(t, leaves[i].IOI, l.IOI)
		assert.Equal(t, leaves[i].FeatureIOI, l.FeatureIOI)
	}
	id, err := AssignToLeaf(ctx, read, dataset.NewSample("s", map[string]interface{}{"age": 50.0, "sex": "1"}))
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestReadJSONWithUnknownCovariate(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`[{"id":1,"node":"1.1","conditions":[{"f":"height","op":"<=","t":"1"}],"ioi":"1"}]`), covariates)
	assert.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	leaves := summarize(t)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteYAML(buf, leaves))
	read, err := ReadYAML(buf, covariates)
	require.NoError(t, err)
	require.Len(t, read, 3)
	for i, l := range read {
		assert.Equal(t, leaves[i].NodeID, l.NodeID)
		assert.Equal(t, leaves[i].Rule(), l.Rule())
		assert.Equal(t, leaves[i].Samples, l.Samples)
		assert.Equal(t, leaves[i].IOI, l.IOI)
	}
}

func TestWriteCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteCSV(buf, summarize(t)))
	assert.Equal(t, strings.Join([]string{
		"leaf,node,conditions,subjects,samples,ioi,ioi_x",
		"1,1.1,age <= 42.5,20,80,0.5,0.5",
		"2,1.2.1,age > 42.5 AND sex in {0},10,40,0.4,0.4",
		"3,1.2.2,age > 42.5 AND sex not in {0},10,40,+Inf,+Inf",
		"",
	}, "\n"), buf.String())
}

func TestWriteXLSX(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WriteXLSX(buf, summarize(t)))
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(XLSXSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"leaf", "node", "conditions", "subjects", "samples", "ioi", "ioi_x"}, rows[0])
	assert.Equal(t, "age > 42.5 AND sex in {0}", rows[2][2])
	assert.Equal(t, "+Inf", rows[3][5])
}
