package csv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	age      = feature.NewContinuousFeature("age")
	sex      = feature.NewDiscreteFeature("sex", []string{"0", "1"})
	features = []feature.Feature{age, sex}
)

const table = `subject_id,visit,age,sex
s1,1,40,0
s1,2,?,0
s2,1,35.5,1
`

func TestReadDataset(t *testing.T) {
	ctx := context.Background()
	ds, err := ReadDataset(strings.NewReader(table), "subject_id", features, dataset.New)
	require.NoError(t, err)
	count, err := ds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	subjects, err := ds.Subjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	v, err := subjects[0].ValueFor(ctx, age)
	require.NoError(t, err)
	assert.Equal(t, 40.0, v)
	v, err = subjects[1].ValueFor(ctx, sex)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestReadDatasetErrors(t *testing.T) {
	for name, content := range map[string]string{
		"missing subject column": "id,age\n1,2\n",
		"invalid continuous":     "subject_id,age\ns1,old\n",
		"invalid discrete":       "subject_id,sex\ns1,2\n",
		"undefined subject":      "subject_id,age\n?,2\n",
		"empty":                  "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(content), "subject_id", features, dataset.New)
			assert.Error(t, err)
		})
	}
}

func TestReadDatasetBySampleStops(t *testing.T) {
	var read int
	err := ReadDatasetBySample(strings.NewReader(table), "subject_id", features, func(i int, s dataset.Sample) (bool, error) {
		read++
		return i < 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, read)
}

func TestNewReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o600))
	ds, err := dataset.Load(context.Background(), features, NewReader(path, "subject_id", features))
	require.NoError(t, err)
	n, err := ds.CountSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
