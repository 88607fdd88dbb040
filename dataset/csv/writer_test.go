package csv

import (
	"bytes"
	"context"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, "subject_id", features)
	require.NoError(t, err)
	n, err := w.Write(ctx, []dataset.Sample{
		dataset.NewSample("s1", map[string]interface{}{"age": 40.0, "sex": "0"}),
		dataset.NewSample("s2", map[string]interface{}{"age": 35.5}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, w.Flush())
	assert.Equal(t, 2, w.Count())
	assert.Equal(t, "subject_id,age,sex\ns1,40,0\ns2,35.5,?\n", buf.String())
}

func TestWriteDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds, err := ReadDataset(bytes.NewBufferString(table), "subject_id", features, dataset.New)
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteDataset(ctx, buf, ds, "subject_id", features))
	assert.Equal(t, "subject_id,age,sex\ns1,40,0\ns1,?,0\ns2,35.5,1\n", buf.String())

	read, err := ReadDataset(buf, "subject_id", features, dataset.New)
	require.NoError(t, err)
	count, err := read.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWriterStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := NewWriter(&bytes.Buffer{}, "subject_id", features)
	require.NoError(t, err)
	n, err := w.Write(ctx, []dataset.Sample{dataset.NewSample("s1", nil)})
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}
