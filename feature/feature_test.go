package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscreteFeatureValid(t *testing.T) {
	sex := NewDiscreteFeature("sex", []string{"0", "1"})
	ok, err := sex.Valid("1")
	assert.True(t, ok)
	assert.NoError(t, err)
	ok, err = sex.Valid("2")
	assert.False(t, ok)
	assert.Error(t, err)
	_, err = sex.Valid(1.0)
	assert.Error(t, err)
	ok, err = sex.Valid(nil)
	assert.True(t, ok)
	assert.NoError(t, err)

	open := NewDiscreteFeature("site", nil)
	ok, err = open.Valid("anything")
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestParse(t *testing.T) {
	v, err := NewContinuousFeature("age").Parse("42.5")
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)
	_, err = NewContinuousFeature("age").Parse("old")
	assert.Error(t, err)

	v, err = NewDiscreteFeature("sex", []string{"0", "1"}).Parse("0")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
	_, err = NewDiscreteFeature("sex", []string{"0", "1"}).Parse("x")
	assert.Error(t, err)
}

func TestLookupAndNames(t *testing.T) {
	features := []Feature{NewContinuousFeature("b"), NewDiscreteFeature("a", nil)}
	assert.Equal(t, "a", Lookup(features, "a").Name())
	assert.Nil(t, Lookup(features, "c"))
	assert.Equal(t, []string{"a", "b"}, Names(features))
}
