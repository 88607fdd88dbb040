package yaml

import (
	"testing"

	"github.com/pbanos/stratify/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMetadata(t *testing.T) {
	md := []byte(`
subject: patient
visit: visit_number
features:
  weight: continuous
  age: continuous
  sex: [0, 1]
`)
	m, err := ReadMetadata(md)
	require.NoError(t, err)
	assert.Equal(t, "patient", m.Subject)
	assert.Equal(t, "visit_number", m.Visit)
	require.Len(t, m.Features, 3)
	assert.Equal(t, []string{"age", "sex", "weight"}, feature.Names(m.Features))
	assert.Equal(t, "age", m.Features[0].Name())
	assert.IsType(t, &feature.ContinuousFeature{}, m.Features[0])
	sex, ok := m.Features[1].(*feature.DiscreteFeature)
	require.True(t, ok)
	assert.Equal(t, []string{"0", "1"}, sex.AvailableValues())
}

func TestReadMetadataDefaultsSubjectColumn(t *testing.T) {
	m, err := ReadMetadata([]byte("features:\n  age: continuous\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectColumn, m.Subject)
	assert.Empty(t, m.Visit)
}

func TestReadMetadataErrors(t *testing.T) {
	for name, md := range map[string]string{
		"no features":      "subject: id\n",
		"bad declaration":  "features:\n  age: numeric\n",
		"bad type":         "features:\n  age: 3\n",
		"subject declared": "subject: age\nfeatures:\n  age: continuous\n",
		"invalid yaml":     "features: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadMetadata([]byte(md))
			assert.Error(t, err)
		})
	}
}
