package stratify

import (
	"context"
	"errors"
	"testing"

	"github.com/pbanos/stratify/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	withMin := func(min int) Config {
		cfg := DefaultConfig([]string{"group"}, []string{"y1"})
		cfg.MinSubjectsPerLeaf = min
		return cfg
	}
	extra := func(values map[string]interface{}) []dataset.Sample {
		return append(groupSamples(), dataset.NewSample("s99", values))
	}
	testCases := []struct {
		name    string
		cfg     Config
		samples []dataset.Sample
		field   string
	}{
		{name: "unknown covariate", cfg: DefaultConfig([]string{"height"}, []string{"y1"}), field: "Covariates"},
		{name: "unknown feature", cfg: DefaultConfig([]string{"group"}, []string{"weight"}), field: "Features"},
		{name: "no covariates", cfg: DefaultConfig(nil, []string{"y1"}), field: "Covariates"},
		{name: "no features", cfg: DefaultConfig([]string{"group"}, nil), field: "Features"},
		{name: "overlapping names", cfg: DefaultConfig([]string{"group", "y1"}, []string{"y1"}), field: "Features"},
		{name: "discrete feature", cfg: DefaultConfig([]string{"age"}, []string{"group"}), field: "Features"},
		{name: "zero minimum", cfg: withMin(0), field: "MinSubjectsPerLeaf"},
		{name: "negative minimum", cfg: withMin(-3), field: "MinSubjectsPerLeaf"},
		{name: "minimum over subject count", cfg: withMin(41), field: "MinSubjectsPerLeaf"},
		{
			name: "exhaustive limit over cap",
			cfg: func() Config {
				cfg := DefaultConfig([]string{"group"}, []string{"y1"})
				cfg.ExhaustiveCategoryLimit = MaxExhaustiveCategories + 1
				return cfg
			}(),
			field: "ExhaustiveCategoryLimit",
		},
		{
			name: "unknown visit",
			cfg: func() Config {
				cfg := DefaultConfig([]string{"group"}, []string{"y1"})
				cfg.Visit = "week"
				return cfg
			}(),
			field: "Visit",
		},
		{
			name: "visit is a covariate",
			cfg: func() Config {
				cfg := DefaultConfig([]string{"group", "visit"}, []string{"y1"})
				cfg.Visit = "visit"
				return cfg
			}(),
			field: "Visit",
		},
		{
			name: "visit is a feature",
			cfg: func() Config {
				cfg := DefaultConfig([]string{"group"}, []string{"y1", "y2"})
				cfg.Visit = "y2"
				return cfg
			}(),
			field: "Visit",
		},
		{
			name:    "missing covariate value",
			cfg:     DefaultConfig([]string{"group"}, []string{"y1"}),
			samples: extra(map[string]interface{}{"y1": 1.0}),
			field:   "Covariates",
		},
		{
			name:    "inconsistent covariate value",
			cfg:     DefaultConfig([]string{"group"}, []string{"y1"}),
			samples: append(extra(map[string]interface{}{"y1": 1.0, "group": "a"}), dataset.NewSample("s99", map[string]interface{}{"y1": 2.0, "group": "b"})),
			field:   "Covariates",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			samples := tc.samples
			if samples == nil {
				samples = groupSamples()
			}
			s, err := New(context.Background(), dataset.New(columns, samples), tc.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrConfiguration))
			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestNewRejectsInconsistentValuesWithCause(t *testing.T) {
	samples := append(groupSamples(), dataset.NewSample("s01", map[string]interface{}{"y1": 1.0, "group": "b"}))
	_, err := New(context.Background(), dataset.New(columns, samples), DefaultConfig([]string{"group"}, []string{"y1"}))
	var ive dataset.InconsistentValueError
	assert.True(t, errors.As(err, &ive))
}

func TestNewAcceptsEmptyDatasetWithAnyMinimum(t *testing.T) {
	cfg := DefaultConfig([]string{"group"}, []string{"y1"})
	cfg.MinSubjectsPerLeaf = 1000
	s, err := New(context.Background(), dataset.New(columns, nil), cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewWithVisit(t *testing.T) {
	cfg := DefaultConfig([]string{"group"}, []string{"y1", "y2"})
	cfg.Visit = "visit"
	tr := fit(t, groupSamples(), cfg)
	root, err := tr.Get(context.Background(), tr.RootID)
	require.NoError(t, err)
	assert.False(t, root.IsLeaf())
	assert.InDelta(t, 0.5036, root.IOI, 1e-4)
	assert.Contains(t, root.FeatureIOI, "y1")
	assert.Contains(t, root.FeatureIOI, "y2")
}
