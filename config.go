package stratify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

// DefaultMinSubjectsPerLeaf is the MinSubjectsPerLeaf of DefaultConfig
const DefaultMinSubjectsPerLeaf = 10

/*
Config holds the parameters of a Splitter.
*/
type Config struct {
	// Names of the columns on which subjects are split
	Covariates []string `yaml:"covariates" json:"covariates" envconfig:"COVARIATES" validate:"required,min=1,unique,dive,required"`
	// Names of the continuous columns whose IOI is minimized
	Features []string `yaml:"features" json:"features" envconfig:"FEATURES" validate:"required,min=1,unique,dive,required"`
	// Minimum number of distinct subjects on every leaf but a root leaf
	MinSubjectsPerLeaf int `yaml:"min_subjects_per_leaf" json:"min_subjects_per_leaf" envconfig:"MIN_SUBJECTS_PER_LEAF" validate:"gte=1"`
	// Depth at which nodes are no longer split, 0 for unlimited
	MaxDepth int `yaml:"max_depth" json:"max_depth" envconfig:"MAX_DEPTH" validate:"gte=0"`
	// Maximum number of values of a discrete covariate for which every
	// bipartition is tried
	ExhaustiveCategoryLimit int `yaml:"exhaustive_category_limit" json:"exhaustive_category_limit" envconfig:"EXHAUSTIVE_CATEGORY_LIMIT" validate:"gte=0,lte=12"`
	// Improvement of the IOI a split must exceed to be performed
	MinimumImprovement float64 `yaml:"minimum_improvement" json:"minimum_improvement" envconfig:"MINIMUM_IMPROVEMENT" validate:"gte=0"`
	// Number of goroutines growing the tree, 0 meaning 1
	Workers int `yaml:"workers" json:"workers" envconfig:"WORKERS" validate:"gte=0"`
	// Name of the column with the visit of each row. When set, the
	// between-person variability is computed across the rows of every
	// visit instead of across subject means.
	Visit string `yaml:"visit" json:"visit" envconfig:"VISIT"`
}

/*
DefaultConfig takes the names of the covariates and features and returns a
Config with default values for the rest of parameters.
*/
func DefaultConfig(covariates, features []string) Config {
	return Config{
		Covariates:         covariates,
		Features:           features,
		MinSubjectsPerLeaf: DefaultMinSubjectsPerLeaf,
		Workers:            1,
	}
}

var validate = validator.New()

/*
Validate checks the configuration against the dataset it is to be applied
on and returns the covariates, the features and the visit feature (nil if
not configured) it names, or a *ConfigurationError.
*/
func (cfg Config) Validate(ctx context.Context, ds dataset.Dataset) (covariates, features []feature.Feature, visit feature.Feature, err error) {
	err = validate.Struct(cfg)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, nil, nil, configurationError(verrs[0].Field(), err, "failed %s validation", verrs[0].Tag())
		}
		return nil, nil, nil, configurationError("", err, "validation failed")
	}
	dsFeatures := ds.Features()
	names := make(map[string]string)
	for _, name := range cfg.Covariates {
		f := feature.Lookup(dsFeatures, name)
		if f == nil {
			return nil, nil, nil, configurationError("Covariates", nil, "column %q is not in the dataset", name)
		}
		covariates = append(covariates, f)
		names[name] = "a covariate"
	}
	for _, name := range cfg.Features {
		if role, ok := names[name]; ok {
			return nil, nil, nil, configurationError("Features", nil, "column %q is also %s", name, role)
		}
		f := feature.Lookup(dsFeatures, name)
		if f == nil {
			return nil, nil, nil, configurationError("Features", nil, "column %q is not in the dataset", name)
		}
		if _, ok := f.(*feature.ContinuousFeature); !ok {
			return nil, nil, nil, configurationError("Features", nil, "column %q is not continuous", name)
		}
		features = append(features, f)
		names[name] = "a feature"
	}
	if cfg.Visit != "" {
		if role, ok := names[cfg.Visit]; ok {
			return nil, nil, nil, configurationError("Visit", nil, "column %q is also %s", cfg.Visit, role)
		}
		visit = feature.Lookup(dsFeatures, cfg.Visit)
		if visit == nil {
			return nil, nil, nil, configurationError("Visit", nil, "column %q is not in the dataset", cfg.Visit)
		}
	}
	subjects, err := ds.Subjects(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("validating configuration: %w", err)
	}
	if len(subjects) > 0 && cfg.MinSubjectsPerLeaf > len(subjects) {
		return nil, nil, nil, configurationError("MinSubjectsPerLeaf", nil, "%d exceeds the %d subjects of the dataset", cfg.MinSubjectsPerLeaf, len(subjects))
	}
	for _, subject := range subjects {
		for _, f := range covariates {
			v, err := subject.ValueFor(ctx, f)
			if err != nil {
				var ive dataset.InconsistentValueError
				if errors.As(err, &ive) {
					return nil, nil, nil, configurationError("Covariates", err, "subject %s has inconsistent values for %s", subject.ID(), f.Name())
				}
				return nil, nil, nil, fmt.Errorf("validating configuration: %w", err)
			}
			if v == nil {
				return nil, nil, nil, configurationError("Covariates", nil, "subject %s has no value for %s", subject.ID(), f.Name())
			}
		}
	}
	return covariates, features, visit, nil
}
