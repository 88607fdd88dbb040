/*
Package variability computes the variability of measured features on an
observation table: the within-person variability of the repeated
measurements of each subject, the between-person variability of the subject
means and their ratio, the index of individuality (IOI).

All functions group rows by subject and sort values before aggregating, so
their results do not depend on the order of the rows. None of them modifies
the dataset.
*/
package variability

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

/*
WithinPerson takes a dataset and a slice of continuous features and returns,
for each feature name, the mean across subjects of the sample standard
deviation of the subject's values. Subjects with less than two defined
values for a feature do not contribute to its aggregate; when no subject
contributes the result is NaN.
*/
func WithinPerson(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error) {
	subjects, err := ds.Subjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing within-person variability: %w", err)
	}
	result := make(map[string]float64, len(features))
	for _, f := range features {
		var deviations []float64
		for _, subject := range subjects {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
			values, err := dataset.ContinuousValues(ctx, subject.Samples(), f)
			if err != nil {
				return nil, fmt.Errorf("computing within-person variability: %w", err)
			}
			if len(values) < 2 {
				continue
			}
			sd, err := stats.StandardDeviationSample(values)
			if err != nil {
				return nil, fmt.Errorf("computing within-person variability of %s for subject %s: %w", f.Name(), subject.ID(), err)
			}
			deviations = append(deviations, sd)
		}
		result[f.Name()] = mean(deviations)
	}
	return result, nil
}

/*
BetweenPerson takes a dataset and a slice of continuous features and returns,
for each feature name, the sample standard deviation of the subject means of
the feature around their grand mean. Subjects without defined values for a
feature are ignored; with less than two subjects the result is NaN.
*/
func BetweenPerson(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error) {
	subjects, err := ds.Subjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing between-person variability: %w", err)
	}
	result := make(map[string]float64, len(features))
	for _, f := range features {
		var means []float64
		for _, subject := range subjects {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
			values, err := dataset.ContinuousValues(ctx, subject.Samples(), f)
			if err != nil {
				return nil, fmt.Errorf("computing between-person variability: %w", err)
			}
			if len(values) == 0 {
				continue
			}
			means = append(means, mean(values))
		}
		result[f.Name()] = sampleStandardDeviation(means)
	}
	return result, nil
}

/*
BetweenPersonByVisit takes a dataset, a slice of continuous features and a
visit feature and returns, for each feature name, the mean across visits of
the sample standard deviation of the values of all rows sharing a visit.
Visits with less than two defined values do not contribute; when no visit
contributes the result is NaN.
*/
func BetweenPersonByVisit(ctx context.Context, ds dataset.Dataset, features []feature.Feature, visit feature.Feature) (map[string]float64, error) {
	samples, err := ds.Samples(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing between-person variability by visit: %w", err)
	}
	visits := make(map[string][]dataset.Sample)
	for _, s := range samples {
		v, err := s.ValueFor(ctx, visit)
		if err != nil {
			return nil, fmt.Errorf("computing between-person variability by visit: %w", err)
		}
		if v == nil {
			continue
		}
		key := fmt.Sprintf("%v", v)
		visits[key] = append(visits[key], s)
	}
	keys := make([]string, 0, len(visits))
	for k := range visits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make(map[string]float64, len(features))
	for _, f := range features {
		var deviations []float64
		for _, k := range keys {
			values, err := dataset.ContinuousValues(ctx, visits[k], f)
			if err != nil {
				return nil, fmt.Errorf("computing between-person variability by visit: %w", err)
			}
			if len(values) < 2 {
				continue
			}
			deviations = append(deviations, sampleStandardDeviation(values))
		}
		result[f.Name()] = mean(deviations)
	}
	return result, nil
}

/*
IOI takes a dataset and a slice of continuous features and returns, for each
feature name, the ratio of its within-person variability to its
between-person variability. Features with a between-person variability of
zero, or an undefined (NaN) variability, have an IOI of +Inf.
*/
func IOI(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error) {
	within, err := WithinPerson(ctx, ds, features)
	if err != nil {
		return nil, err
	}
	between, err := BetweenPerson(ctx, ds, features)
	if err != nil {
		return nil, err
	}
	return Ratio(within, between), nil
}

/*
IOIByVisit works like IOI but takes the between-person variability from
BetweenPersonByVisit with the given visit feature.
*/
func IOIByVisit(ctx context.Context, ds dataset.Dataset, features []feature.Feature, visit feature.Feature) (map[string]float64, error) {
	within, err := WithinPerson(ctx, ds, features)
	if err != nil {
		return nil, err
	}
	between, err := BetweenPersonByVisit(ctx, ds, features, visit)
	if err != nil {
		return nil, err
	}
	return Ratio(within, between), nil
}

/*
Ratio takes the within-person and between-person variabilities of some
features and returns the IOI of each feature, +Inf when it is not defined.
*/
func Ratio(within, between map[string]float64) map[string]float64 {
	result := make(map[string]float64, len(within))
	for name, w := range within {
		b, ok := between[name]
		if !ok || b == 0 || math.IsNaN(b) || math.IsNaN(w) {
			result[name] = math.Inf(1)
			continue
		}
		result[name] = w / b
	}
	return result
}

/*
Objective takes a dataset and a slice of continuous features and returns the
mean of the IOI of the features, the scalar that stratification minimizes.
*/
func Objective(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (float64, error) {
	iois, err := IOI(ctx, ds, features)
	if err != nil {
		return 0, err
	}
	return Aggregate(iois), nil
}

/*
Aggregate takes the IOI of some features and returns their arithmetic mean,
+Inf if any of them is +Inf and NaN if there are none.
*/
func Aggregate(iois map[string]float64) float64 {
	names := make([]string, 0, len(iois))
	for name := range iois {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]float64, 0, len(names))
	for _, name := range names {
		if math.IsInf(iois[name], 1) {
			return math.Inf(1)
		}
		values = append(values, iois[name])
	}
	return mean(values)
}

func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

func sampleStandardDeviation(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sd, err := stats.StandardDeviationSample(sorted)
	if err != nil {
		return math.NaN()
	}
	return sd
}
