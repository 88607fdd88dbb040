/*
Package dataset provides the observation tables on which subjects are
stratified: rows (samples) that belong to subjects and collections of them
that can be subset subject-wise by feature criteria.
*/
package dataset

import (
	"context"
	"fmt"
	"sort"

	"github.com/pbanos/stratify/feature"
)

const (
	sampleCountThresholdForDatasetImplementation = 100000
)

/*
Dataset represents a collection of samples grouped by subject.

Its Features method returns the columns of the dataset.

Its SubsetWith method takes a feature.Criterion and returns a subset that only
contains the subjects whose subject-level value satisfies it, with all their
samples. Subjects are never split across subsets.

Its FeatureValues method returns the distinct defined subject-level values for
a feature in ascending order.

Its Samples method returns the samples it contains, grouped by subject in
subject order.

Its Subjects method returns the subjects it contains sorted by identifier.

Its Criteria method returns the criteria applied to obtain the dataset from
its root dataset, the latest first.
*/
type Dataset interface {
	Features() []feature.Feature
	SubsetWith(context.Context, feature.Criterion) (Dataset, error)
	FeatureValues(context.Context, feature.Feature) ([]interface{}, error)
	Samples(context.Context) ([]Sample, error)
	Count(context.Context) (int, error)
	Subjects(context.Context) ([]*Subject, error)
	CountSubjects(context.Context) (int, error)
	Criteria(context.Context) ([]feature.Criterion, error)
}

type memoryIntensiveSubsettingDataset struct {
	features []feature.Feature
	subjects []*Subject
	count    int
	criteria []feature.Criterion
}

type cpuIntensiveSubsettingDataset struct {
	features []feature.Feature
	subjects []*Subject
	criteria []feature.Criterion
}

/*
New takes a slice of features and a slice of samples and returns a dataset
built with them. The dataset will be a CPU intensive one when the number of
samples is over sampleCountThresholdForDatasetImplementation
*/
func New(features []feature.Feature, samples []Sample) Dataset {
	if len(samples) > sampleCountThresholdForDatasetImplementation {
		return NewCPUIntensive(features, samples)
	}
	return NewMemoryIntensive(features, samples)
}

/*
NewMemoryIntensive takes a slice of features and a slice of samples and
returns a Dataset built with them. A memory-intensive dataset is an
implementation that replicates the slice of subjects when subsetting to
reduce calculations at the cost of increased memory.
*/
func NewMemoryIntensive(features []feature.Feature, samples []Sample) Dataset {
	return &memoryIntensiveSubsettingDataset{features, GroupSubjects(samples), len(samples), nil}
}

/*
NewCPUIntensive takes a slice of features and a slice of samples and returns
a Dataset built with them. A cpu-intensive dataset is an implementation that
instead of replicating the subjects when subsetting, stores the applying
feature criteria to define the subset and keeps the same subject slice.
Every calculation that goes over the subjects of the dataset will apply the
feature criteria of the dataset on all original subjects.
*/
func NewCPUIntensive(features []feature.Feature, samples []Sample) Dataset {
	return &cpuIntensiveSubsettingDataset{features, GroupSubjects(samples), nil}
}

/*
Load takes a slice of features and a Reader and returns a Dataset with all
the samples read from it, or an error if reading fails.
*/
func Load(ctx context.Context, features []feature.Feature, r Reader) (Dataset, error) {
	samples, err := collect(r.Read(ctx))
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	return New(features, samples), nil
}

/*
LoadSubset takes a slice of features, a SubsetReader and criteria in the
order they are applied and returns a Dataset with the samples of the
subjects satisfying all of them, read with the criteria pushed down to the
reader. The Criteria of the returned dataset are the given ones, as if it
had been obtained subsetting the whole table in that order.
*/
func LoadSubset(ctx context.Context, features []feature.Feature, r SubsetReader, criteria []feature.Criterion) (Dataset, error) {
	samples, err := collect(r.ReadSubset(ctx, criteria...))
	if err != nil {
		return nil, fmt.Errorf("loading dataset subset: %w", err)
	}
	applied := make([]feature.Criterion, 0, len(criteria))
	for i := len(criteria) - 1; i >= 0; i-- {
		applied = append(applied, criteria[i])
	}
	switch ds := New(features, samples).(type) {
	case *memoryIntensiveSubsettingDataset:
		ds.criteria = applied
		return ds, nil
	case *cpuIntensiveSubsettingDataset:
		ds.criteria = applied
		return ds, nil
	default:
		return nil, fmt.Errorf("loading dataset subset: unexpected dataset %T", ds)
	}
}

func collect(sampleChan <-chan Sample, errs <-chan error) ([]Sample, error) {
	var samples []Sample
	for s := range sampleChan {
		samples = append(samples, s)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return samples, nil
}

/*
Reader is implemented by sources of samples, like files or databases, from
which samples can be sequentially read.

Its Read method returns a channel of samples and a channel of errors. The
sample channel is closed once all samples have been sent or an error occurs,
in which case the error is sent through the error channel before it is
closed.
*/
type Reader interface {
	Read(context.Context) (<-chan Sample, <-chan error)
}

/*
SubsetReader is implemented by sources of samples that select the subjects
satisfying some criteria on their own, like databases pushing the criteria
into their queries.

Its ReadSubset method works like Read, but only sends the samples of the
subjects whose subject-level values satisfy all the given criteria.
*/
type SubsetReader interface {
	ReadSubset(context.Context, ...feature.Criterion) (<-chan Sample, <-chan error)
}

/*
Writer is implemented by sinks of samples.

Its Write method takes a slice of samples and stores them, returning the
number of samples written and an error if not all could be written.
*/
type Writer interface {
	Write(context.Context, []Sample) (int, error)
}

func (s *memoryIntensiveSubsettingDataset) Features() []feature.Feature {
	return s.features
}

func (s *cpuIntensiveSubsettingDataset) Features() []feature.Feature {
	return s.features
}

func (s *memoryIntensiveSubsettingDataset) Count(ctx context.Context) (int, error) {
	return s.count, nil
}

func (s *cpuIntensiveSubsettingDataset) Count(ctx context.Context) (int, error) {
	var length int
	err := s.iterateOnDataset(ctx, func(subject *Subject) (bool, error) {
		length += len(subject.samples)
		return true, nil
	})
	return length, err
}

func (s *memoryIntensiveSubsettingDataset) CountSubjects(ctx context.Context) (int, error) {
	return len(s.subjects), nil
}

func (s *cpuIntensiveSubsettingDataset) CountSubjects(ctx context.Context) (int, error) {
	var length int
	err := s.iterateOnDataset(ctx, func(_ *Subject) (bool, error) {
		length++
		return true, nil
	})
	return length, err
}

func (s *memoryIntensiveSubsettingDataset) FeatureValues(ctx context.Context, f feature.Feature) ([]interface{}, error) {
	return featureValues(ctx, s.subjects, f)
}

func (s *cpuIntensiveSubsettingDataset) FeatureValues(ctx context.Context, f feature.Feature) ([]interface{}, error) {
	subjects, err := s.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	return featureValues(ctx, subjects, f)
}

func (s *memoryIntensiveSubsettingDataset) SubsetWith(ctx context.Context, fc feature.Criterion) (Dataset, error) {
	var subjects []*Subject
	var count int
	for _, subject := range s.subjects {
		ok, err := fc.SatisfiedBy(ctx, subject)
		if err != nil {
			return nil, err
		}
		if ok {
			subjects = append(subjects, subject)
			count += len(subject.samples)
		}
	}
	return &memoryIntensiveSubsettingDataset{s.features, subjects, count, append([]feature.Criterion{fc}, s.criteria...)}, nil
}

func (s *cpuIntensiveSubsettingDataset) SubsetWith(ctx context.Context, fc feature.Criterion) (Dataset, error) {
	criteria := append([]feature.Criterion{fc}, s.criteria...)
	return &cpuIntensiveSubsettingDataset{s.features, s.subjects, criteria}, nil
}

func (s *memoryIntensiveSubsettingDataset) Samples(ctx context.Context) ([]Sample, error) {
	samples := make([]Sample, 0, s.count)
	for _, subject := range s.subjects {
		samples = append(samples, subject.samples...)
	}
	return samples, nil
}

func (s *cpuIntensiveSubsettingDataset) Samples(ctx context.Context) ([]Sample, error) {
	var samples []Sample
	err := s.iterateOnDataset(ctx, func(subject *Subject) (bool, error) {
		samples = append(samples, subject.samples...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func (s *memoryIntensiveSubsettingDataset) Subjects(ctx context.Context) ([]*Subject, error) {
	return s.subjects, nil
}

func (s *cpuIntensiveSubsettingDataset) Subjects(ctx context.Context) ([]*Subject, error) {
	var subjects []*Subject
	err := s.iterateOnDataset(ctx, func(subject *Subject) (bool, error) {
		subjects = append(subjects, subject)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return subjects, nil
}

func (s *memoryIntensiveSubsettingDataset) Criteria(ctx context.Context) ([]feature.Criterion, error) {
	return s.criteria, nil
}

func (s *cpuIntensiveSubsettingDataset) Criteria(ctx context.Context) ([]feature.Criterion, error) {
	return s.criteria, nil
}

func (s *cpuIntensiveSubsettingDataset) iterateOnDataset(ctx context.Context, lambda func(*Subject) (bool, error)) error {
	for _, subject := range s.subjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		skip := false
		for _, criterion := range s.criteria {
			ok, err := criterion.SatisfiedBy(ctx, subject)
			if err != nil {
				return err
			}
			if !ok {
				skip = true
				break
			}
		}
		if !skip {
			ok, err := lambda(subject)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
	}
	return nil
}

func featureValues(ctx context.Context, subjects []*Subject, f feature.Feature) ([]interface{}, error) {
	var floats []float64
	var strs []string
	encountered := make(map[interface{}]bool)
	for _, subject := range subjects {
		v, err := subject.ValueFor(ctx, f)
		if err != nil {
			return nil, err
		}
		if v == nil || encountered[v] {
			continue
		}
		encountered[v] = true
		switch tv := v.(type) {
		case float64:
			floats = append(floats, tv)
		case string:
			strs = append(strs, tv)
		default:
			return nil, fmt.Errorf("unexpected %T value for feature %s on subject %s", v, f.Name(), subject.ID())
		}
	}
	sort.Float64s(floats)
	sort.Strings(strs)
	result := make([]interface{}, 0, len(floats)+len(strs))
	for _, v := range floats {
		result = append(result, v)
	}
	for _, v := range strs {
		result = append(result, v)
	}
	return result, nil
}
