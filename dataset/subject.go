package dataset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pbanos/stratify/feature"
)

/*
InconsistentValueError is returned when a subject has rows with different
values for a discrete feature, so no subject-level value can be defined.
*/
type InconsistentValueError string

func (ive InconsistentValueError) Error() string {
	return string(ive)
}

/*
Subject groups the samples of a table that share a subject identifier.

A Subject is itself a feature.Sample: its ValueFor method returns its
subject-level value for a feature. For continuous features this is the mean
of the values on its samples, for discrete features the single value its
samples share. Samples with an undefined value are ignored, and a subject
without defined values has an undefined (nil) value.
*/
type Subject struct {
	id      string
	samples []Sample
	lock    sync.Mutex
	values  map[string]interface{}
}

/*
NewSubject takes an identifier and the samples of a subject and returns the
Subject.
*/
func NewSubject(id string, samples []Sample) *Subject {
	return &Subject{id: id, samples: samples}
}

/*
GroupSubjects takes a slice of samples and returns the subjects they belong
to, sorted by identifier. Samples of a subject keep their relative order.
*/
func GroupSubjects(samples []Sample) []*Subject {
	index := make(map[string]*Subject)
	var subjects []*Subject
	for _, s := range samples {
		id := s.SubjectID()
		subject, ok := index[id]
		if !ok {
			subject = NewSubject(id, nil)
			index[id] = subject
			subjects = append(subjects, subject)
		}
		subject.samples = append(subject.samples, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].id < subjects[j].id
	})
	return subjects
}

// ID returns the identifier of the subject
func (s *Subject) ID() string {
	return s.id
}

// Samples returns the samples of the subject
func (s *Subject) Samples() []Sample {
	return s.samples
}

/*
ValueFor returns the subject-level value for the given feature, or an
InconsistentValueError if the subject has different values for a discrete
feature.
*/
func (s *Subject) ValueFor(ctx context.Context, f feature.Feature) (interface{}, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if v, ok := s.values[f.Name()]; ok {
		return v, nil
	}
	var v interface{}
	var err error
	switch f := f.(type) {
	case *feature.ContinuousFeature:
		v, err = s.meanValue(ctx, f)
	case *feature.DiscreteFeature:
		v, err = s.sharedValue(ctx, f)
	default:
		err = fmt.Errorf("unknown feature type %T for feature %v", f, f.Name())
	}
	if err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = make(map[string]interface{})
	}
	s.values[f.Name()] = v
	return v, nil
}

func (s *Subject) meanValue(ctx context.Context, f *feature.ContinuousFeature) (interface{}, error) {
	values, err := ContinuousValues(ctx, s.samples, f)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

func (s *Subject) sharedValue(ctx context.Context, f *feature.DiscreteFeature) (interface{}, error) {
	var result interface{}
	for _, sample := range s.samples {
		v, err := sample.ValueFor(ctx, f)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if result == nil {
			result = v
			continue
		}
		if result != v {
			return nil, InconsistentValueError(fmt.Sprintf("subject %s has inconsistent values %v and %v for feature %s", s.id, result, v, f.Name()))
		}
	}
	return result, nil
}

func (s *Subject) String() string {
	return fmt.Sprintf("{Subject %s: %d samples}", s.id, len(s.samples))
}

/*
ContinuousValues takes a slice of samples and a feature and returns the
defined values of the samples for the feature, sorted in ascending order.
It returns an error if any sample has a value that is not a float64.
*/
func ContinuousValues(ctx context.Context, samples []Sample, f feature.Feature) ([]float64, error) {
	values := make([]float64, 0, len(samples))
	for _, sample := range samples {
		v, err := sample.ValueFor(ctx, f)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		fv, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("feature %s expects float64 value, got %T value on subject %s", f.Name(), v, sample.SubjectID())
		}
		values = append(values, fv)
	}
	sort.Float64s(values)
	return values, nil
}
