package dataset

import (
	"context"
	"fmt"

	"github.com/pbanos/stratify/feature"
)

/*
Sample represents a row of an observation table: one visit of a subject.

Its ValueFor method returns the value of the sample corresponding to the feature
passed as parameter.

Its SubjectID method returns the identifier of the subject the sample belongs
to.
*/
type Sample interface {
	feature.Sample
	SubjectID() string
}

type sample struct {
	subjectID     string
	featureValues map[string]interface{}
}

/*
NewSample takes a subject identifier and a map of feature string names to
values and returns a sample.
*/
func NewSample(subjectID string, featureValues map[string]interface{}) Sample {
	return &sample{subjectID, featureValues}
}

func (s *sample) ValueFor(_ context.Context, f feature.Feature) (interface{}, error) {
	return s.featureValues[f.Name()], nil
}

func (s *sample) SubjectID() string {
	return s.subjectID
}

func (s *sample) String() string {
	return fmt.Sprintf("[%s %v]", s.subjectID, s.featureValues)
}
