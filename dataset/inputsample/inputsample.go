/*
Package inputsample provides an implementation of feature.Sample whose
values are read from an io.Reader, used to assign subjects to leaves
interactively.
*/
package inputsample

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/pbanos/stratify/feature"
)

type readSample struct {
	obtainedValues        map[string]interface{}
	undefinedValue        string
	scanner               *bufio.Scanner
	featureValueRequester FeatureValueRequester
	features              []feature.Feature
}

/*
FeatureValueRequester represents a way to ask
for feature values and reject the given values.
*/
type FeatureValueRequester interface {
	RequestValueFor(feature.Feature) error
	RejectValueFor(feature.Feature, interface{}) error
}

/*
New takes an io.Reader, a slice of features, a
FeatureValueRequester and an undefinedValue coding string
and returns a Sample.

The returned Sample ValueFor method reads feature values first
requesting them with the given FeatureValueRequester and
then parsing the values from the reader. Values are only requested
once: later calls for the same feature return the obtained value.

The parsing expects each value to be presented ending with the
'\n' character, that is in new lines. Also, the undefinedValue
string followed by the '\n' character will be interpreted as an
undefined value.

Lines will be read from the reader until a line with a value the
feature can parse is found. Non accepted values will be
rejected with the FeatureValueRequester's RejectValueFor method.

Attempting to obtain a value for a Feature not in the given
features slice returns an error.
*/
func New(r io.Reader, features []feature.Feature, featureValueRequester FeatureValueRequester, undefinedValue string) feature.Sample {
	scanner := bufio.NewScanner(r)
	return &readSample{make(map[string]interface{}), undefinedValue, scanner, featureValueRequester, features}
}

func (rs *readSample) ValueFor(ctx context.Context, f feature.Feature) (interface{}, error) {
	value, ok := rs.obtainedValues[f.Name()]
	if ok {
		return value, nil
	}
	featureWithInfo := feature.Lookup(rs.features, f.Name())
	if featureWithInfo == nil {
		return nil, fmt.Errorf("have no information about feature %s, do not know how to read its value", f.Name())
	}
	err := rs.featureValueRequester.RequestValueFor(featureWithInfo)
	if err != nil {
		return nil, err
	}
	for rs.scanner.Scan() {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		line := rs.scanner.Text()
		if line == rs.undefinedValue {
			rs.obtainedValues[f.Name()] = nil
			return nil, nil
		}
		value, err = featureWithInfo.Parse(line)
		if err == nil {
			rs.obtainedValues[f.Name()] = value
			return value, nil
		}
		err = rs.featureValueRequester.RejectValueFor(featureWithInfo, line)
		if err != nil {
			return nil, err
		}
	}
	err = rs.scanner.Err()
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("EOF when requesting value for feature %s", f.Name())
}
