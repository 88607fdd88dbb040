/*
Package feature describes the columns of an observation table: the measured
features whose variability is studied and the covariates used to split
subjects into groups, together with the criteria that constrain them.
*/
package feature

import (
	"fmt"
	"sort"
	"strconv"
)

/*
Feature represents a column of an observation table.

Its Name method returns the name of the column.

Its Valid method checks whether a value is acceptable for the column.

Its Parse method takes the textual representation of a value, as found on a
CSV file or typed by a user, and returns the value it represents.
*/
type Feature interface {
	Name() string
	Valid(interface{}) (bool, error)
	Parse(string) (interface{}, error)
}

/*
DiscreteFeature represents a column that can only take a value among a finite
set, like a sex or a treatment arm.
*/
type DiscreteFeature struct {
	name            string
	availableValues []string
}

/*
ContinuousFeature represents a column that takes numeric values, like a
measured feature or an age.
*/
type ContinuousFeature struct {
	name string
}

/*
NewDiscreteFeature takes a name string and a slice of available value strings
and returns a discrete feature with the given name and available values.
*/
func NewDiscreteFeature(name string, availableValues []string) *DiscreteFeature {
	return &DiscreteFeature{name, availableValues}
}

/*
NewContinuousFeature takes a name string and returns a continuous feature with
the given name.
*/
func NewContinuousFeature(name string) *ContinuousFeature {
	return &ContinuousFeature{name}
}

/*
Lookup takes a slice of features and a name and returns the feature in the
slice with that name, or nil if there is none.
*/
func Lookup(features []Feature, name string) Feature {
	for _, f := range features {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

/*
Names returns the names of the given features, sorted.
*/
func Names(features []Feature) []string {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

/*
Name returns a string with the name of the feature
*/
func (df *DiscreteFeature) Name() string {
	return df.name
}

/*
Valid receives an interface value and returns a boolean and an error. When the
value parameter is included in the available values of the feature, the method
returns true and nil. Otherwise it returns false and an error describing the
reason. A feature without available values accepts any string.
*/
func (df *DiscreteFeature) Valid(value interface{}) (bool, error) {
	if value == nil {
		return true, nil
	}
	vs, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("discrete feature %s expects string value, got %T value", df.Name(), value)
	}
	if len(df.availableValues) == 0 {
		return true, nil
	}
	for _, av := range df.availableValues {
		if av == vs {
			return true, nil
		}
	}
	return false, fmt.Errorf("discrete feature %s got unknown value %s", df.Name(), vs)
}

/*
Parse returns the given string if it is a valid value for the feature.
*/
func (df *DiscreteFeature) Parse(s string) (interface{}, error) {
	if _, err := df.Valid(s); err != nil {
		return nil, err
	}
	return s, nil
}

/*
AvailableValues returns a string slice with the values available for the feature
*/
func (df *DiscreteFeature) AvailableValues() []string {
	return df.availableValues
}

func (df *DiscreteFeature) String() string {
	return df.name
}

/*
Name returns a string with the name of the feature
*/
func (cf *ContinuousFeature) Name() string {
	return cf.name
}

/*
Valid receives an interface value and returns a boolean and an error. When the
value parameter is a float64 it returns true and nil, otherwise it returns
false and an error describing the reason.
*/
func (cf *ContinuousFeature) Valid(value interface{}) (bool, error) {
	if value == nil {
		return true, nil
	}
	_, ok := value.(float64)
	if !ok {
		return false, fmt.Errorf("continuous feature %s expects float64 value, got %T value", cf.Name(), value)
	}
	return true, nil
}

/*
Parse returns the float64 number represented by the given string.
*/
func (cf *ContinuousFeature) Parse(s string) (interface{}, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("continuous feature %s: parsing %q: %w", cf.Name(), s, err)
	}
	return v, nil
}

func (cf *ContinuousFeature) String() string {
	return cf.name
}
