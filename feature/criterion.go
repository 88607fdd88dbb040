package feature

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

/*
Operator identifies the test a Criterion applies to a value.
*/
type Operator int

const (
	// LessOrEqual is satisfied by continuous values lower or equal than a threshold
	LessOrEqual Operator = iota
	// Greater is satisfied by continuous values greater than a threshold
	Greater
	// In is satisfied by discrete values belonging to a set of values
	In
	// NotIn is satisfied by discrete values not belonging to a set of values
	NotIn
)

var operatorSymbols = map[Operator]string{
	LessOrEqual: "<=",
	Greater:     ">",
	In:          "in",
	NotIn:       "not in",
}

/*
Criterion represents a constraint on a feature

Its SatisfiedBy method takes a sample and returns a boolean indicating if
the given value satisfies the feature criterion.

Its Feature method returns the feature on which the criterion is applied.

Its Operator method returns the test applied on the feature's value.
*/
type Criterion interface {
	Feature() Feature
	Operator() Operator
	SatisfiedBy(ctx context.Context, sample Sample) (bool, error)
}

/*
Sample is an interface for something that can satisfy a Criterion.

Its ValueFor method returns the value corresponding to the feature
passed as parameter.
*/
type Sample interface {
	ValueFor(context.Context, Feature) (interface{}, error)
}

/*
ContinuousCriterion represents a constraint on a continuous feature: its value
must be lower or equal than a threshold, or greater than it.

Its Threshold method returns the threshold against which values are compared.
*/
type ContinuousCriterion interface {
	Criterion
	Threshold() float64
}

/*
DiscreteCriterion represents a constraint on a discrete feature: its value
must belong, or not belong, to a set of values.

Its Values method returns the sorted values of the set.
*/
type DiscreteCriterion interface {
	Criterion
	Values() []string
}

type continuousCriterion struct {
	feature   *ContinuousFeature
	op        Operator
	threshold float64
}

type discreteCriterion struct {
	feature *DiscreteFeature
	op      Operator
	values  []string
}

/*
LessOrEqualThan takes a ContinuousFeature and a threshold and returns a
ContinuousCriterion satisfied by values lower or equal than the threshold.
*/
func LessOrEqualThan(f *ContinuousFeature, threshold float64) ContinuousCriterion {
	return &continuousCriterion{f, LessOrEqual, threshold}
}

/*
GreaterThan takes a ContinuousFeature and a threshold and returns a
ContinuousCriterion satisfied by values greater than the threshold.
*/
func GreaterThan(f *ContinuousFeature, threshold float64) ContinuousCriterion {
	return &continuousCriterion{f, Greater, threshold}
}

/*
InSet takes a DiscreteFeature and some values and returns a DiscreteCriterion
satisfied by the given values.
*/
func InSet(f *DiscreteFeature, values ...string) DiscreteCriterion {
	return &discreteCriterion{f, In, normalizeValues(values)}
}

/*
NotInSet takes a DiscreteFeature and some values and returns a DiscreteCriterion
satisfied by any defined value except the given ones.
*/
func NotInSet(f *DiscreteFeature, values ...string) DiscreteCriterion {
	return &discreteCriterion{f, NotIn, normalizeValues(values)}
}

/*
NewCriterion takes a feature, an operator, a threshold and a set of values and
returns the criterion they describe: the threshold is used for LessOrEqual and
Greater operators on continuous features, the values for In and NotIn
operators on discrete features. An error is returned if the operator does
not apply to the kind of feature.
*/
func NewCriterion(f Feature, op Operator, threshold float64, values []string) (Criterion, error) {
	switch f := f.(type) {
	case *ContinuousFeature:
		switch op {
		case LessOrEqual:
			return LessOrEqualThan(f, threshold), nil
		case Greater:
			return GreaterThan(f, threshold), nil
		}
	case *DiscreteFeature:
		switch op {
		case In:
			return InSet(f, values...), nil
		case NotIn:
			return NotInSet(f, values...), nil
		}
	default:
		return nil, fmt.Errorf("unknown feature type %T for feature %v", f, f.Name())
	}
	return nil, fmt.Errorf("operator %q cannot be applied on feature %s", op, f.Name())
}

/*
Complement takes a criterion and returns the criterion satisfied by the
defined values that do not satisfy it.
*/
func Complement(c Criterion) (Criterion, error) {
	switch c := c.(type) {
	case ContinuousCriterion:
		return NewCriterion(c.Feature(), c.Operator().complement(), c.Threshold(), nil)
	case DiscreteCriterion:
		return NewCriterion(c.Feature(), c.Operator().complement(), 0, c.Values())
	}
	return nil, fmt.Errorf("unknown type of feature.Criterion %T", c)
}

/*
ParseOperator takes the symbol of an operator, as returned by its String
method, and returns the operator.
*/
func ParseOperator(s string) (Operator, error) {
	for op, symbol := range operatorSymbols {
		if symbol == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

func (op Operator) String() string {
	if s, ok := operatorSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

func (op Operator) complement() Operator {
	switch op {
	case LessOrEqual:
		return Greater
	case Greater:
		return LessOrEqual
	case In:
		return NotIn
	default:
		return In
	}
}

/*
Apply evaluates the operator on a value. LessOrEqual and Greater compare a
float64 value with the threshold, In and NotIn look a string value up in the
sorted values. Undefined (nil) values satisfy no operator, and a value of the
wrong type for the operator is an error.
*/
func (op Operator) Apply(value interface{}, threshold float64, values []string) (bool, error) {
	if value == nil {
		return false, nil
	}
	switch op {
	case LessOrEqual, Greater:
		v, ok := value.(float64)
		if !ok {
			return false, fmt.Errorf("operator %q expects float64 value, got %T value", op, value)
		}
		if op == LessOrEqual {
			return v <= threshold, nil
		}
		return v > threshold, nil
	case In, NotIn:
		v, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("operator %q expects string value, got %T value", op, value)
		}
		i := sort.SearchStrings(values, v)
		found := i < len(values) && values[i] == v
		return found == (op == In), nil
	}
	return false, fmt.Errorf("unknown operator %d", int(op))
}

/*
FormatThreshold returns the shortest string representation of a threshold that
parses back to the same float64.
*/
func FormatThreshold(t float64) string {
	return strconv.FormatFloat(t, 'g', -1, 64)
}

func (cc *continuousCriterion) Feature() Feature {
	return cc.feature
}

func (cc *continuousCriterion) Operator() Operator {
	return cc.op
}

func (cc *continuousCriterion) Threshold() float64 {
	return cc.threshold
}

/*
SatisfiedBy receives a sample as parameter and returns a boolean indicating if the
sample satisfies the criterion. It returns false if the sample does not define a
value for the feature.
*/
func (cc *continuousCriterion) SatisfiedBy(ctx context.Context, sample Sample) (bool, error) {
	val, err := sample.ValueFor(ctx, cc.feature)
	if err != nil {
		return false, err
	}
	return cc.op.Apply(val, cc.threshold, nil)
}

func (cc *continuousCriterion) String() string {
	return fmt.Sprintf("%s %s %s", cc.feature.Name(), cc.op, FormatThreshold(cc.threshold))
}

func (dc *discreteCriterion) Feature() Feature {
	return dc.feature
}

func (dc *discreteCriterion) Operator() Operator {
	return dc.op
}

func (dc *discreteCriterion) Values() []string {
	return dc.values
}

/*
SatisfiedBy receives a sample as parameter and returns a boolean indicating if the
sample satisfies the criterion. It returns false if the sample does not define a
value for the feature.
*/
func (dc *discreteCriterion) SatisfiedBy(ctx context.Context, sample Sample) (bool, error) {
	val, err := sample.ValueFor(ctx, dc.feature)
	if err != nil {
		return false, err
	}
	return dc.op.Apply(val, 0, dc.values)
}

func (dc *discreteCriterion) String() string {
	return fmt.Sprintf("%s %s {%s}", dc.feature.Name(), dc.op, strings.Join(dc.values, ", "))
}

func normalizeValues(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]bool)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	sort.Strings(result)
	return result
}
