/*
Package json provides the JSON encoding of feature criteria, as used on leaf
summaries and growth tasks.
*/
package json

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pbanos/stratify/feature"
)

/*
CriteriaEncodeDecoder is an interface for objects
that allow encoding criteria into slices of
bytes and decoding them back to criteria.
*/
type CriteriaEncodeDecoder interface {

	//Encode receives a feature.Criterion
	// and returns a slice of bytes with the criterion
	//encoded or an error if the encoding could not
	//be performed for some reason.
	Encode(feature.Criterion) ([]byte, error)

	//Decode receives a slice of bytes
	//and returns a feature.Criterion decoded from the
	//slice of bytes or an error if the decoding
	//could not be performed for some reason.
	Decode([]byte) (feature.Criterion, error)
}

/*
Condition is the serializable form of a feature.Criterion: the name of the
feature, the symbol of the operator and either a threshold, formatted as a
string so that infinities survive, or a set of values.
*/
type Condition struct {
	Feature   string   `json:"f" yaml:"f"`
	Operator  string   `json:"op" yaml:"op"`
	Threshold string   `json:"t,omitempty" yaml:"t,omitempty"`
	Values    []string `json:"vs,omitempty" yaml:"vs,omitempty"`
}

type jsonCriteriaEncodeDecoder []feature.Feature

// NewCriteriaEncodeDecoder takes a slice of feature.Feature and returns a
// CriteriaEncodeDecoder that marshals and unmarshals
// criteria into/from slices of bytes as JSON.
// Specifically, criteria are encoded as a JSON object
// with an "f" property set to the name of the feature
// of the criterion and an "op" property with the operator:
//  * If the operator is "<=" or ">" it will have a "t"
//  property with the threshold
//  * If the operator is "in" or "not in" it will have a "vs"
//  property with the set of values
func NewCriteriaEncodeDecoder(features []feature.Feature) CriteriaEncodeDecoder {
	return jsonCriteriaEncodeDecoder(features)
}

/*
NewCondition takes a feature.Criterion and returns its Condition.
*/
func NewCondition(fc feature.Criterion) (*Condition, error) {
	switch c := fc.(type) {
	case feature.ContinuousCriterion:
		return &Condition{
			Feature:   c.Feature().Name(),
			Operator:  c.Operator().String(),
			Threshold: feature.FormatThreshold(c.Threshold()),
		}, nil
	case feature.DiscreteCriterion:
		values := c.Values()
		if values == nil {
			values = []string{}
		}
		return &Condition{
			Feature:  c.Feature().Name(),
			Operator: c.Operator().String(),
			Values:   values,
		}, nil
	}
	return nil, fmt.Errorf("unknown type of feature.Criterion %T", fc)
}

func (jced jsonCriteriaEncodeDecoder) Encode(fc feature.Criterion) ([]byte, error) {
	c, err := NewCondition(fc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func (jced jsonCriteriaEncodeDecoder) Decode(data []byte) (feature.Criterion, error) {
	c := &Condition{}
	err := json.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}
	return c.Criterion(jced)
}

/*
Criterion takes a slice of features and returns the feature.Criterion that
the condition describes on the feature with its name.
*/
func (c *Condition) Criterion(features []feature.Feature) (feature.Criterion, error) {
	f := feature.Lookup(features, c.Feature)
	if f == nil {
		return nil, fmt.Errorf("unknown feature '%s'", c.Feature)
	}
	op, err := feature.ParseOperator(c.Operator)
	if err != nil {
		return nil, fmt.Errorf("decoding condition on %s: %w", c.Feature, err)
	}
	var threshold float64
	if op == feature.LessOrEqual || op == feature.Greater {
		threshold, err = strconv.ParseFloat(c.Threshold, 64)
		if err != nil {
			return nil, fmt.Errorf("decoding threshold of condition on %s: %w", c.Feature, err)
		}
	}
	return feature.NewCriterion(f, op, threshold, c.Values)
}
