/*
Package yaml provides methods to parse feature.Feature specifications
also known as metadata, from YAML documents.
*/
package yaml

import (
	"fmt"
	"os"
	"sort"

	"github.com/pbanos/stratify/feature"
	yaml "gopkg.in/yaml.v2"
)

/*
Metadata describes the columns of an observation table: the column holding
the subject identifier, the optional column holding the visit identifier and
the features and covariates.
*/
type Metadata struct {
	Subject  string
	Visit    string
	Features []feature.Feature
}

type yamlMetadata struct {
	Subject  string                 `yaml:"subject"`
	Visit    string                 `yaml:"visit"`
	Features map[string]interface{} `yaml:"features"`
}

// DefaultSubjectColumn is the name of the subject identifier column when
// the metadata does not define one
const DefaultSubjectColumn = "subject_id"

/*
ReadMetadata takes a slice of bytes with a table specification in YML and
returns the Metadata parsed from it or an error.
The YML is expected to be an object containing a features property and
optional subject and visit properties naming the subject and visit columns.
The value for features should be an object with a property for each feature
with its name and either a string value of 'continuous' for continuous
features or a list of valid values for discrete features. Features are
returned sorted by name.
*/
func ReadMetadata(md []byte) (*Metadata, error) {
	ym := &yamlMetadata{}
	err := yaml.Unmarshal(md, ym)
	if err != nil {
		return nil, fmt.Errorf("parsing yml features: %w", err)
	}
	if ym.Features == nil {
		return nil, fmt.Errorf("metadata file has no feature information")
	}
	names := make([]string, 0, len(ym.Features))
	for fn := range ym.Features {
		names = append(names, fn)
	}
	sort.Strings(names)
	features := make([]feature.Feature, 0, len(names))
	for _, fn := range names {
		switch values := ym.Features[fn].(type) {
		case string:
			if values != "continuous" {
				return nil, fmt.Errorf("invalid feature declaration %q for feature %s", values, fn)
			}
			features = append(features, feature.NewContinuousFeature(fn))
		case []interface{}:
			stringVs := []string{}
			for _, v := range values {
				stringVs = append(stringVs, fmt.Sprintf("%v", v))
			}
			features = append(features, feature.NewDiscreteFeature(fn, stringVs))
		default:
			return nil, fmt.Errorf("invalid feature declaration of type %T for feature %s", values, fn)
		}
	}
	m := &Metadata{Subject: ym.Subject, Visit: ym.Visit, Features: features}
	if m.Subject == "" {
		m.Subject = DefaultSubjectColumn
	}
	if feature.Lookup(features, m.Subject) != nil {
		return nil, fmt.Errorf("subject column %s cannot be declared as a feature", m.Subject)
	}
	return m, nil
}

/*
ReadFeatures takes a slice of bytes with a feature specification in YML and
returns a slice of features parsed from it or an error.
*/
func ReadFeatures(md []byte) ([]feature.Feature, error) {
	m, err := ReadMetadata(md)
	if err != nil {
		return nil, err
	}
	return m.Features, nil
}

/*
ReadMetadataFromFile takes a filepath string, reads its contents and uses
ReadMetadata to parse it and return the parsed Metadata or an error.
If the file indicated by the filepath cannot be opened for reading an error
will be returned.
*/
func ReadMetadataFromFile(filepath string) (*Metadata, error) {
	md, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading features yml file %s: %w", filepath, err)
	}
	m, err := ReadMetadata(md)
	if err != nil {
		err = fmt.Errorf("parsing features yml file %s: %w", filepath, err)
	}
	return m, err
}
