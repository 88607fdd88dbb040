/*
Package csv provides functions to read observation tables from CSV
documents into datasets and to write samples back as CSV rows.
*/
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

// UndefinedValue is the CSV value for an undefined feature value
const UndefinedValue = "?"

/*
DatasetGenerator is a function that takes a slice of features and a slice of
samples and generates a dataset with them.
*/
type DatasetGenerator func([]feature.Feature, []dataset.Sample) dataset.Dataset

/*
ReadDataset takes an io.Reader for a CSV stream, the name of the subject
identifier column, a slice of features and a DatasetGenerator and returns a
dataset.Dataset built with the DatasetGenerator and the samples parsed from
the reader or an error.

The header or first row of the CSV content is expected to contain the subject
column and the names of the features in the given slice, in any order.
Columns that are neither are ignored. The rest of the rows should consist of
valid values for the features and/or the '?' string to indicate an undefined
value. The subject column must be defined on every row.
*/
func ReadDataset(reader io.Reader, subjectColumn string, features []feature.Feature, dg DatasetGenerator) (dataset.Dataset, error) {
	samples := []dataset.Sample{}
	err := ReadDatasetBySample(reader, subjectColumn, features, func(_ int, s dataset.Sample) (bool, error) {
		samples = append(samples, s)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return dg(features, samples), nil
}

/*
ReadDatasetBySample takes an io.Reader for a CSV stream, the name of the
subject identifier column, a slice of features and a lambda function on an
integer and a dataset.Sample that returns a boolean value.
It parses the samples from the reader and for each it calls the lambda function
with the sample and its index as parameters. If the lambda function returns true,
it will continue processing the next sample, otherwise it will stop. An error is
returned if something goes wrong when reading the file or parsing a sample.
*/
func ReadDatasetBySample(reader io.Reader, subjectColumn string, features []feature.Feature, lambda func(int, dataset.Sample) (bool, error)) error {
	r := csv.NewReader(reader)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	subjectIndex, columns, err := parseCSVHeader(header, subjectColumn, features)
	if err != nil {
		return err
	}
	for l := 2; ; l++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		sample, err := parseSampleFromCSVRow(row, subjectIndex, columns)
		if err != nil {
			return fmt.Errorf("parsing line %d: %w", l, err)
		}
		ok, err := lambda(l-2, sample)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

/*
ReadDatasetFromFilePath takes a filepath string, the name of the subject
identifier column, a slice of features and a DatasetGenerator, opens the file
to which the filepath points to and uses ReadDataset to return a
dataset.Dataset or an error read from it. If the filepath is "" os.Stdin is
read instead.
*/
func ReadDatasetFromFilePath(filepath, subjectColumn string, features []feature.Feature, dg DatasetGenerator) (dataset.Dataset, error) {
	var ds dataset.Dataset
	err := withFile(filepath, func(f io.Reader) error {
		var err error
		ds, err = ReadDataset(f, subjectColumn, features, dg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("parsing CSV file %s: %w", filepath, err)
	}
	return ds, nil
}

/*
ReadDatasetBySampleFromFilePath takes a filepath string for a CSV stream, the
name of the subject identifier column, a slice of features and a lambda
function, opens the file for reading (if the filepath is "" os.Stdin is used
instead) and uses ReadDatasetBySample on it.
*/
func ReadDatasetBySampleFromFilePath(filepath, subjectColumn string, features []feature.Feature, lambda func(int, dataset.Sample) (bool, error)) error {
	return withFile(filepath, func(f io.Reader) error {
		return ReadDatasetBySample(f, subjectColumn, features, lambda)
	})
}

/*
NewReader takes a filepath string, the name of the subject identifier column
and a slice of features and returns a dataset.Reader that sends the samples
on the CSV file through its channel.
*/
func NewReader(filepath, subjectColumn string, features []feature.Feature) dataset.Reader {
	return &fileReader{filepath, subjectColumn, features}
}

type fileReader struct {
	filepath      string
	subjectColumn string
	features      []feature.Feature
}

func (fr *fileReader) Read(ctx context.Context) (<-chan dataset.Sample, <-chan error) {
	samples := make(chan dataset.Sample)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(samples)
		err := ReadDatasetBySampleFromFilePath(fr.filepath, fr.subjectColumn, fr.features, func(_ int, s dataset.Sample) (bool, error) {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case samples <- s:
				return true, nil
			}
		})
		if err != nil {
			errs <- err
		}
	}()
	return samples, errs
}

func withFile(filepath string, lambda func(io.Reader) error) error {
	if filepath == "" {
		return lambda(os.Stdin)
	}
	f, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("opening observation table: %w", err)
	}
	defer f.Close()
	return lambda(f)
}

func parseCSVHeader(header []string, subjectColumn string, features []feature.Feature) (int, map[int]feature.Feature, error) {
	subjectIndex := -1
	columns := make(map[int]feature.Feature)
	for i, name := range header {
		if name == subjectColumn {
			subjectIndex = i
			continue
		}
		if f := feature.Lookup(features, name); f != nil {
			columns[i] = f
		}
	}
	if subjectIndex < 0 {
		return 0, nil, fmt.Errorf("parsing header: missing subject column %s", subjectColumn)
	}
	return subjectIndex, columns, nil
}

func parseSampleFromCSVRow(row []string, subjectIndex int, columns map[int]feature.Feature) (dataset.Sample, error) {
	subjectID := row[subjectIndex]
	if subjectID == "" || subjectID == UndefinedValue {
		return nil, fmt.Errorf("undefined subject identifier")
	}
	featureValues := make(map[string]interface{})
	for i, f := range columns {
		v := row[i]
		if v == UndefinedValue {
			featureValues[f.Name()] = nil
			continue
		}
		value, err := f.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for feature %s: %w", v, f.Name(), err)
		}
		featureValues[f.Name()] = value
	}
	return dataset.NewSample(subjectID, featureValues), nil
}
