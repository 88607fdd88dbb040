package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

/*
Writer is a dataset.Writer that writes samples as the rows of a CSV
document.
*/
type Writer interface {
	// Write will attempt to write the given number
	// of samples and will return the actually written
	// number of samples and an error (if not all samples
	// could be written)
	Write(context.Context, []dataset.Sample) (int, error)
	// Count returns the total number of samples written
	// to the writer
	Count() int
	// Flush ensures any pending written operations finish
	// before returning. It returns an error if that cannot
	// be ensured.
	Flush() error
}

type csvWriter struct {
	count    int
	features []feature.Feature
	w        *csv.Writer
}

/*
NewWriter takes an io.Writer, the name of the subject identifier column and
a slice of features, writes the header with the subject column followed by
the features and returns a Writer that will write samples on the io.Writer.
Undefined values are written as UndefinedValue.
*/
func NewWriter(writer io.Writer, subjectColumn string, features []feature.Feature) (Writer, error) {
	w := csv.NewWriter(writer)
	record := make([]string, 0, len(features)+1)
	record = append(record, subjectColumn)
	for _, f := range features {
		record = append(record, f.Name())
	}
	err := w.Write(record)
	if err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	return &csvWriter{features: features, w: w}, nil
}

/*
WriteDataset takes a context, an io.Writer, a dataset, the name of the
subject identifier column and a slice of features and dumps the samples of
the dataset onto the writer in CSV format, with the values of the given
features only.
*/
func WriteDataset(ctx context.Context, writer io.Writer, ds dataset.Dataset, subjectColumn string, features []feature.Feature) error {
	cw, err := NewWriter(writer, subjectColumn, features)
	if err != nil {
		return err
	}
	samples, err := ds.Samples(ctx)
	if err != nil {
		return err
	}
	_, err = cw.Write(ctx, samples)
	if err != nil {
		return err
	}
	return cw.Flush()
}

func (cw *csvWriter) Count() int {
	return cw.count
}

func (cw *csvWriter) Write(ctx context.Context, samples []dataset.Sample) (int, error) {
	for n, s := range samples {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := cw.writeSample(ctx, s); err != nil {
			return n, err
		}
	}
	return len(samples), nil
}

func (cw *csvWriter) writeSample(ctx context.Context, sample dataset.Sample) error {
	record := make([]string, 0, len(cw.features)+1)
	record = append(record, sample.SubjectID())
	for _, f := range cw.features {
		v, err := sample.ValueFor(ctx, f)
		if err != nil {
			return err
		}
		switch v := v.(type) {
		case nil:
			record = append(record, UndefinedValue)
		case float64:
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		default:
			record = append(record, fmt.Sprintf("%v", v))
		}
	}
	err := cw.w.Write(record)
	if err != nil {
		return fmt.Errorf("writing CSV row for sample %d: %w", cw.count+1, err)
	}
	cw.count++
	return nil
}

func (cw *csvWriter) Flush() error {
	cw.w.Flush()
	return cw.w.Error()
}
