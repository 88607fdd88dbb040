package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/dataset/csv"
	"github.com/pbanos/stratify/dataset/mongodataset"
	"github.com/pbanos/stratify/dataset/sqldataset/pgadapter"
	"github.com/pbanos/stratify/dataset/sqldataset/sqlite3adapter"
	"github.com/pbanos/stratify/feature/yaml"
	"github.com/spf13/cobra"
)

// samplesPerWrite is the number of samples handed to the output at a time
const samplesPerWrite = 100

type datasetCmdConfig struct {
	*rootCmdConfig
	dataInput     string
	inputTable    string
	metadataInput string
	dataOutput    string
	outputTable   string
}

type flushableWriter interface {
	dataset.Writer
	Flush() error
}

type flushableSampleWriter struct {
	dataset.Writer
}

func (flushableSampleWriter) Flush() error {
	return nil
}

func datasetCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &datasetCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Copy observations between files and databases",
		Long:  `Copy observations from a CSV file or a database into another, to grow trees from a database or to export observations to CSV`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			logger := config.Logger()
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			md, err := yaml.ReadMetadataFromFile(config.metadataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			output, closeOutput, err := config.outputWriter(ctx, md)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			defer closeOutput()
			input, closeInput, err := openReader(ctx, logger, config.dataInput, config.inputTable, md)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(4)
			}
			defer closeInput()
			count, err := copySamples(ctx, input, output)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(5)
			}
			err = output.Flush()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(6)
			}
			logger.Info("observations copied", "samples", count)
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV (.csv) or SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL with the observations to copy (defaults to STDIN, interpreted as CSV)")
	cmd.PersistentFlags().StringVar(&(config.inputTable), "input-table", DefaultTable, "name of the table holding the observations on a SQL database input")
	cmd.PersistentFlags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the columns of the input (required)")
	cmd.PersistentFlags().StringVarP(&(config.dataOutput), "output", "o", "", "path to a CSV (.csv) or SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL to copy the observations to (defaults to STDOUT in CSV)")
	cmd.PersistentFlags().StringVar(&(config.outputTable), "output-table", DefaultTable, "name of the table the observations are copied to on a SQL database output")
	return cmd
}

func (dcc *datasetCmdConfig) Validate() error {
	if dcc.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	if dcc.dataInput != "" && dcc.dataInput == dcc.dataOutput && dcc.inputTable == dcc.outputTable {
		return fmt.Errorf("input and output are the same")
	}
	return nil
}

/*
outputWriter returns the writer for the output flag, creating the table of
database outputs if it does not exist, and a closer to release it.
*/
func (dcc *datasetCmdConfig) outputWriter(ctx context.Context, md *yaml.Metadata) (flushableWriter, closer, error) {
	noop := func() error { return nil }
	logger := dcc.Logger()
	switch {
	case isPostgreSQL(dcc.dataOutput):
		logger.Info("opening PostgreSQL output", "table", dcc.outputTable)
		src, err := pgadapter.Open(ctx, dcc.dataOutput, dcc.outputTable, md.Subject, md.Features)
		if err != nil {
			return nil, noop, err
		}
		if err = src.CreateTable(ctx); err != nil {
			src.Close()
			return nil, noop, err
		}
		return flushableSampleWriter{src}, src.Close, nil
	case isMongoDB(dcc.dataOutput):
		logger.Info("opening MongoDB output")
		src, err := mongodataset.Dial(ctx, dcc.dataOutput, md.Subject, md.Features)
		if err != nil {
			return nil, noop, err
		}
		return flushableSampleWriter{src}, func() error { src.Close(); return nil }, nil
	case isSQLite3(dcc.dataOutput):
		logger.Info("opening SQLite3 output", "path", dcc.dataOutput, "table", dcc.outputTable)
		src, err := sqlite3adapter.Open(ctx, dcc.dataOutput, dcc.outputTable, md.Subject, md.Features)
		if err != nil {
			return nil, noop, err
		}
		if err = src.CreateTable(ctx); err != nil {
			src.Close()
			return nil, noop, err
		}
		return flushableSampleWriter{src}, src.Close, nil
	}
	f := os.Stdout
	c := noop
	if dcc.dataOutput != "" {
		var err error
		f, err = os.Create(dcc.dataOutput)
		if err != nil {
			return nil, noop, err
		}
		c = f.Close
	}
	w, err := csv.NewWriter(f, md.Subject, md.Features)
	if err != nil {
		c()
		return nil, noop, err
	}
	return w, c, nil
}

/*
copySamples writes the samples read from r onto w in batches and returns
the number of samples written.
*/
func copySamples(ctx context.Context, r dataset.Reader, w dataset.Writer) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, errs := r.Read(ctx)
	var count int
	batch := make([]dataset.Sample, 0, samplesPerWrite)
	flush := func() error {
		n, err := w.Write(ctx, batch)
		count += n
		batch = batch[:0]
		return err
	}
	for s := range samples {
		batch = append(batch, s)
		if len(batch) < samplesPerWrite {
			continue
		}
		if err := flush(); err != nil {
			cancel()
			for range samples {
			}
			return count, fmt.Errorf("writing samples: %w", err)
		}
	}
	if err := <-errs; err != nil {
		return count, fmt.Errorf("reading samples: %w", err)
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return count, fmt.Errorf("writing samples: %w", err)
		}
	}
	return count, nil
}
