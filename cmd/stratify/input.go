package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/dataset/csv"
	"github.com/pbanos/stratify/dataset/mongodataset"
	"github.com/pbanos/stratify/dataset/sqldataset/pgadapter"
	"github.com/pbanos/stratify/dataset/sqldataset/sqlite3adapter"
	"github.com/pbanos/stratify/feature"
	featurejson "github.com/pbanos/stratify/feature/json"
	"github.com/pbanos/stratify/feature/yaml"
	"github.com/pbanos/stratify/tree"
	treejson "github.com/pbanos/stratify/tree/json"
)

// DefaultTable is the table observations are read from on SQL databases
const DefaultTable = "observations"

// closer releases the source a dataset was read from
type closer func() error

/*
openReader takes the input flag, the name of the table for database inputs
and the metadata describing the columns of the observation table and returns
a reader of the samples of the input: a PostgreSQL database for
postgresql:// URLs, a MongoDB database for mongodb:// URLs, a SQLite3
database for paths ending in .db and a CSV file otherwise, STDIN if the
input is empty. The returned closer must be called once the reader is no
longer needed.
*/
func openReader(ctx context.Context, logger *slog.Logger, input, table string, md *yaml.Metadata) (dataset.Reader, closer, error) {
	noop := func() error { return nil }
	if table == "" {
		table = DefaultTable
	}
	switch {
	case isPostgreSQL(input):
		logger.Info("opening PostgreSQL dataset", "table", table)
		src, err := pgadapter.Open(ctx, input, table, md.Subject, md.Features)
		if err != nil {
			return nil, noop, fmt.Errorf("opening PostgreSQL dataset: %w", err)
		}
		return src, src.Close, nil
	case isMongoDB(input):
		logger.Info("opening MongoDB dataset")
		src, err := mongodataset.Dial(ctx, input, md.Subject, md.Features)
		if err != nil {
			return nil, noop, fmt.Errorf("opening MongoDB dataset: %w", err)
		}
		return src, func() error { src.Close(); return nil }, nil
	case isSQLite3(input):
		logger.Info("opening SQLite3 dataset", "path", input, "table", table)
		src, err := sqlite3adapter.Open(ctx, input, table, md.Subject, md.Features)
		if err != nil {
			return nil, noop, fmt.Errorf("opening SQLite3 dataset: %w", err)
		}
		return src, src.Close, nil
	}
	if input == "" {
		logger.Info("reading CSV dataset from STDIN")
	} else {
		logger.Info("reading CSV dataset", "path", input)
	}
	return csv.NewReader(input, md.Subject, md.Features), noop, nil
}

/*
loadDataset reads all the samples of the input, as openReader interprets
it, into a dataset.
*/
func loadDataset(ctx context.Context, logger *slog.Logger, input, table string, md *yaml.Metadata) (dataset.Dataset, closer, error) {
	r, c, err := openReader(ctx, logger, input, table, md)
	if err != nil {
		return nil, c, err
	}
	ds, err := dataset.Load(ctx, md.Features, r)
	if err != nil {
		c()
		return nil, func() error { return nil }, err
	}
	return ds, c, nil
}

func isPostgreSQL(uri string) bool {
	return strings.HasPrefix(uri, "postgresql://") || strings.HasPrefix(uri, "postgres://")
}

func isMongoDB(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://")
}

func isSQLite3(uri string) bool {
	return strings.HasSuffix(uri, ".db")
}

func nodeEncodeDecoder(features []feature.Feature) treejson.NodeEncodeDecoder {
	return treejson.NewNodeEncodeDecoder(featurejson.NewCriteriaEncodeDecoder(features), features)
}

func loadTree(ctx context.Context, filepath string, features []feature.Feature) (*tree.Tree, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading tree in JSON from %s: %w", filepath, err)
	}
	defer f.Close()
	t := &tree.Tree{NodeStore: tree.NewMemoryNodeStore()}
	err = treejson.ReadJSONTree(ctx, t, nodeEncodeDecoder(features), features, f)
	if err != nil {
		err = fmt.Errorf("parsing tree in JSON from %s: %w", filepath, err)
	}
	return t, err
}

// withOutput calls f with the file at path, created or truncated, or STDOUT
// if path is empty
func withOutput(path string, f func(io.Writer) error) error {
	if path == "" {
		return f(os.Stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	err = f(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}
