/*
Package sqlite3adapter provides an implementation of the
Adapter interface in the sqldataset package that works
over a SQLite3 database.
*/
package sqlite3adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/stratify/dataset/sqldataset"
	"github.com/pbanos/stratify/feature"

	// Import of SQLite3 driver
	_ "github.com/mattn/go-sqlite3"
)

type adapter struct{}

/*
New returns an Adapter for SQLite3 databases.
*/
func New() sqldataset.Adapter {
	return adapter{}
}

/*
Open takes a context, the path to a SQLite3 database file, the name of the
table, the name of the subject column and the features and returns a
sqldataset.Source on the database, or an error if it fails to open it.
*/
func Open(ctx context.Context, path, table, subjectColumn string, features []feature.Feature) (*sqldataset.Source, error) {
	return sqldataset.Open(ctx, New(), path, table, subjectColumn, features)
}

func (adapter) DriverName() string {
	return "sqlite3"
}

func (adapter) QuoteIdentifier(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(name, "`") {
		return "", fmt.Errorf("identifier '%s' contains invalid character '`'", name)
	}
	return fmt.Sprintf("`%s`", name), nil
}

func (adapter) ContinuousColumnType() string {
	return "REAL"
}

func (adapter) DiscreteColumnType() string {
	return "TEXT"
}
