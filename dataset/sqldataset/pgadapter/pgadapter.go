/*
Package pgadapter provides an implementation of the
Adapter interface in the sqldataset package that works
over a PostgreSQL database.
*/
package pgadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/stratify/dataset/sqldataset"
	"github.com/pbanos/stratify/feature"

	// Import of PostgreSQL driver
	_ "github.com/lib/pq"
)

type adapter struct{}

/*
New returns an Adapter for PostgreSQL databases.
*/
func New() sqldataset.Adapter {
	return adapter{}
}

/*
Open takes a context, a PostgreSQL database connection URL, the name of the
table, the name of the subject column and the features and returns a
sqldataset.Source on the database, or an error if it fails to connect to it.
*/
func Open(ctx context.Context, url, table, subjectColumn string, features []feature.Feature) (*sqldataset.Source, error) {
	return sqldataset.Open(ctx, New(), url, table, subjectColumn, features)
}

func (adapter) DriverName() string {
	return "postgres"
}

func (adapter) QuoteIdentifier(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(name, `"`) {
		return "", fmt.Errorf(`identifier '%s' contains invalid character '"'`, name)
	}
	return fmt.Sprintf(`"%s"`, name), nil
}

func (adapter) ContinuousColumnType() string {
	return "DOUBLE PRECISION"
}

func (adapter) DiscreteColumnType() string {
	return "TEXT"
}
