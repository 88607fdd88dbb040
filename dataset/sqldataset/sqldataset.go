/*
Package sqldataset provides a source of samples stored on a table of an SQL
database, one row per sample: a column for the subject of the sample and a
column for every feature, REAL for continuous features and TEXT for
discrete ones.

Dialect differences are handled by an Adapter, see packages pgadapter and
sqlite3adapter.
*/
package sqldataset

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
)

const (
	// MaxSampleInsertionsPerStatement is the maximum number
	// of samples inserted with a single insert command by
	// the Write method. Writing more will result in making
	// more insertion commands
	MaxSampleInsertionsPerStatement = 10
)

/*
Adapter is an interface providing what differs between SQL databases.

Its DriverName method returns the name of the database/sql driver.

Its QuoteIdentifier method takes the name of a table or feature and returns
it quoted to be used as an identifier, or an error if it is not valid.

Its ContinuousColumnType and DiscreteColumnType methods return the column
types used to store continuous and discrete values.
*/
type Adapter interface {
	DriverName() string
	QuoteIdentifier(string) (string, error)
	ContinuousColumnType() string
	DiscreteColumnType() string
}

/*
Source is a dataset.Reader and dataset.Writer on a table of an SQL database.
*/
type Source struct {
	db            *sqlx.DB
	adapter       Adapter
	table         string
	subjectColumn string
	features      []feature.Feature
	criteria      []feature.Criterion
}

/*
Open takes a context, an Adapter, a data source name, the name of the table,
the name of the subject column and the features and returns a Source on a
new connection to the database, or an error if it cannot connect.
*/
func Open(ctx context.Context, adapter Adapter, dsn, table, subjectColumn string, features []feature.Feature) (*Source, error) {
	db, err := sqlx.ConnectContext(ctx, adapter.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", adapter.DriverName(), err)
	}
	s, err := New(db, adapter, table, subjectColumn, features)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

/*
New takes an open database, an Adapter, the name of the table, the name of
the subject column and the features and returns a Source on them, or an
error if any of the names cannot be used as an identifier.
*/
func New(db *sqlx.DB, adapter Adapter, table, subjectColumn string, features []feature.Feature) (*Source, error) {
	names := append([]string{table, subjectColumn}, feature.Names(features)...)
	for _, name := range names {
		if _, err := adapter.QuoteIdentifier(name); err != nil {
			return nil, err
		}
	}
	if feature.Lookup(features, subjectColumn) != nil {
		return nil, fmt.Errorf("subject column %q cannot be a feature", subjectColumn)
	}
	return &Source{db: db, adapter: adapter, table: table, subjectColumn: subjectColumn, features: features}, nil
}

/*
Close closes the connection to the database.
*/
func (s *Source) Close() error {
	return s.db.Close()
}

/*
SubsetWith takes some criteria and returns a Source that only reads the
samples of the subjects whose subject-level values satisfy all of them: the
mean of their values for continuous features and their single value for
discrete features.
*/
func (s *Source) SubsetWith(criteria ...feature.Criterion) *Source {
	subset := *s
	subset.criteria = append(append([]feature.Criterion(nil), s.criteria...), criteria...)
	return &subset
}

/*
ReadSubset reads the samples of the subjects satisfying the criteria of the
source and the given ones, selecting the subjects on the database.
*/
func (s *Source) ReadSubset(ctx context.Context, criteria ...feature.Criterion) (<-chan dataset.Sample, <-chan error) {
	return s.SubsetWith(criteria...).Read(ctx)
}

/*
CreateTable creates the table of the source if it does not exist.
*/
func (s *Source) CreateTable(ctx context.Context) error {
	stmt := s.createTableStatement()
	_, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensuring table %s exists: %w", s.table, err)
	}
	return nil
}

func (s *Source) createTableStatement() string {
	var buf bytes.Buffer
	buf.WriteString("CREATE TABLE IF NOT EXISTS ")
	buf.WriteString(s.quote(s.table))
	buf.WriteString(" (")
	buf.WriteString(s.quote(s.subjectColumn))
	buf.WriteString(" ")
	buf.WriteString(s.adapter.DiscreteColumnType())
	buf.WriteString(" NOT NULL")
	for _, f := range s.features {
		columnType := s.adapter.DiscreteColumnType()
		if _, ok := f.(*feature.ContinuousFeature); ok {
			columnType = s.adapter.ContinuousColumnType()
		}
		buf.WriteString(fmt.Sprintf(", %s %s NULL", s.quote(f.Name()), columnType))
	}
	buf.WriteString(")")
	return buf.String()
}

/*
Write takes a slice of samples and inserts them on the table in a
transaction, returning the number of samples inserted or an error.
*/
func (s *Source) Write(ctx context.Context, samples []dataset.Sample) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	for chunkStart := 0; chunkStart < len(samples); chunkStart += MaxSampleInsertionsPerStatement {
		chunkEnd := chunkStart + MaxSampleInsertionsPerStatement
		if chunkEnd > len(samples) {
			chunkEnd = len(samples)
		}
		query, args, err := s.insertStatement(ctx, samples[chunkStart:chunkEnd])
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("inserting samples %d to %d: %w", chunkStart, chunkEnd, err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("committing samples: %w", err)
	}
	return len(samples), nil
}

func (s *Source) insertStatement(ctx context.Context, samples []dataset.Sample) (string, []interface{}, error) {
	var buf bytes.Buffer
	buf.WriteString("INSERT INTO ")
	buf.WriteString(s.quote(s.table))
	buf.WriteString(" (")
	buf.WriteString(s.quote(s.subjectColumn))
	for _, f := range s.features {
		buf.WriteString(", ")
		buf.WriteString(s.quote(f.Name()))
	}
	buf.WriteString(") VALUES ")
	args := make([]interface{}, 0, len(samples)*(len(s.features)+1))
	for i, sample := range samples {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString("(?")
		args = append(args, sample.SubjectID())
		for _, f := range s.features {
			v, err := sample.ValueFor(ctx, f)
			if err != nil {
				return "", nil, err
			}
			buf.WriteString(", ?")
			args = append(args, v)
		}
		buf.WriteString(")")
	}
	return s.db.Rebind(buf.String()), args, nil
}

/*
Read returns a channel with the samples on the table that satisfy the
criteria of the source, ordered by subject, and a channel for the error
that may happen reading them.
*/
func (s *Source) Read(ctx context.Context) (<-chan dataset.Sample, <-chan error) {
	samples := make(chan dataset.Sample)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(samples)
		query, args, err := s.selectStatement()
		if err != nil {
			errs <- err
			return
		}
		rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			errs <- fmt.Errorf("querying samples: %w", err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			row := make(map[string]interface{})
			err = rows.MapScan(row)
			if err != nil {
				errs <- fmt.Errorf("scanning sample: %w", err)
				return
			}
			sample, err := s.sample(row)
			if err != nil {
				errs <- err
				return
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case samples <- sample:
			}
		}
		if err = rows.Err(); err != nil {
			errs <- fmt.Errorf("reading samples: %w", err)
		}
	}()
	return samples, errs
}

// selectStatement returns the query for the samples of the source with ?
// placeholders, and its arguments
func (s *Source) selectStatement() (string, []interface{}, error) {
	var buf bytes.Buffer
	buf.WriteString("SELECT ")
	buf.WriteString(s.quote(s.subjectColumn))
	for _, f := range s.features {
		buf.WriteString(", ")
		buf.WriteString(s.quote(f.Name()))
	}
	buf.WriteString(" FROM ")
	buf.WriteString(s.quote(s.table))
	var args []interface{}
	for i, c := range s.criteria {
		condition, cargs, err := s.subjectCondition(c)
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			buf.WriteString(" WHERE ")
		} else {
			buf.WriteString(" AND ")
		}
		buf.WriteString(condition)
		args = append(args, cargs...)
	}
	buf.WriteString(" ORDER BY ")
	buf.WriteString(s.quote(s.subjectColumn))
	return buf.String(), args, nil
}

// subjectCondition returns the condition selecting the rows of the subjects
// whose subject-level value satisfies the criterion
func (s *Source) subjectCondition(c feature.Criterion) (string, []interface{}, error) {
	column := s.quote(c.Feature().Name())
	subject := s.quote(s.subjectColumn)
	var having string
	var args []interface{}
	switch c := c.(type) {
	case feature.ContinuousCriterion:
		having = fmt.Sprintf("AVG(%s) %s ?", column, c.Operator())
		args = []interface{}{c.Threshold()}
	case feature.DiscreteCriterion:
		if len(c.Values()) == 0 {
			if c.Operator() == feature.In {
				having = "1 = 0"
			} else {
				having = fmt.Sprintf("COUNT(%s) > 0", column)
			}
			break
		}
		op := "IN"
		if c.Operator() == feature.NotIn {
			op = "NOT IN"
		}
		var err error
		having, args, err = sqlx.In(fmt.Sprintf("MIN(%s) %s (?)", column, op), c.Values())
		if err != nil {
			return "", nil, err
		}
	default:
		return "", nil, fmt.Errorf("unknown type of feature.Criterion %T", c)
	}
	return fmt.Sprintf("%s IN (SELECT %s FROM %s GROUP BY %s HAVING %s)", subject, subject, s.quote(s.table), subject, having), args, nil
}

func (s *Source) sample(row map[string]interface{}) (dataset.Sample, error) {
	subjectID, err := text(row[s.subjectColumn])
	if err != nil {
		return nil, fmt.Errorf("reading subject: %w", err)
	}
	if subjectID == nil {
		return nil, fmt.Errorf("sample without subject")
	}
	values := make(map[string]interface{}, len(s.features))
	for _, f := range s.features {
		var v interface{}
		switch f.(type) {
		case *feature.ContinuousFeature:
			v, err = number(row[f.Name()])
		default:
			v, err = text(row[f.Name()])
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s of subject %v: %w", f.Name(), subjectID, err)
		}
		if v != nil {
			values[f.Name()] = v
		}
	}
	return dataset.NewSample(subjectID.(string), values), nil
}

func (s *Source) quote(name string) string {
	q, _ := s.adapter.QuoteIdentifier(name)
	return q
}

func number(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return nil, fmt.Errorf("unexpected %T value for continuous feature", v)
}

func text(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return feature.FormatThreshold(v), nil
	}
	return nil, fmt.Errorf("unexpected %T value for discrete feature", v)
}
