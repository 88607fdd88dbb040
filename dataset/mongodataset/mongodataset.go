/*
Package mongodataset provides a source of samples stored
on a MongoDB collection, one document per sample.
*/
package mongodataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	mgo "gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

const (
	samplesCollectionName = "samples"
)

/*
Source is a dataset.Reader and dataset.Writer on the samples collection of
the default database of a MongoDB session.
*/
type Source struct {
	session      *mgo.Session
	subjectField string
	features     []feature.Feature
	criteria     []feature.Criterion
}

/*
Open takes a MongoDB database session, the name of the field holding the
subject of every sample and the features and returns a Source that works on
the default database for that session or an error if it fails to ensure the
indexes of its collection.
*/
func Open(ctx context.Context, session *mgo.Session, subjectField string, features []feature.Feature) (*Source, error) {
	s := &Source{session: session, subjectField: subjectField, features: features}
	err := s.ensureIndexes()
	if err != nil {
		return nil, err
	}
	return s, nil
}

/*
Dial takes a MongoDB URL, the name of the subject field and the features
and returns a Source on a new session to the database in the URL.
*/
func Dial(ctx context.Context, url, subjectField string, features []feature.Feature) (*Source, error) {
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	s, err := Open(ctx, session, subjectField, features)
	if err != nil {
		session.Close()
		return nil, err
	}
	return s, nil
}

/*
Close closes the session of the source.
*/
func (s *Source) Close() {
	s.session.Close()
}

/*
SubsetWith takes some criteria and returns a Source that only reads the
samples of the subjects whose subject-level values satisfy all of them: the
mean of their values for continuous features and their lowest value for
discrete features, which is the single value they share on consistent
data.
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
Write takes a slice of samples and inserts them on the collection, returning
the number of samples inserted or an error.
*/
func (s *Source) Write(ctx context.Context, samples []dataset.Sample) (int, error) {
	docs := make([]interface{}, 0, len(samples))
	for _, sample := range samples {
		doc := bson.M{s.subjectField: sample.SubjectID()}
		for _, f := range s.features {
			value, err := sample.ValueFor(ctx, f)
			if err != nil {
				return 0, err
			}
			if value != nil {
				doc[f.Name()] = value
			}
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	err := s.samplesCollection().Insert(docs...)
	if err != nil {
		return 0, err
	}
	return len(samples), nil
}

/*
Read returns a channel with the samples on the collection that satisfy the
criteria of the source, sorted by subject, and a channel for the error that
may happen reading them.
*/
func (s *Source) Read(ctx context.Context) (<-chan dataset.Sample, <-chan error) {
	samples := make(chan dataset.Sample)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(samples)
		query, err := s.query()
		if err != nil {
			errs <- err
			return
		}
		iter := s.samplesCollection().Find(query).Sort(s.subjectField).Iter()
		defer iter.Close()
		var doc bson.M
		for iter.Next(&doc) {
			sample, err := SampleFromDocument(doc, s.subjectField, s.features)
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
			doc = nil
		}
		if err := iter.Err(); err != nil {
			errs <- err
		}
	}()
	return samples, errs
}

// query returns the query for the documents of the subjects satisfying the
// criteria of the source
func (s *Source) query() (bson.M, error) {
	if len(s.criteria) == 0 {
		return bson.M{}, nil
	}
	pipeline, err := SubjectPipeline(s.subjectField, s.criteria)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	err = s.samplesCollection().Pipe(pipeline).AllowDiskUse().All(&docs)
	if err != nil {
		return nil, fmt.Errorf("selecting subjects: %w", err)
	}
	subjects := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		subjects = append(subjects, doc["_id"])
	}
	return bson.M{s.subjectField: bson.M{"$in": subjects}}, nil
}

/*
SubjectPipeline takes the name of the subject field and some criteria and
returns the aggregation pipeline that outputs a document with the subject as
_id for every subject whose subject-level values satisfy all of them.
*/
func SubjectPipeline(subjectField string, criteria []feature.Criterion) ([]bson.M, error) {
	group := bson.M{"_id": "$" + subjectField}
	conditions := make([]bson.M, 0, len(criteria))
	for i, fc := range criteria {
		field := fmt.Sprintf("c%d", i)
		value := "$" + fc.Feature().Name()
		var condition bson.M
		switch c := fc.(type) {
		case feature.ContinuousCriterion:
			group[field] = bson.M{"$avg": value}
			op := "$lte"
			if c.Operator() == feature.Greater {
				op = "$gt"
			}
			condition = bson.M{op: c.Threshold()}
		case feature.DiscreteCriterion:
			group[field] = bson.M{"$min": value}
			if c.Operator() == feature.In {
				condition = bson.M{"$in": c.Values()}
			} else {
				condition = bson.M{"$nin": c.Values(), "$ne": nil}
			}
		default:
			return nil, fmt.Errorf("unknown type of feature.Criterion %T", fc)
		}
		conditions = append(conditions, bson.M{field: condition})
	}
	pipeline := []bson.M{{"$group": group}}
	if len(conditions) > 0 {
		pipeline = append(pipeline, bson.M{"$match": bson.M{"$and": conditions}})
	}
	return append(pipeline, bson.M{"$project": bson.M{"_id": 1}}), nil
}

/*
SampleFromDocument takes a document of the samples collection, the name of
the subject field and the features and returns the sample it holds. Numeric
values are converted to float64 for continuous features, and values of
discrete features to their string representation.
*/
func SampleFromDocument(doc bson.M, subjectField string, features []feature.Feature) (dataset.Sample, error) {
	subject, ok := doc[subjectField]
	if !ok || subject == nil {
		return nil, fmt.Errorf("document %v has no %s field", doc["_id"], subjectField)
	}
	values := make(map[string]interface{}, len(features))
	for _, f := range features {
		v, ok := doc[f.Name()]
		if !ok || v == nil {
			continue
		}
		switch f.(type) {
		case *feature.ContinuousFeature:
			switch tv := v.(type) {
			case float64:
				values[f.Name()] = tv
			case int:
				values[f.Name()] = float64(tv)
			case int64:
				values[f.Name()] = float64(tv)
			default:
				return nil, fmt.Errorf("document %v has %T value for continuous feature %s", doc["_id"], v, f.Name())
			}
		default:
			if fv, ok := v.(float64); ok {
				values[f.Name()] = feature.FormatThreshold(fv)
				continue
			}
			values[f.Name()] = fmt.Sprint(v)
		}
	}
	return dataset.NewSample(fmt.Sprint(subject), values), nil
}

func (s *Source) ensureIndexes() error {
	names := append([]string{s.subjectField}, feature.Names(s.features)...)
	for _, name := range names {
		if name == "_id" {
			return fmt.Errorf("invalid field name %q: reserved collection field", "_id")
		}
		if strings.ContainsAny(name, ".$") {
			return fmt.Errorf("invalid field name %q: contains reserved characters %q or %q", name, ".", "$")
		}
		index := mgo.Index{
			Key:        []string{name},
			Background: true,
			Sparse:     true,
		}
		err := s.samplesCollection().EnsureIndex(index)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) samplesCollection() *mgo.Collection {
	return s.session.DB("").C(samplesCollectionName)
}
