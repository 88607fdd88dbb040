package mongodataset

import (
	"context"
	"testing"

	"github.com/pbanos/stratify/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

var (
	age      = feature.NewContinuousFeature("age")
	sex      = feature.NewDiscreteFeature("sex", []string{"0", "1"})
	features = []feature.Feature{age, sex}
)

func TestSubjectPipeline(t *testing.T) {
	p, err := SubjectPipeline("subject", nil)
	require.NoError(t, err)
	assert.Equal(t, []bson.M{
		{"$group": bson.M{"_id": "$subject"}},
		{"$project": bson.M{"_id": 1}},
	}, p)

	p, err = SubjectPipeline("subject", []feature.Criterion{feature.GreaterThan(age, 40), feature.NotInSet(sex, "1"), feature.InSet(sex, "0")})
	require.NoError(t, err)
	assert.Equal(t, []bson.M{
		{"$group": bson.M{
			"_id": "$subject",
			"c0":  bson.M{"$avg": "$age"},
			"c1":  bson.M{"$min": "$sex"},
			"c2":  bson.M{"$min": "$sex"},
		}},
		{"$match": bson.M{"$and": []bson.M{
			{"c0": bson.M{"$gt": 40.0}},
			{"c1": bson.M{"$nin": []string{"1"}, "$ne": nil}},
			{"c2": bson.M{"$in": []string{"0"}}},
		}}},
		{"$project": bson.M{"_id": 1}},
	}, p)
}

func TestQueryWithoutCriteria(t *testing.T) {
	q, err := (&Source{subjectField: "subject", features: features}).query()
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, q)
}

func TestSampleFromDocument(t *testing.T) {
	ctx := context.Background()
	s, err := SampleFromDocument(bson.M{"_id": bson.NewObjectId(), "subject": 7, "age": 30, "sex": 1.0, "other": "x"}, "subject", features)
	require.NoError(t, err)
	assert.Equal(t, "7", s.SubjectID())
	v, err := s.ValueFor(ctx, age)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)
	v, err = s.ValueFor(ctx, sex)
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = SampleFromDocument(bson.M{"age": 30.0}, "subject", features)
	assert.Error(t, err)
	_, err = SampleFromDocument(bson.M{"subject": "a", "age": "old"}, "subject", features)
	assert.Error(t, err)
}

func TestSubsetWithDoesNotAlterSource(t *testing.T) {
	s := &Source{subjectField: "subject", features: features}
	subset := s.SubsetWith(feature.InSet(sex, "0"))
	assert.Empty(t, s.criteria)
	assert.Len(t, subset.criteria, 1)
}
