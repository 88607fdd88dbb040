package stratify

import (
	"context"
	"fmt"
	"math"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/queue"
	"github.com/pbanos/stratify/tree"
	"github.com/pbanos/stratify/variability"
	"gonum.org/v1/gonum/stat"
)

// MaxExhaustiveCategories is the maximum number of values of a discrete
// covariate for which every bipartition can be enumerated
const MaxExhaustiveCategories = 12

/*
Partition represents a partition of the subjects of a node according to a
covariate into two subtrees, with the combined objective of the subtrees
and its improvement over the node's IOI
*/
type Partition struct {
	Feature feature.Feature
	// The tasks to develop the left and right subtrees, in that order
	Tasks []*queue.Task
	// The subject-weighted mean of the IOI of the subtrees
	Objective float64
	// The IOI of the partitioned node minus Objective
	Improvement float64
}

/*
Candidate is a pair of complementary criteria on a covariate that split
the subjects of a node in two.
*/
type Candidate struct {
	Left  feature.Criterion
	Right feature.Criterion
}

func (c Candidate) String() string {
	return fmt.Sprintf("%v | %v", c.Left, c.Right)
}

/*
Candidates takes a context.Context, a dataset, a covariate and the
exhaustive category limit and returns the candidate splits of the dataset's
subjects on the covariate, in enumeration order.

For continuous covariates, thresholds are the midpoints between consecutive
distinct subject-level values, ascending, with a left criterion <= and a
right criterion >.

For discrete covariates with at most limit (and at most
MaxExhaustiveCategories) distinct values, every bipartition of the values
is enumerated once through the subset that contains the first value. With
more values, each value is put in against the rest in lexical order, skipping
the mirrored candidate when only two values are present.
*/
func Candidates(ctx context.Context, ds dataset.Dataset, f feature.Feature, limit int) ([]Candidate, error) {
	values, err := ds.FeatureValues(ctx, f)
	if err != nil {
		return nil, err
	}
	switch f := f.(type) {
	case *feature.ContinuousFeature:
		return continuousCandidates(f, values), nil
	case *feature.DiscreteFeature:
		return discreteCandidates(f, values, limit), nil
	}
	return nil, fmt.Errorf("unknown feature type %T for feature %v", f, f.Name())
}

func continuousCandidates(f *feature.ContinuousFeature, values []interface{}) []Candidate {
	var floatValues []float64
	for _, v := range values {
		if vf, ok := v.(float64); ok {
			floatValues = append(floatValues, vf)
		}
	}
	if len(floatValues) < 2 {
		return nil
	}
	candidates := make([]Candidate, 0, len(floatValues)-1)
	for i, vf := range floatValues[1:] {
		threshold := (floatValues[i] + vf) / 2.0
		candidates = append(candidates, Candidate{
			Left:  feature.LessOrEqualThan(f, threshold),
			Right: feature.GreaterThan(f, threshold),
		})
	}
	return candidates
}

func discreteCandidates(f *feature.DiscreteFeature, values []interface{}, limit int) []Candidate {
	var stringValues []string
	for _, v := range values {
		if vs, ok := v.(string); ok {
			stringValues = append(stringValues, vs)
		}
	}
	n := len(stringValues)
	if n < 2 {
		return nil
	}
	var candidates []Candidate
	if n <= limit && n <= MaxExhaustiveCategories {
		rest := stringValues[1:]
		full := 1<<uint(len(rest)) - 1
		for mask := 0; mask < full; mask++ {
			subset := []string{stringValues[0]}
			for i, v := range rest {
				if mask&(1<<uint(i)) != 0 {
					subset = append(subset, v)
				}
			}
			candidates = append(candidates, Candidate{
				Left:  feature.InSet(f, subset...),
				Right: feature.NotInSet(f, subset...),
			})
		}
		return candidates
	}
	for i, v := range stringValues {
		if n == 2 && i == 1 {
			break
		}
		candidates = append(candidates, Candidate{
			Left:  feature.InSet(f, v),
			Right: feature.NotInSet(f, v),
		})
	}
	return candidates
}

/*
partition takes a context.Context, a node with its dataset, the measured
features and a candidate and returns the partition of the dataset it
defines, or nil if any of its subtrees would have less than the minimum
number of subjects per leaf.
*/
func (s *Strategy) partition(ctx context.Context, n *tree.Node, ds dataset.Dataset, features []feature.Feature, f feature.Feature, c Candidate) (*Partition, error) {
	tasks := make([]*queue.Task, 0, 2)
	for _, fc := range []feature.Criterion{c.Left, c.Right} {
		subset, err := ds.SubsetWith(ctx, fc)
		if err != nil {
			return nil, fmt.Errorf("subsetting with %v: %w", fc, err)
		}
		subjects, err := subset.CountSubjects(ctx)
		if err != nil {
			return nil, err
		}
		if subjects < s.minSubjectsPerLeaf() {
			return nil, nil
		}
		tasks = append(tasks, &queue.Task{
			Node:    &tree.Node{FeatureCriterion: fc},
			Dataset: subset,
		})
	}
	for _, t := range tasks {
		err := s.describe(ctx, t.Node, t.Dataset, features)
		if err != nil {
			return nil, err
		}
	}
	objective := weightedObjective(tasks[0].Node, tasks[1].Node)
	return &Partition{
		Feature:     f,
		Tasks:       tasks,
		Objective:   objective,
		Improvement: n.IOI - objective,
	}, nil
}

/*
bestPartition takes a context.Context, a task and a tree and returns the
feasible partition of the task's dataset with the lowest objective over all
the tree's covariates, sorted by name, or nil if there is no feasible
partition. On ties the partition enumerated first is kept.
*/
func (s *Strategy) bestPartition(ctx context.Context, task *queue.Task, t *tree.Tree) (*Partition, error) {
	var best *Partition
	var evaluated, infeasible int
	defer func() {
		s.Metrics.candidates(evaluated, infeasible)
	}()
	for _, name := range feature.Names(t.Covariates) {
		f := feature.Lookup(t.Covariates, name)
		candidates, err := Candidates(ctx, task.Dataset, f, s.exhaustiveCategoryLimit())
		if err != nil {
			return nil, fmt.Errorf("enumerating candidates on %s: %w", name, err)
		}
		for _, c := range candidates {
			err = ctx.Err()
			if err != nil {
				return nil, err
			}
			p, err := s.partition(ctx, task.Node, task.Dataset, t.Features, f, c)
			if err != nil {
				return nil, err
			}
			if p == nil {
				infeasible++
				continue
			}
			evaluated++
			if math.IsNaN(p.Objective) {
				continue
			}
			if best == nil || p.Objective < best.Objective {
				best = p
			}
		}
	}
	return best, nil
}

/*
describe takes a context.Context, a node, its dataset and the measured
features and sets the subject and sample counts and the IOI of the node.
*/
func (s *Strategy) describe(ctx context.Context, n *tree.Node, ds dataset.Dataset, features []feature.Feature) error {
	subjects, err := ds.CountSubjects(ctx)
	if err != nil {
		return err
	}
	samples, err := ds.Count(ctx)
	if err != nil {
		return err
	}
	iois, err := s.ioi(ctx, ds, features)
	if err != nil {
		return fmt.Errorf("computing IOI of node %s: %w", n.ID, err)
	}
	n.Subjects = subjects
	n.Samples = samples
	n.FeatureIOI = iois
	n.IOI = variability.Aggregate(iois)
	return nil
}

func weightedObjective(nodes ...*tree.Node) float64 {
	iois := make([]float64, 0, len(nodes))
	weights := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		if math.IsInf(n.IOI, 1) {
			return math.Inf(1)
		}
		iois = append(iois, n.IOI)
		weights = append(weights, float64(n.Subjects))
	}
	return stat.Mean(iois, weights)
}
