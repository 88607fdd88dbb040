package stratify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/queue"
	"github.com/pbanos/stratify/tree"
	"github.com/pbanos/stratify/variability"
	"golang.org/x/sync/errgroup"
)

const emptyQueueSleep = 10 * time.Millisecond

/*
Splitter grows a stratification tree for a dataset with a validated
configuration. Build it with New and grow the tree with Fit.
*/
type Splitter struct {
	config     Config
	dataset    dataset.Dataset
	covariates []feature.Feature
	features   []feature.Feature
	strategy   *Strategy
	queue      queue.Queue
	nodeStore  tree.NodeStore
	logger     *slog.Logger
	lock       sync.Mutex
	tree       *tree.Tree
}

/*
Option customizes a Splitter on New
*/
type Option func(*Splitter)

/*
WithLogger returns an Option to log the growth of the tree on the given
logger.
*/
func WithLogger(l *slog.Logger) Option {
	return func(s *Splitter) {
		s.logger = l
	}
}

/*
WithMetrics returns an Option to record the growth of the tree on the given
Metrics.
*/
func WithMetrics(m *Metrics) Option {
	return func(s *Splitter) {
		s.strategy.Metrics = m
	}
}

/*
WithQueue returns an Option to grow the tree through the given queue
instead of an in-memory one. The queue is not stopped by the Splitter.
*/
func WithQueue(q queue.Queue) Option {
	return func(s *Splitter) {
		s.queue = q
	}
}

/*
WithNodeStore returns an Option to keep the nodes of the tree on the given
store instead of an in-memory one.
*/
func WithNodeStore(ns tree.NodeStore) Option {
	return func(s *Splitter) {
		s.nodeStore = ns
	}
}

/*
WithPruner returns an Option to decide with the given Pruner whether the
best partition of a node is performed, instead of requiring it to improve
the IOI by more than Config.MinimumImprovement.
*/
func WithPruner(p Pruner) Option {
	return func(s *Splitter) {
		s.strategy.Pruner = p
	}
}

/*
New takes a context.Context, a dataset, a configuration and some options
and returns a Splitter for them, or a *ConfigurationError if the
configuration is not valid for the dataset. No tree is grown until Fit is
called.
*/
func New(ctx context.Context, ds dataset.Dataset, cfg Config, opts ...Option) (*Splitter, error) {
	covariates, features, visit, err := cfg.Validate(ctx, ds)
	if err != nil {
		return nil, err
	}
	s := &Splitter{
		config:     cfg,
		dataset:    ds,
		covariates: covariates,
		features:   features,
		strategy: &Strategy{
			Pruner:                  MinimumImprovementPruner(cfg.MinimumImprovement),
			MinSubjectsPerLeaf:      cfg.MinSubjectsPerLeaf,
			MaxDepth:                cfg.MaxDepth,
			ExhaustiveCategoryLimit: cfg.ExhaustiveCategoryLimit,
		},
	}
	if visit != nil {
		s.strategy.IOI = func(ctx context.Context, ds dataset.Dataset, features []feature.Feature) (map[string]float64, error) {
			return variability.IOIByVisit(ctx, ds, features, visit)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.strategy.Logger = s.logger
	return s, nil
}

/*
Fit grows the tree, or returns the tree grown by a previous successful
call. It returns an error if the context is cancelled or the tree cannot
be stored.
*/
func (s *Splitter) Fit(ctx context.Context) (*tree.Tree, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tree != nil {
		return s.tree, nil
	}
	ns := s.nodeStore
	if ns == nil {
		ns = tree.NewMemoryNodeStore()
	}
	q := s.queue
	if q == nil {
		q = queue.New()
		defer q.Stop(ctx)
	}
	workers := s.config.Workers
	if workers < 1 {
		workers = 1
	}
	start := time.Now()
	s.logger.Info("growing tree", "covariates", feature.Names(s.covariates), "features", feature.Names(s.features), "workers", workers)
	t, err := Seed(ctx, s.covariates, s.features, s.dataset, q, ns)
	if err != nil {
		return nil, fmt.Errorf("seeding tree: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return Work(gctx, t, q, s.strategy, emptyQueueSleep)
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, fmt.Errorf("growing tree: %w", err)
	}
	leaves, err := t.Leaves(ctx)
	if err != nil {
		return nil, fmt.Errorf("growing tree: %w", err)
	}
	s.logger.Info("tree grown", "leaves", len(leaves), "duration", time.Since(start))
	s.tree = t
	return t, nil
}

/*
Tree returns the tree grown by Fit, or nil if Fit has not succeeded yet.
*/
func (s *Splitter) Tree() *tree.Tree {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tree
}
