package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pbanos/stratify"
	"github.com/pbanos/stratify/dataset"
	datasetjson "github.com/pbanos/stratify/dataset/json"
	"github.com/pbanos/stratify/feature"
	featurejson "github.com/pbanos/stratify/feature/json"
	"github.com/pbanos/stratify/feature/yaml"
	queuejson "github.com/pbanos/stratify/queue/json"
	"github.com/pbanos/stratify/queue/redisq"
	"github.com/pbanos/stratify/summary"
	"github.com/pbanos/stratify/tree/redisstore"
	treejson "github.com/pbanos/stratify/tree/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	redis "gopkg.in/redis.v5"
)

type growCmdConfig struct {
	*rootCmdConfig
	configInput             string
	dataInput               string
	table                   string
	metadataInput           string
	output                  string
	summaryOutput           string
	summaryFormat           string
	metricsOutput           string
	covariates              []string
	features                []string
	minSubjectsPerLeaf      int
	maxDepth                int
	exhaustiveCategoryLimit int
	minimumImprovement      float64
	workers                 int
	visit                   string
	redisAddr               string
	redisPrefix             string
}

func growCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &growCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "grow",
		Short: "Grow a stratification tree from a set of observations",
		Long:  `Grow a tree that splits subjects on covariates into groups minimizing the IOI of the measured features.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			logger := config.Logger()
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			settings, err := loadGrowSettings(config.configInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			settings.apply(cmd.Flags(), config)
			logger.Debug("reading metadata", "path", config.metadataInput)
			md, err := yaml.ReadMetadataFromFile(config.metadataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			if settings.Visit == "" {
				settings.Visit = md.Visit
			}
			r, closeInput, err := openReader(ctx, logger, config.dataInput, config.table, md)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(4)
			}
			defer closeInput()
			ds, err := dataset.Load(ctx, md.Features, r)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(4)
			}

			registry := prometheus.NewRegistry()
			opts := []stratify.Option{
				stratify.WithLogger(logger),
				stratify.WithMetrics(stratify.NewMetrics(registry)),
			}
			if settings.Redis.Addr != "" {
				redisOpts, closeRedis, err := config.redisOptions(ctx, &settings.Redis, ds, r, md.Features)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(5)
				}
				defer closeRedis()
				opts = append(opts, redisOpts...)
			}
			splitter, err := stratify.New(ctx, ds, settings.Config, opts...)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				var cerr *stratify.ConfigurationError
				if errors.As(err, &cerr) {
					os.Exit(6)
				}
				os.Exit(7)
			}
			t, err := splitter.Fit(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "growing the tree: %v\n", err)
				os.Exit(8)
			}
			logger.Debug("tree grown", "tree", t.String())
			err = withOutput(config.output, func(w io.Writer) error {
				return treejson.WriteJSONTree(ctx, t, nodeEncodeDecoder(md.Features), w)
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(9)
			}
			if config.summaryOutput != "" {
				leaves, _, err := summary.Summarize(ctx, t)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(10)
				}
				write, err := leavesWriter(config.summaryFormat, config.summaryOutput)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(10)
				}
				err = withOutput(config.summaryOutput, func(w io.Writer) error {
					return write(w, leaves)
				})
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(11)
				}
			}
			if config.metricsOutput != "" {
				err = prometheus.WriteToTextfile(config.metricsOutput, registry)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(12)
				}
			}
		},
	}
	config.registerFlags(cmd.PersistentFlags())
	return cmd
}

func (gcc *growCmdConfig) registerFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&(gcc.configInput), "config", "f", "", "path to a YAML file with the parameters of the tree, overridden by STRATIFY_ environment variables and flags")
	flags.StringVarP(&(gcc.dataInput), "input", "i", "", "path to an input CSV (.csv) or SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL with the observations to grow the tree from (defaults to STDIN, interpreted as CSV)")
	flags.StringVar(&(gcc.table), "table", DefaultTable, "name of the table holding the observations on SQL database inputs")
	flags.StringVarP(&(gcc.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the columns of the input (required)")
	flags.StringVarP(&(gcc.output), "output", "o", "", "path to a file to which the grown tree will be written in JSON format (defaults to STDOUT)")
	flags.StringVarP(&(gcc.summaryOutput), "summary", "s", "", "path to a file to which the summary of the leaves will be written, in the format given by its extension")
	flags.StringVar(&(gcc.summaryFormat), "summary-format", "", "format of the summary: json, yaml, csv or xlsx (defaults to the extension of the summary file)")
	flags.StringVar(&(gcc.metricsOutput), "metrics-file", "", "path to a file to which growth metrics will be written in the Prometheus text format")
	flags.StringSliceVarP(&(gcc.covariates), "covariates", "c", nil, "names of the columns subjects are split on")
	flags.StringSliceVarP(&(gcc.features), "features", "y", nil, "names of the continuous columns whose IOI is minimized")
	flags.IntVar(&(gcc.minSubjectsPerLeaf), "min-subjects-per-leaf", stratify.DefaultMinSubjectsPerLeaf, "minimum number of subjects on every leaf")
	flags.IntVar(&(gcc.maxDepth), "max-depth", 0, "depth at which nodes are no longer split (defaults to 0: unlimited)")
	flags.IntVar(&(gcc.exhaustiveCategoryLimit), "exhaustive-category-limit", 0, "maximum number of values of a discrete covariate for which every bipartition is tried (at most 12)")
	flags.Float64Var(&(gcc.minimumImprovement), "minimum-improvement", 0, "improvement of the IOI a split must exceed to be performed")
	flags.IntVarP(&(gcc.workers), "workers", "w", 1, "number of workers developing nodes concurrently")
	flags.StringVar(&(gcc.visit), "visit", "", "name of the column with the visit of each observation, to compute between-person variability visit by visit (defaults to the visit of the metadata)")
	flags.StringVar(&(gcc.redisAddr), "redis-addr", "", "address of a redis server to keep the queue and the tree nodes on, to grow the tree with several processes")
	flags.StringVar(&(gcc.redisPrefix), "redis-prefix", defaultRedisPrefix, "prefix of the redis keys of the queue and the tree nodes")
}

func (gcc *growCmdConfig) Validate() error {
	if gcc.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	if gcc.summaryOutput == "" && gcc.summaryFormat != "" {
		return fmt.Errorf("summary-format flag was set without the summary flag")
	}
	if gcc.summaryOutput != "" {
		if _, err := leavesWriter(gcc.summaryFormat, gcc.summaryOutput); err != nil {
			return err
		}
	}
	return nil
}

/*
redisOptions connects to the configured redis server and returns the
splitter options to keep the queue of tasks and the nodes of the tree on it,
with a function to release them.
*/
func (gcc *growCmdConfig) redisOptions(ctx context.Context, rs *redisSettings, ds dataset.Dataset, r dataset.Reader, features []feature.Feature) ([]stratify.Option, func(), error) {
	logger := gcc.Logger()
	logger.Info("connecting to redis", "addr", rs.Addr, "prefix", rs.Prefix)
	rc := redis.NewClient(&redis.Options{Addr: rs.Addr, Password: rs.Password, DB: rs.DB})
	if err := rc.Ping().Err(); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", rs.Addr, err)
	}
	uri := gcc.dataInput
	if uri == "" {
		uri = "stdin"
	}
	ns := redisstore.New(rc, rs.Prefix+":tree", nodeEncodeDecoder(features))
	q := redisq.New(rs.Prefix+":queue", rc, rs.TaskMaxRun, queuejson.New(taskDatasetEncodeDecoder(logger, uri, ds, r, features), ns))
	release := func() {
		if err := q.Stop(ctx); err != nil {
			logger.Warn("stopping redis queue", "error", err)
		}
		if err := rc.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}
	return []stratify.Option{stratify.WithQueue(q), stratify.WithNodeStore(ns)}, release, nil
}

/*
taskDatasetEncodeDecoder returns the encoder of the datasets of the tasks
queued on redis. Tasks on database inputs read the subjects of their node
from the database, the rest subset the loaded dataset.
*/
func taskDatasetEncodeDecoder(logger *slog.Logger, uri string, ds dataset.Dataset, r dataset.Reader, features []feature.Feature) datasetjson.DatasetEncodeDecoder {
	ced := featurejson.NewCriteriaEncodeDecoder(features)
	if sr, ok := r.(dataset.SubsetReader); ok {
		logger.Debug("reading the subjects of queued nodes from the database")
		return datasetjson.NewSubsetReading(sr, features, uri, ced)
	}
	return datasetjson.New(ds, uri, ced)
}
