package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pbanos/stratify"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

// EnvPrefix prefixes the environment variables settings are read from
const EnvPrefix = "STRATIFY"

/*
growSettings holds the parameters of the grow command that can be read from
a YAML config file and environment variables, on top of the splitter
configuration.
*/
type growSettings struct {
	stratify.Config `yaml:",inline"`
	Redis           redisSettings `yaml:"redis" envconfig:"REDIS"`
}

/*
redisSettings configures a redis database on which the queue of nodes to
develop and the nodes of the tree are kept, so that several processes can
grow a tree together. Redis is not used if Addr is empty.
*/
type redisSettings struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
	// Prefix of the keys of the queue and the nodes
	Prefix string `yaml:"prefix" envconfig:"PREFIX"`
	// Time after which a task taken by a worker that did not complete it is
	// requeued, 0 to never requeue
	TaskMaxRun time.Duration `yaml:"task_max_run" envconfig:"TASK_MAX_RUN"`
}

const defaultRedisPrefix = "stratify"

/*
loadGrowSettings returns the settings for the grow command: the defaults,
overridden by the YAML file at the given path if it is not empty,
overridden by the STRATIFY_ prefixed environment variables.
*/
func loadGrowSettings(path string) (*growSettings, error) {
	gs := &growSettings{
		Config: stratify.DefaultConfig(nil, nil),
		Redis:  redisSettings{Prefix: defaultRedisPrefix},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		err = yaml.UnmarshalStrict(data, gs)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	err := envconfig.Process(EnvPrefix, gs)
	if err != nil {
		return nil, fmt.Errorf("reading config from environment: %w", err)
	}
	return gs, nil
}

/*
apply overrides the settings with the flags of the grow command that were
set on the command line.
*/
func (gs *growSettings) apply(flags *pflag.FlagSet, gcc *growCmdConfig) {
	if flags.Changed("covariates") {
		gs.Covariates = gcc.covariates
	}
	if flags.Changed("features") {
		gs.Features = gcc.features
	}
	if flags.Changed("min-subjects-per-leaf") {
		gs.MinSubjectsPerLeaf = gcc.minSubjectsPerLeaf
	}
	if flags.Changed("max-depth") {
		gs.MaxDepth = gcc.maxDepth
	}
	if flags.Changed("exhaustive-category-limit") {
		gs.ExhaustiveCategoryLimit = gcc.exhaustiveCategoryLimit
	}
	if flags.Changed("minimum-improvement") {
		gs.MinimumImprovement = gcc.minimumImprovement
	}
	if flags.Changed("workers") {
		gs.Workers = gcc.workers
	}
	if flags.Changed("visit") {
		gs.Visit = gcc.visit
	}
	if flags.Changed("redis-addr") {
		gs.Redis.Addr = gcc.redisAddr
	}
	if flags.Changed("redis-prefix") {
		gs.Redis.Prefix = gcc.redisPrefix
	}
}
