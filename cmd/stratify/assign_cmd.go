package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/dataset/inputsample"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/feature/yaml"
	"github.com/pbanos/stratify/summary"
	"github.com/spf13/cobra"
)

type assignCmdConfig struct {
	*rootCmdConfig
	leavesInput    string
	metadataInput  string
	dataInput      string
	table          string
	output         string
	interactive    bool
	undefinedValue string
}

type stdoutFeatureValueRequester string

func assignCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &assignCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign subjects to the leaves of a tree",
		Long:  `Assign the subjects of a set of observations, or a subject described answering questions about its covariates, to the leaves of a summarized tree`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			ctx := context.Background()
			md, err := yaml.ReadMetadataFromFile(config.metadataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			leaves, err := readLeaves(config.leavesInput, md.Features)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			if config.interactive {
				leaf, err := assignInteractively(ctx, leaves, md.Features, config.undefinedValue)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(4)
				}
				fmt.Printf("The subject belongs to %v\n", leaf)
				return
			}
			ds, closeDataset, err := loadDataset(ctx, config.Logger(), config.dataInput, config.table, md)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(5)
			}
			defer closeDataset()
			err = withOutput(config.output, func(w io.Writer) error {
				return assignSubjects(ctx, w, ds, leaves)
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(6)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the columns of the input (required)")
	cmd.PersistentFlags().StringVarP(&(config.leavesInput), "leaves", "l", "", "path to a JSON or YAML summary of the leaves of a tree, as written by the summary command (required)")
	cmd.PersistentFlags().StringVarP(&(config.dataInput), "input", "i", "", "path to an input CSV (.csv) or SQLite3 (.db) file, or a PostgreSQL or MongoDB connection URL with the observations of the subjects to assign (defaults to STDIN, interpreted as CSV)")
	cmd.PersistentFlags().StringVar(&(config.table), "table", DefaultTable, "name of the table holding the observations on SQL database inputs")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a CSV file to which the leaf of every subject will be written (defaults to STDOUT)")
	cmd.PersistentFlags().BoolVar(&(config.interactive), "interactive", false, "assign a single subject answering questions about its covariates on STDIN")
	cmd.PersistentFlags().StringVarP(&(config.undefinedValue), "undefined-value", "u", "?", "value to input to define a subject's value for a covariate as undefined")
	return cmd
}

func (acc *assignCmdConfig) Validate() error {
	if acc.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	if acc.leavesInput == "" {
		return fmt.Errorf("required leaves flag was not set")
	}
	if acc.interactive && acc.dataInput != "" {
		return fmt.Errorf("cannot set both interactive and input flags at the same time")
	}
	return nil
}

func assignInteractively(ctx context.Context, leaves []*summary.Leaf, features []feature.Feature, undefinedValue string) (*summary.Leaf, error) {
	sample := inputsample.New(os.Stdin, features, stdoutFeatureValueRequester(undefinedValue), undefinedValue)
	i, err := summary.AssignToLeaf(ctx, leaves, sample)
	if err != nil {
		return nil, err
	}
	for _, l := range leaves {
		if l.ID == i {
			return l, nil
		}
	}
	return nil, summary.ErrNoMatchingLeaf
}

/*
assignSubjects writes a CSV row with the subject ID, the leaf ID and the
leaf node ID of every subject in the dataset. Subjects matching no leaf get
an empty leaf.
*/
func assignSubjects(ctx context.Context, w io.Writer, ds dataset.Dataset, leaves []*summary.Leaf) error {
	nodeIDs := make(map[int]string, len(leaves))
	for _, l := range leaves {
		nodeIDs[l.ID] = l.NodeID
	}
	subjects, err := ds.Subjects(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	err = cw.Write([]string{"subject", "leaf", "node"})
	if err != nil {
		return err
	}
	for _, s := range subjects {
		i, err := summary.AssignSubject(ctx, leaves, s)
		row := []string{s.ID(), "", ""}
		switch {
		case errors.Is(err, summary.ErrNoMatchingLeaf):
		case err != nil:
			return err
		default:
			row[1], row[2] = strconv.Itoa(i), nodeIDs[i]
		}
		err = cw.Write(row)
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (sfvr stdoutFeatureValueRequester) RequestValueFor(f feature.Feature) error {
	switch f := f.(type) {
	case *feature.DiscreteFeature:
		fmt.Printf("Please provide the subject's %s:\n(valid values are %v or %s if undefined)\n", f.Name(), f.AvailableValues(), string(sfvr))
	case *feature.ContinuousFeature:
		fmt.Printf("Please provide the subject's %s:\n(valid values are real numbers or %s if undefined)\n", f.Name(), string(sfvr))
	default:
		return fmt.Errorf("unknown feature type %T", f)
	}
	return nil
}

func (sfvr stdoutFeatureValueRequester) RejectValueFor(f feature.Feature, value interface{}) error {
	switch f := f.(type) {
	case *feature.DiscreteFeature:
		fmt.Printf("%v is not a valid value for the subject's %s. Please provide one of %v or %s if undefined.\n", value, f.Name(), f.AvailableValues(), string(sfvr))
	case *feature.ContinuousFeature:
		fmt.Printf("%v is not a valid value for the subject's %s. Please provide a real number or %s if undefined.\n", value, f.Name(), string(sfvr))
	default:
		return fmt.Errorf("unknown feature type %T", f)
	}
	return nil
}
