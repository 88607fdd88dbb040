package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/feature/yaml"
	"github.com/pbanos/stratify/summary"
	"github.com/spf13/cobra"
)

type summaryCmdConfig struct {
	*rootCmdConfig
	treeInput     string
	metadataInput string
	output        string
	format        string
	splits        bool
}

func summaryCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &summaryCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the leaves of a tree",
		Long:  `Summarize the leaves of a tree with the conditions defining them, their size and their IOI, or list the splits of the tree`,
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
			t, err := loadTree(ctx, config.treeInput, md.Features)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			if config.splits {
				splits, err := summary.Splits(ctx, t)
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(4)
				}
				err = withOutput(config.output, func(w io.Writer) error {
					return writeSplits(w, splits)
				})
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(5)
				}
				return
			}
			leaves, _, err := summary.Summarize(ctx, t)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(4)
			}
			write, err := leavesWriter(config.format, config.output)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			config.Logger().Debug("writing summary", "leaves", len(leaves), "output", config.output)
			err = withOutput(config.output, func(w io.Writer) error {
				return write(w, leaves)
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(5)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the columns the tree was grown on (required)")
	cmd.PersistentFlags().StringVarP(&(config.treeInput), "tree", "t", "", "path to a file from which the tree will be read and parsed as JSON (required)")
	cmd.PersistentFlags().StringVarP(&(config.output), "output", "o", "", "path to a file to which the summary will be written (defaults to STDOUT)")
	cmd.PersistentFlags().StringVar(&(config.format), "format", "", "format of the summary: json, yaml, csv or xlsx (defaults to the extension of the output, or json)")
	cmd.PersistentFlags().BoolVar(&(config.splits), "splits", false, "list the splits of the tree instead of its leaves")
	return cmd
}

func (scc *summaryCmdConfig) Validate() error {
	if scc.treeInput == "" {
		return fmt.Errorf("required tree flag was not set")
	}
	if scc.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	if scc.splits {
		if scc.format != "" {
			return fmt.Errorf("format flag cannot be set along the splits flag")
		}
		return nil
	}
	if _, err := leavesWriter(scc.format, scc.output); err != nil {
		return err
	}
	if summaryFormat(scc.format, scc.output) == "xlsx" && scc.output == "" {
		return fmt.Errorf("xlsx summaries must be written to a file, set the output flag")
	}
	return nil
}

/*
summaryFormat returns the given format, or the one of the output file
extension when it is empty, json if there is none.
*/
func summaryFormat(format, output string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
	if ext == "yml" {
		return "yaml"
	}
	if ext == "" {
		return "json"
	}
	return ext
}

func leavesWriter(format, output string) (func(io.Writer, []*summary.Leaf) error, error) {
	switch f := summaryFormat(format, output); f {
	case "json":
		return summary.WriteJSON, nil
	case "yaml":
		return summary.WriteYAML, nil
	case "csv":
		return summary.WriteCSV, nil
	case "xlsx":
		return summary.WriteXLSX, nil
	default:
		return nil, fmt.Errorf("unknown summary format %q, valid formats are json, yaml, csv and xlsx", f)
	}
}

/*
readLeaves reads the summary of leaves from a JSON or YAML file, according
to its extension.
*/
func readLeaves(path string, features []feature.Feature) ([]*summary.Leaf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading leaves from %s: %w", path, err)
	}
	defer f.Close()
	var leaves []*summary.Leaf
	switch format := summaryFormat("", path); format {
	case "json":
		leaves, err = summary.ReadJSON(f, features)
	case "yaml":
		leaves, err = summary.ReadYAML(f, features)
	default:
		return nil, fmt.Errorf("cannot read leaves from %s files, use json or yaml", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing leaves from %s: %w", path, err)
	}
	return leaves, nil
}

func writeSplits(w io.Writer, splits []*summary.Split) error {
	for _, s := range splits {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\t%d\t%s\t%s\n",
			s.NodeID, s.ParentID, s.Direction, s.Depth, s.Covariate, s.Criterion,
			s.Subjects, feature.FormatThreshold(s.IOI), feature.FormatThreshold(s.Improvement))
		if err != nil {
			return err
		}
	}
	return nil
}
