package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootCmdConfig struct {
	verbose bool
	logger  *slog.Logger
}

func main() {
	// a missing .env file is not an error, the environment is used as is
	_ = godotenv.Load()
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stratify",
		Short: "stratify is a tool to split subjects into groups of homogeneous variability",
		Long:  `A tool to grow stratification trees from longitudinal data, summarize their leaves and assign new subjects to them`,
	}
	config := &rootCmdConfig{}
	rootCmd.PersistentFlags().BoolVarP(&(config.verbose), "verbose", "v", false, "log progress and node development to STDERR")
	rootCmd.AddCommand(versionCmd(), datasetCmd(config), growCmd(config), summaryCmd(config), assignCmd(config), treeCmd(config), serveCmd(config))
	return rootCmd
}

/*
Logger returns the logger for the command: a text logger on STDERR that
logs debug messages when the verbose flag is set.
*/
func (rcc *rootCmdConfig) Logger() *slog.Logger {
	if rcc.logger == nil {
		rcc.logger = newLogger(os.Stderr, rcc.verbose)
	}
	return rcc.logger
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
