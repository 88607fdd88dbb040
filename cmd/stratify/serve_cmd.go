package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pbanos/stratify/feature/yaml"
	"github.com/pbanos/stratify/server"
	"github.com/spf13/cobra"
)

type serveCmdConfig struct {
	*rootCmdConfig
	leavesInput   string
	metadataInput string
	addr          string
}

// serveSettings are read from STRATIFY_ prefixed environment variables
type serveSettings struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func serveCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &serveCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the leaves of a tree over HTTP",
		Long:  `Serve the leaves of a summarized tree over HTTP, assigning the rows posted to /assign to them`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			logger := config.Logger()
			settings := &serveSettings{}
			err = envconfig.Process(EnvPrefix, settings)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			if cmd.Flags().Changed("addr") {
				settings.Addr = config.addr
			}
			md, err := yaml.ReadMetadataFromFile(config.metadataInput)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(3)
			}
			leaves, err := readLeaves(config.leavesInput, md.Features)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(4)
			}
			srv := &http.Server{
				Addr:         settings.Addr,
				Handler:      server.New(leaves, md.Features, logger).Routes(),
				ReadTimeout:  settings.ReadTimeout,
				WriteTimeout: settings.WriteTimeout,
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutting down server", "error", err)
				}
			}()
			logger.Info("serving leaves", "addr", settings.Addr, "leaves", len(leaves))
			err = srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(5)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with metadata describing the columns the tree was grown on (required)")
	cmd.PersistentFlags().StringVarP(&(config.leavesInput), "leaves", "l", "", "path to a JSON or YAML summary of the leaves of a tree, as written by the summary command (required)")
	cmd.PersistentFlags().StringVarP(&(config.addr), "addr", "a", ":8080", "address to listen on, overrides STRATIFY_ADDR")
	return cmd
}

func (scc *serveCmdConfig) Validate() error {
	if scc.metadataInput == "" {
		return fmt.Errorf("required metadata flag was not set")
	}
	if scc.leavesInput == "" {
		return fmt.Errorf("required leaves flag was not set")
	}
	return nil
}
