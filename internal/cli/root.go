// Package cli implements the ttlarchiver operator command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ttl-archiver/internal/app"
	"github.com/telhawk-systems/ttl-archiver/internal/config"
	"github.com/telhawk-systems/ttl-archiver/internal/logging"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "ttlarchiver",
	Short: "TTL expiry archiver operator CLI",
	Long: `ttlarchiver replays captured change stream batches through the archiving
pipeline, generates synthetic batches, prints the upstream event filter and
manages the dead letter queue.

Configuration is read from --config (or ./config.yaml) and ARCHIVER_* environment
variables, the same way the Lambda function reads it.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		Error(rootCmd.ErrOrStderr(), "%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/ttl-archiver/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for pipeline logs: debug, info, warn, error")
}

// loadConfig reads configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp wires the archiver with logs sent to the command's stderr.
func buildApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(logLevel), "text")
	a, err := app.Build(contextOf(cmd), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize archiver: %w", err)
	}
	return a, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
