/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/config"
	"github.com/ssargent/rtsq/pkg/di"
	"github.com/ssargent/rtsq/pkg/journal"
	"github.com/ssargent/rtsq/pkg/logging"
	"github.com/ssargent/rtsq/pkg/returner"
	"github.com/ssargent/rtsq/pkg/spool"
	"go.uber.org/zap"
)

// container holds the injected dependencies
var container *di.Container

// SetContainer sets the dependency injection container
func SetContainer(c *di.Container) {
	container = c
}

type appKey struct{}

// app is the per-invocation state the root command prepares
type app struct {
	config     *config.Config
	configPath string
	logger     *zap.Logger
	output     string
}

// services are the opened stores a command works with
type services struct {
	spool    *spool.Spool
	journal  *journal.Journal // nil when the journal is disabled
	returner *returner.Returner
}

func (s *services) Close() error {
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	errs = append(errs, s.spool.Close())
	return errors.Join(errs...)
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

// openServices opens the spool and, when enabled, the journal
func (a *app) openServices() (*services, error) {
	if container == nil {
		return nil, errors.New("dependency container not initialized")
	}

	if err := os.MkdirAll(a.config.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	sp, err := container.OpenSpool(a.config.SpoolPath(), spool.Options{Sync: a.config.Sync})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}
	svc := &services{spool: sp}

	opts := []returner.Option{returner.WithLogger(a.logger)}
	if a.config.Journal.Enabled {
		j, recovery, err := journal.Open(journal.Config{
			Path:          a.config.JournalPath(),
			FsyncInterval: a.config.Journal.FsyncInterval,
		})
		if err != nil {
			sp.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		if recovery.RecordsTruncated > 0 {
			a.logger.Warn("recovered journal from corruption",
				zap.Int64("records_validated", recovery.RecordsValidated),
				zap.Int64("bytes_before", recovery.FileSizeBefore),
				zap.Int64("bytes_after", recovery.FileSizeAfter))
		}
		svc.journal = j
		opts = append(opts, returner.WithJournal(j))
	}

	svc.returner = returner.New(sp, opts...)
	return svc, nil
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rtsq",
		Short: "rtsq - Return failed messages to their source queue",
		Long: `rtsq inspects messages in an error queue, decodes the headers stored in
their extension bytes and moves them back to the queue they failed in.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a := appFrom(cmd); a != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default is $HOME/.config/rtsq/config.yaml)")
	flags.StringP("data-dir", "d", "", "Data directory (overrides the config file)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.StringP("output", "o", formatTable, "Output format: table or json")

	rootCmd.AddCommand(
		newInitCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newEnqueueCmd(),
		newListCmd(),
		newHeadersCmd(),
		newReturnCmd(),
		newJournalCmd(),
		newServeCmd(),
		newServiceCmd(),
	)
	return rootCmd
}

// loadApp resolves configuration from the config file and flags
func loadApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v, _ := flags.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	output, _ := flags.GetString("output")
	if err := validateFormat(output); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return &app{config: cfg, configPath: configPath, logger: logger, output: output}, nil
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
