/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/api"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the rtsq REST API server. Every /api/v1 route requires the X-API-Key
header; Prometheus metrics are served unauthenticated at /metrics.

Examples:
  rtsq serve
  rtsq serve --port 9000 --bind 0.0.0.0 --api-key mysecretkey`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			cfg := a.config
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if v, _ := cmd.Flags().GetString("bind"); v != "" {
				cfg.Bind = v
			}
			if v, _ := cmd.Flags().GetString("api-key"); v != "" {
				cfg.Security.APIKey = v
			}
			if cfg.Security.APIKey == "auto" {
				return errors.New("no API key configured: run 'rtsq init' or pass --api-key")
			}

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			deps := api.Dependencies{
				Store:    svc.spool,
				Returner: svc.returner,
				Logger:   a.logger,
			}
			if svc.journal != nil {
				deps.Journal = svc.journal
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("serving",
				zap.String("data_dir", cfg.DataDir),
				zap.String("error_queue", cfg.ErrorQueue),
				zap.Bool("journal", svc.journal != nil))

			starter := container.GetServerFactory().CreateServerStarter()
			return starter.StartServer(ctx, deps, api.ServerConfig{
				Port:       cfg.Port,
				Bind:       cfg.Bind,
				APIKey:     cfg.Security.APIKey,
				ErrorQueue: cfg.ErrorQueue,
			})
		},
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides the config file)")
	serveCmd.Flags().String("bind", "", "Address to bind (overrides the config file)")
	serveCmd.Flags().String("api-key", "", "API key for authentication (overrides the config file)")
	return serveCmd
}
