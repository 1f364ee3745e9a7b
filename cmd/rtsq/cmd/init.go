/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with a generated API key",
		Long: `Create the rtsq configuration file with a freshly generated API key.

Examples:
  rtsq init
  rtsq init --config ./rtsq.yaml --data-dir ./data
  rtsq init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			force, _ := cmd.Flags().GetBool("force")
			out := cmd.OutOrStdout()

			if config.ConfigExists(a.configPath) && !force {
				fmt.Fprintf(out, "Configuration already exists at %s. Use --force to overwrite.\n", a.configPath)
				return nil
			}

			cfg, err := config.BootstrapConfig(a.configPath, a.config.DataDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote configuration to %s\n", a.configPath)
			fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "Error queue: %s\n", cfg.ErrorQueue)
			fmt.Fprintf(out, "API key: %s\n", cfg.Security.APIKey)
			fmt.Fprintf(out, "\nStart the server with:\n  rtsq serve --config %s\n", a.configPath)
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	return initCmd
}
