/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/config"
)

const (
	serviceName     = "rtsq.service"
	defaultUnitPath = "/etc/systemd/system/" + serviceName
)

// runCommand runs a system command with its output attached to ours. Tests
// replace it.
var runCommand = func(command string, args ...string) error {
	c := exec.Command(command, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func runSystemctl(args ...string) error {
	return runCommand("systemctl", args...)
}

// renderSystemdUnit returns the unit file for serving cfg
func renderSystemdUnit(cfg *config.Config, configPath, user, binary string) string {
	return fmt.Sprintf(`[Unit]
Description=rtsq return-to-source queue server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binary, configPath, cfg.DataDir, filepath.Dir(configPath))
}

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage rtsq as a systemd service",
		Long: `Manage the rtsq API server as a systemd service. The unit runs
'rtsq serve' with the active configuration and restarts on failure.`,
	}

	unitCmd := &cobra.Command{
		Use:   "unit",
		Short: "Print the systemd unit file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			user, _ := cmd.Flags().GetString("user")
			binary, _ := cmd.Flags().GetString("binary")
			fmt.Fprint(cmd.OutOrStdout(), renderSystemdUnit(a.config, a.configPath, user, binary))
			return nil
		},
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install rtsq as a systemd service",
		Long: `Write the systemd unit, then enable and optionally start the service.
A configuration is bootstrapped first if none exists.

Examples:
  sudo rtsq service install
  sudo rtsq service install --data-dir /var/lib/rtsq --user rtsq`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			user, _ := cmd.Flags().GetString("user")
			binary, _ := cmd.Flags().GetString("binary")
			unitPath, _ := cmd.Flags().GetString("unit-path")
			startNow, _ := cmd.Flags().GetBool("start")
			out := cmd.OutOrStdout()

			if unitPath == defaultUnitPath && os.Geteuid() != 0 {
				return fmt.Errorf("service install requires root privileges (run with sudo)")
			}

			cfg := a.config
			if !config.ConfigExists(a.configPath) {
				bootstrapped, err := config.BootstrapConfig(a.configPath, cfg.DataDir)
				if err != nil {
					return fmt.Errorf("failed to bootstrap config: %w", err)
				}
				cfg = bootstrapped
				fmt.Fprintf(out, "Created new configuration at %s\n", a.configPath)
			}

			unit := renderSystemdUnit(cfg, a.configPath, user, binary)
			if err := os.WriteFile(unitPath, []byte(unit), 0600); err != nil {
				return fmt.Errorf("failed to write unit file: %w", err)
			}

			if err := runSystemctl("daemon-reload"); err != nil {
				return fmt.Errorf("failed to reload systemd: %w", err)
			}
			if err := runSystemctl("enable", serviceName); err != nil {
				return fmt.Errorf("failed to enable service: %w", err)
			}
			if startNow {
				if err := runSystemctl("start", serviceName); err != nil {
					return fmt.Errorf("failed to start service: %w", err)
				}
			}

			fmt.Fprintf(out, "Installed %s\n", serviceName)
			fmt.Fprintf(out, "Unit: %s\n", unitPath)
			fmt.Fprintf(out, "Config: %s\n", a.configPath)
			fmt.Fprintf(out, "Data: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "To view logs: sudo journalctl -u %s -f\n", serviceName)
			return nil
		},
	}

	serviceCmd.AddCommand(unitCmd, installCmd)
	for _, action := range []string{"start", "stop", "restart", "status"} {
		serviceCmd.AddCommand(newSystemctlCmd(action))
	}

	for _, c := range []*cobra.Command{unitCmd, installCmd} {
		c.Flags().String("user", "rtsq", "User to run the service as")
		c.Flags().String("binary", "/usr/local/bin/rtsq", "Path of the rtsq binary")
	}
	installCmd.Flags().String("unit-path", defaultUnitPath, "Where to write the unit file")
	installCmd.Flags().Bool("start", true, "Start the service after installation")

	return serviceCmd
}

func newSystemctlCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("Run systemctl %s for the rtsq service", action),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystemctl(action, serviceName)
		},
	}
}
