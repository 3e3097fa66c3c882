package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/synth"
)

// NewHealthCommand creates the health command.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the synthesis worker",
		Long: `Probe the synthesis worker's health endpoint and report the result.

Exits non-zero when the worker is unreachable or unhealthy, so the
command can serve as a readiness check in scripts.`,
		Args: cobra.NoArgs,
		RunE: checkWorkerHealth,
	}

	cmd.Flags().String("worker-url", "", "Synthesis worker base URL (overrides config)")

	return cmd
}

func checkWorkerHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if url, _ := cmd.Flags().GetString("worker-url"); url != "" {
		cfg.Worker.BaseURL = url
	}

	checker := synth.NewHealthChecker(cfg.Worker.BaseURL, cfg.Health)
	status := checker.CheckHealth(cmd.Context())

	if !status.Healthy {
		return fmt.Errorf("worker %s unhealthy: %s", cfg.Worker.BaseURL, status.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Worker %s healthy (%d ms)\n", cfg.Worker.BaseURL, status.ResponseTimeMs)
	return nil
}
