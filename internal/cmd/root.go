// Package cmd wires the synthd command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/store"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for synthd.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthd",
		Short: "Autonomous Modbus driver synthesis agent",
		Long: `Synthd queues Modbus device datasheets and drives an external AI
synthesis worker to turn each one into a validated device driver.

Tasks are processed one at a time by a background loop started with
"synthd run". Each attempt sends the extracted protocol documentation,
plus context from previous failed attempts, to the synthesis worker and
records the outcome. Transient infrastructure failures are absorbed and
retried without consuming a task's attempt budget.

Configuration is loaded from .synthd/config.yaml if present.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .synthd/config.yaml)")
	cmd.PersistentFlags().String("db", "", "Path to the task database (overrides config)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewAddCommand())
	cmd.AddCommand(NewTasksCommand())
	cmd.AddCommand(NewShowCommand())
	cmd.AddCommand(NewExportCommand())
	cmd.AddCommand(NewHealthCommand())

	return cmd
}

// loadConfig resolves configuration for a command: explicit --config path,
// otherwise .synthd/config.yaml in the working directory, with the --db
// flag overriding the store location.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the task database described by cfg.
func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.NewStore(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open task database %s: %w", cfg.Store.DBPath, err)
	}
	return s, nil
}
