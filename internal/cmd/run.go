package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/agent"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/experience"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/extract"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/filelock"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/logger"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/notify"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/synth"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the synthesis agent loop",
		Long: `Start the background agent that processes queued tasks.

The agent polls the task queue and processes one task per tick: it checks
worker health, picks the oldest eligible task, sends its protocol
documentation to the synthesis worker and records the outcome. The loop
runs until interrupted with Ctrl-C.

Only one agent may run against a database at a time; a second instance
refuses to start.

Examples:
  synthd run
  synthd run --worker-url http://synth.internal:8000
  synthd run --tick-interval 10s --idle-interval 1m
  synthd run --log-level debug`,
		Args: cobra.NoArgs,
		RunE: runAgent,
	}

	cmd.Flags().String("worker-url", "", "Synthesis worker base URL (overrides config)")
	cmd.Flags().String("tick-interval", "", "Delay between ticks while work is pending (e.g. 5s)")
	cmd.Flags().String("idle-interval", "", "Delay between ticks when the queue is empty (e.g. 30s)")
	cmd.Flags().String("log-level", "", "Log verbosity: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Directory for run log files")

	return cmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := mergeRunFlags(cmd, cfg); err != nil {
		return err
	}

	// One agent per database. The lock lives next to the database file.
	lock, err := filelock.Acquire(filepath.Join(filepath.Dir(cfg.Store.DBPath), "run.lock"))
	if err != nil {
		return err
	}
	defer lock.Release()

	fileLog, err := logger.NewFileLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewTee(logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.Logging.Level), fileLog)

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	notifier := notify.NewConsoleNotifier(cmd.OutOrStdout(), fileLog)
	a := agent.NewAgent(
		s,
		synth.NewClient(cfg.Worker),
		synth.NewHealthChecker(cfg.Worker.BaseURL, cfg.Health),
		experience.NewBuilder(s),
		extract.NewMarkdownExtractor(),
		notifier,
		log,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repaired, err := a.RecoverStuckTasks(ctx)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	if repaired > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d task(s) interrupted by a previous run\n", repaired)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Agent started (worker %s, log %s)\n", cfg.Worker.BaseURL, fileLog.Path())

	loop := agent.NewLoop(a, cfg.Agent.TickInterval, cfg.Agent.IdleInterval, log)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Agent stopped")
	return nil
}

// mergeRunFlags applies run command flags over the loaded config. Flags
// take precedence over the config file.
func mergeRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	if url, _ := cmd.Flags().GetString("worker-url"); url != "" {
		cfg.Worker.BaseURL = url
	}
	if raw, _ := cmd.Flags().GetString("tick-interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid tick-interval %q: %w", raw, err)
		}
		cfg.Agent.TickInterval = d
	}
	if raw, _ := cmd.Flags().GetString("idle-interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid idle-interval %q: %w", raw, err)
		}
		cfg.Agent.IdleInterval = d
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if dir, _ := cmd.Flags().GetString("log-dir"); dir != "" {
		cfg.Logging.Dir = dir
	}
	return cfg.Validate()
}
