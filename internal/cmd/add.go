package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// NewAddCommand creates the add command.
func NewAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <datasheet.md>",
		Short: "Queue a device datasheet for driver synthesis",
		Long: `Queue a new synthesis task from a Modbus device datasheet.

The datasheet is stored verbatim; protocol text is extracted from it on
the first processing attempt. The task waits in the queue until the agent
loop (synthd run) picks it up.

Examples:
  synthd add docs/sungrow-sg5k.md
  synthd add --name "Sungrow SG5K" --language csharp docs/sungrow-sg5k.md
  synthd add --max-attempts 3 docs/fronius-symo.md`,
		Args: cobra.ExactArgs(1),
		RunE: addTask,
	}

	cmd.Flags().String("name", "", "Device name (default: datasheet file name)")
	cmd.Flags().String("language", "", "Target driver language: python or csharp (default from config)")
	cmd.Flags().Int("max-attempts", 0, "Attempt budget for this task (default from config)")

	return cmd
}

func addTask(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	datasheetPath := args[0]
	payload, err := os.ReadFile(datasheetPath)
	if err != nil {
		return fmt.Errorf("read datasheet: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		base := filepath.Base(datasheetPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	language, _ := cmd.Flags().GetString("language")
	if language == "" {
		language = cfg.Agent.TargetLanguage
	}
	language = strings.ToLower(language)

	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	if maxAttempts == 0 {
		maxAttempts = cfg.Agent.MaxAttempts
	}

	task := models.NewTask(name, payload, language, maxAttempts)
	if err := task.Validate(); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.AddTask(cmd.Context(), task); err != nil {
		return fmt.Errorf("queue task: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued task %s\n", task.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "  Device:   %s\n", task.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "  Language: %s\n", task.TargetLanguage)
	fmt.Fprintf(cmd.OutOrStdout(), "  Budget:   %d attempt(s)\n", task.MaxAttempts)
	return nil
}
