package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/filelock"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/store"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <task-id>",
		Short: "Write a task's synthesized driver to a file",
		Long: `Write the validated driver artifact of a succeeded task to disk.

The output file is written atomically, so a concurrent reader never sees
a partial driver.

Examples:
  synthd export 2f3a...
  synthd export --out drivers/sungrow_sg5k.py 2f3a...`,
		Args: cobra.ExactArgs(1),
		RunE: exportDriver,
	}

	cmd.Flags().String("out", "", "Output path (default: <device-name>.<ext> by target language)")

	return cmd
}

func exportDriver(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	task, err := s.GetTask(ctx, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no task with id %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	art, err := s.GetArtifactForTask(ctx, task.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s has no driver artifact (status %s)", task.ID, task.Status)
	}
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}

	outPath, _ := cmd.Flags().GetString("out")
	if outPath == "" {
		outPath = defaultDriverFilename(task)
	}

	if err := filelock.AtomicWrite(outPath, []byte(art.Content), 0o644); err != nil {
		return fmt.Errorf("write driver: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported driver v%d for %s to %s\n", art.Version, task.Name, outPath)
	return nil
}

// defaultDriverFilename derives a safe output name from the device name
// and target language.
func defaultDriverFilename(task models.Task) string {
	name := make([]rune, 0, len(task.Name))
	for _, r := range task.Name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			name = append(name, r)
		case r >= 'A' && r <= 'Z':
			name = append(name, r+('a'-'A'))
		default:
			name = append(name, '_')
		}
	}

	ext := ".py"
	if task.TargetLanguage == models.LanguageCSharp {
		ext = ".cs"
	}
	return string(name) + ext
}
