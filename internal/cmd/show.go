package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task details and attempt history",
		Args:  cobra.ExactArgs(1),
		RunE:  showTask,
	}
	return cmd
}

func showTask(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task %s\n", task.ID)
	fmt.Fprintf(out, "  Device:   %s\n", task.Name)
	fmt.Fprintf(out, "  Language: %s\n", task.TargetLanguage)
	fmt.Fprintf(out, "  Status:   %s\n", task.Status)
	fmt.Fprintf(out, "  Attempts: %d/%d\n", task.AttemptCount, task.MaxAttempts)
	fmt.Fprintf(out, "  Created:  %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Updated:  %s\n", task.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if task.LastError != "" {
		fmt.Fprintf(out, "  Last error: %s\n", task.LastError)
	}

	if art, err := s.GetArtifactForTask(ctx, task.ID); err == nil {
		fmt.Fprintf(out, "\nDriver artifact %s\n", art.ID)
		fmt.Fprintf(out, "  Version:     %d\n", art.Version)
		fmt.Fprintf(out, "  Size:        %d bytes\n", len(art.Content))
		fmt.Fprintf(out, "  Fingerprint: %s\n", art.Fingerprint)
		fmt.Fprintf(out, "  Created:     %s\n", art.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load artifact: %w", err)
	}

	logs, err := s.AttemptLogsForTask(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("load attempt history: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\nAttempt history\n")
	for _, l := range logs {
		if l.Success {
			fmt.Fprintf(out, "  #%d  ok  (confidence %.2f", l.AttemptNumber, l.Confidence)
			if len(l.TestedRegs) > 0 {
				fmt.Fprintf(out, ", registers %s", strings.Join(l.TestedRegs, " "))
			}
			fmt.Fprintf(out, ")\n")
			continue
		}
		fmt.Fprintf(out, "  #%d  %s  %s\n", l.AttemptNumber, l.ErrorKind, l.ErrorMessage)
		if l.ExpectedBytes != "" || l.ActualBytes != "" {
			fmt.Fprintf(out, "       expected %s, actual %s", l.ExpectedBytes, l.ActualBytes)
			if l.ErrorBytePos >= 0 {
				fmt.Fprintf(out, ", byte position %d", l.ErrorBytePos)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
