package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// NewTasksCommand creates the tasks command.
func NewTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List synthesis tasks",
		Long: `List synthesis tasks with status and attempt usage.

Examples:
  synthd tasks
  synthd tasks --status failed
  synthd tasks --page 2 --page-size 50`,
		Args: cobra.NoArgs,
		RunE: listTasks,
	}

	cmd.Flags().String("status", "", "Filter by status: queued, processing, success, failed")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("page-size", 20, "Tasks per page")

	return cmd
}

func listTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	if status != "" && !models.ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	tasks, err := s.ListTasks(ctx, page, pageSize, status)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEVICE\tSTATUS\tATTEMPTS\tUPDATED")
	for _, task := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n",
			task.ID, task.Name, task.Status, task.AttemptCount, task.MaxAttempts,
			task.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	fmt.Fprintln(out)
	for _, st := range []string{models.StatusQueued, models.StatusProcessing, models.StatusSuccess, models.StatusFailed} {
		n, err := s.CountByStatus(ctx, st)
		if err != nil {
			return fmt.Errorf("count %s tasks: %w", st, err)
		}
		fmt.Fprintf(out, "  %s: %d\n", st, n)
	}
	return nil
}
