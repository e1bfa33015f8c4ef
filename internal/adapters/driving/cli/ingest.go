package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/services"
)

// pollInterval is how often ingest refreshes task progress.
var pollInterval = 500 * time.Millisecond

var (
	ingestNoWait bool
	ingestJSON   bool
	statusLimit  int
	statusJSON   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path-or-uri>...",
	Short: "Index media files",
	Long: `Submits media files for indexing and waits for them to finish.
Directories are walked for supported files; s3:// URIs are passed through.
Interrupting cancels the tasks that are still running.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show ingestion task status",
	Long:  `Shows one task, or the most recent tasks when no id is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel an ingestion task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var removeCmd = &cobra.Command{
	Use:   "remove <path-or-uri>",
	Short: "Remove a file from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false, "print task ids and return")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output final task states as JSON")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "number of recent tasks to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(ingestCmd, statusCmd, cancelCmd, removeCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	uris, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		cmd.Println("No supported media files found.")
		return nil
	}

	ids, err := ingestService.BatchSubmit(ctx, uris)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	var taskIDs []string
	for i, id := range ids {
		if id == "" {
			cmd.Printf("Skipped %s\n", uris[i])
			continue
		}
		taskIDs = append(taskIDs, id)
	}

	if ingestNoWait {
		for _, id := range taskIDs {
			cmd.Println(id)
		}
		return nil
	}

	cmd.Printf("Indexing %d file(s)...\n", len(taskIDs))
	tasks := waitWithProgress(ctx, cmd, taskIDs)

	if ingestJSON {
		if err := printJSON(cmd, tasks); err != nil {
			return err
		}
	} else if err := summarise(cmd, tasks); err != nil {
		return err
	}
	return ctx.Err()
}

// expandInputs replaces local directories with the media files under them.
func expandInputs(args []string) ([]string, error) {
	var uris []string
	for _, arg := range args {
		if strings.Contains(arg, "://") && !strings.HasPrefix(arg, "file://") {
			uris = append(uris, arg)
			continue
		}
		path := strings.TrimPrefix(arg, "file://")
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if !info.IsDir() {
			uris = append(uris, path)
			continue
		}
		files, err := services.ListMediaFiles([]string{path})
		if err != nil {
			return nil, err
		}
		uris = append(uris, files...)
	}
	return uris, nil
}

// waitWithProgress polls the tasks until all are terminal. If ctx ends first
// the remaining tasks are cancelled.
func waitWithProgress(ctx context.Context, cmd *cobra.Command, ids []string) []domain.ProcessingTask {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	latest := make(map[string]domain.ProcessingTask, len(ids))
	poll := func(c context.Context) int {
		done := 0
		for _, id := range ids {
			if t, ok := latest[id]; ok && t.IsDone() {
				done++
				continue
			}
			t, err := ingestService.Status(c, id)
			if err != nil {
				continue // best effort
			}
			latest[id] = *t
			if t.IsDone() {
				done++
			}
		}
		return done
	}

	for {
		done := poll(ctx)
		cmd.Printf("\rProcessed %d/%d", done, len(ids))
		if done == len(ids) {
			cmd.Println()
			break
		}
		select {
		case <-ctx.Done():
			cmd.Println("\nInterrupted, cancelling remaining tasks...")
			// The command context is gone; give cancellation its own.
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for _, id := range ids {
				if t, ok := latest[id]; ok && t.IsDone() {
					continue
				}
				if err := ingestService.Cancel(cctx, id); err != nil && !errors.Is(err, domain.ErrTaskTerminal) {
					cmd.Printf("cancel %s: %v\n", id, err)
				}
			}
			poll(cctx)
			cancel()
			return orderedTasks(ids, latest)
		case <-ticker.C:
		}
	}
	return orderedTasks(ids, latest)
}

func orderedTasks(ids []string, latest map[string]domain.ProcessingTask) []domain.ProcessingTask {
	tasks := make([]domain.ProcessingTask, 0, len(ids))
	for _, id := range ids {
		if t, ok := latest[id]; ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func summarise(cmd *cobra.Command, tasks []domain.ProcessingTask) error {
	p := newPainter(cmd.OutOrStdout())
	failed := 0
	for i := range tasks {
		t := &tasks[i]
		line := fmt.Sprintf("  %-10s %s", t.State, t.URI)
		if t.FailedSegments > 0 {
			line += fmt.Sprintf(" (%d/%d segments skipped)", t.FailedSegments, t.TotalSegments)
		}
		if t.State == domain.TaskFailed {
			failed++
			if t.Error != nil {
				line += ": " + t.Error.Kind.String() + ": " + t.Error.Message
			}
			line = p.render(errorStyle, line)
		}
		cmd.Println(line)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(tasks))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}

	if len(args) == 1 {
		if ingestService == nil {
			return errors.New("ingestion service not configured")
		}
		task, err := ingestService.Status(ctx, args[0])
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(cmd, task)
		}
		printTask(cmd, task)
		return nil
	}

	if metadataStore == nil {
		return errors.New("metadata store not configured")
	}
	tasks, err := metadataStore.ListTasks(ctx, statusLimit)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if statusJSON {
		return printJSON(cmd, tasks)
	}
	if len(tasks) == 0 {
		cmd.Println("No tasks.")
		return nil
	}
	for i := range tasks {
		t := &tasks[i]
		cmd.Printf("  %s  %-13s %3.0f%%  %s\n", t.ID, t.State, t.Progress*100, t.URI)
	}
	return nil
}

func printTask(cmd *cobra.Command, t *domain.ProcessingTask) {
	cmd.Printf("Task:     %s\n", t.ID)
	cmd.Printf("File:     %s\n", t.URI)
	cmd.Printf("State:    %s\n", t.State)
	cmd.Printf("Progress: %.0f%%\n", t.Progress*100)
	if t.TotalSegments > 0 {
		cmd.Printf("Segments: %d (%d skipped)\n", t.TotalSegments, t.FailedSegments)
	}
	if t.RetryCount > 0 {
		cmd.Printf("Retries:  %d\n", t.RetryCount)
	}
	if t.Error != nil {
		cmd.Printf("Error:    %s: %s\n", t.Error.Kind, t.Error.Message)
	}
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}
	if err := ingestService.Cancel(ctx, args[0]); err != nil {
		return fmt.Errorf("cancel failed: %w", err)
	}
	cmd.Printf("Task %s cancelled.\n", args[0])
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}
	if err := ingestService.Remove(ctx, args[0]); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	cmd.Printf("Removed %s from the index.\n", args[0])
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
