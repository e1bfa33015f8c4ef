package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/adapters/driving/watch"
	"github.com/custodia-labs/sercha-media/internal/core/services"
)

var (
	watchDebounce  string
	watchNoRescan  bool
	watchCronSpec  string
	watchOnceFirst bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Keep directories indexed",
	Long: `Watches directories and indexes media files as they appear or change.
Deleted files are removed from the index. Without arguments the paths in
watch.paths are used. When watch.rescan_cron is set, the trees are also
rescanned on that schedule to catch changes missed while not running.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDebounce, "debounce", "", "quiet period before a changed file is indexed (e.g. 2s)")
	watchCmd.Flags().BoolVar(&watchNoRescan, "no-rescan", false, "disable scheduled rescans")
	watchCmd.Flags().StringVar(&watchCronSpec, "cron", "", "rescan schedule, overrides watch.rescan_cron")
	watchCmd.Flags().BoolVar(&watchOnceFirst, "initial-scan", true, "index existing files before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	roots := args
	spec := watchCronSpec
	if appSettings != nil {
		if len(roots) == 0 {
			roots = appSettings.Watch.Paths
		}
		if spec == "" {
			spec = appSettings.Watch.RescanCron
		}
	}
	if len(roots) == 0 {
		return errors.New("no paths to watch: pass paths or set watch.paths")
	}

	debounce, err := parseOptionalDuration(watchDebounce)
	if err != nil {
		return fmt.Errorf("invalid --debounce: %w", err)
	}

	w := watch.New(roots, ingestService, debounce)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Close()

	schedErr := make(chan error, 1)
	if !watchNoRescan && spec != "" {
		// Start scans once, then blocks until ctx ends or Stop.
		sched := services.NewRescanScheduler(roots, spec, ingestService)
		sctx, stopSched := context.WithCancel(ctx)
		defer stopSched()
		go func() { schedErr <- sched.Start(sctx) }()
		cmd.Printf("Rescanning on %q\n", spec)
	} else if watchOnceFirst {
		n, err := services.NewRescanScheduler(roots, "", ingestService).Rescan(ctx)
		if err != nil {
			return fmt.Errorf("initial scan: %w", err)
		}
		cmd.Printf("Submitted %d existing file(s)\n", n)
	}

	cmd.Printf("Watching %d path(s). Press Ctrl+C to stop.\n", len(roots))
	select {
	case <-ctx.Done():
	case <-w.Done():
	case err := <-schedErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("rescan schedule: %w", err)
		}
	}
	cmd.Println("Stopped.")
	return nil
}
