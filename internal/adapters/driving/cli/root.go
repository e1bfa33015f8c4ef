// Package cli implements the sercha-media command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Build metadata, set with -ldflags "-X .../cli.version=...".
var (
	version = "dev"
	commit  = ""
	built   = ""
)

var (
	verbose   bool
	configDir string
	envFile   string
)

// Services used by the commands. wireServices fills them on first use;
// tests assign them directly and set servicesReady.
var (
	settingsService driving.SettingsService
	ingestService   driving.IngestionService
	searchService   driving.SearchService
	personService   driving.PersonService
	maintenance     driving.IndexMaintenance
	configStore     driven.ConfigStore
	metadataStore   driven.MetadataStore
	appSettings     *domain.AppSettings
	servicesReady   bool
	closers         []func() error
)

var rootCmd = &cobra.Command{
	Use:   "sercha-media",
	Short: "Index and search images, video and audio",
	Long: `sercha-media indexes local and S3 media into per-modality vector
collections (visual, music, speech, face) and answers text or example-media
queries with timestamps on each file's timeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return loadEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default ~/.sercha-media)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with provider API keys")
}

// Execute runs the root command. Interrupts cancel the command context so
// running ingestion stops cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeServices()
	return rootCmd.ExecuteContext(ctx)
}

// loadEnv reads the dotenv file when present. Variables already set win.
func loadEnv() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	logger.Debug("Loaded environment from %s", envFile)
	return nil
}

// ensureServices wires the services on first use.
func ensureServices(ctx context.Context) error {
	if servicesReady {
		return nil
	}
	if err := wireServices(ctx); err != nil {
		closeServices()
		return err
	}
	servicesReady = true
	return nil
}

// closeServices releases wired resources in reverse order.
func closeServices() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}
	closers = nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
