package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	resetFile string
	resetYes  bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete indexed data",
	Long: `Deletes every vector and metadata record, or only those of one file
with --file. Registered people and settings are kept.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetFile, "file", "", "only reset this file id")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	target := "the whole index"
	if resetFile != "" {
		target = "file " + resetFile
	}
	if !resetYes {
		if !isInteractive() && cmd.InOrStdin() == os.Stdin {
			return errors.New("refusing to reset without a terminal; pass --yes")
		}
		if !confirm(cmd, cmd.InOrStdin(), "Delete "+target+"?") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	ctx := commandContext(cmd)
	if err := ensureServices(ctx); err != nil {
		return err
	}
	if maintenance == nil {
		return errors.New("index maintenance not configured")
	}
	if err := maintenance.Reset(ctx, resetFile); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	cmd.Printf("Reset %s.\n", target)
	return nil
}
