package cmd

import (
	"fmt"

	"github.com/eja/tazlink/internal/logger"
	"github.com/eja/tazlink/internal/sandbox"
	"github.com/eja/tazlink/internal/session"
	"github.com/spf13/cobra"
)

var (
	pruneAll     bool
	pruneSandbox bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Clean up old sessions and the backend sandbox",
	Long: `Clean up finished sessions and backend state to free up disk space.

This command removes:
  - Stopped and stale sessions
  - The backend home and temp directories (with --sandbox)`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneAll, "all", "a", false, "remove all session records (including running)")
	pruneCmd.Flags().BoolVar(&pruneSandbox, "sandbox", false, "also remove the backend home and temp directories")
}

func runPrune(cmd *cobra.Command, args []string) error {
	fmt.Println("Cleaning up sessions...")

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	removedCount := 0
	for _, sess := range sessions {
		st := sessionStatus(sess, processAlive)
		if !pruneAll && st != session.StateStopped && st != "stale" {
			continue
		}
		if err := store.Delete(sess.ID); err != nil {
			fmt.Printf("Warning: failed to delete session %s: %v\n", sess.ID, err)
		} else {
			fmt.Printf("Removed session: %s\n", sess.ID)
			removedCount++
		}
	}

	if removedCount == 0 {
		fmt.Println("No sessions to remove.")
	} else {
		fmt.Printf("Removed %d session(s).\n", removedCount)
	}

	if pruneSandbox {
		fmt.Println("\nCleaning up sandbox...")
		sb, err := sandbox.NewManager(logger.Component(log, "sandbox"))
		if err != nil {
			return fmt.Errorf("failed to access sandbox: %w", err)
		}
		if err := sb.Clean(); err != nil {
			return fmt.Errorf("failed to clean sandbox: %w", err)
		}
		fmt.Println("Sandbox removed.")
	}

	return nil
}
