package cmd

import (
	"fmt"

	"github.com/eja/tazlink/internal/session"
	"github.com/spf13/cobra"
)

var killForce bool

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Remove unfinished host sessions",
	Long: `Remove host sessions that never finished starting.

By default, only removes sessions whose owning process is gone. Use --force
to also kill running hosts and their backends without a clean shutdown.

Note: Stopped sessions are handled by 'tazlink prune'.`,
	Args: cobra.NoArgs,
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
	killCmd.Flags().BoolVarP(&killForce, "force", "f", false, "also kill and remove running sessions")
}

func runKill(cmd *cobra.Command, args []string) error {
	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	removedCount := 0
	skippedRunning := 0

	for _, sess := range sessions {
		switch sessionStatus(sess, processAlive) {
		case session.StateStopped:
			// Stopped sessions are handled by prune, skip them
			continue

		case "stale":
			// The owner died; a backend may still be running
			killLeftovers(sess, false)
			if err := store.Delete(sess.ID); err != nil {
				fmt.Printf("Warning: failed to delete session %s: %v\n", sess.ID, err)
			} else {
				fmt.Printf("Removed session: %s (stale)\n", sess.ID)
				removedCount++
			}

		default:
			if !killForce {
				skippedRunning++
				continue
			}
			killLeftovers(sess, true)
			if err := store.Delete(sess.ID); err != nil {
				fmt.Printf("Warning: failed to delete session %s: %v\n", sess.ID, err)
			} else {
				fmt.Printf("Killed and removed session: %s (%s)\n", sess.ID, sess.State)
				removedCount++
			}
		}
	}

	if skippedRunning > 0 {
		fmt.Printf("Skipped %d running session(s). Use --force to remove them.\n", skippedRunning)
	}

	if removedCount == 0 {
		fmt.Println("No sessions to remove.")
	} else {
		fmt.Printf("Removed %d session(s).\n", removedCount)
	}

	return nil
}

func killLeftovers(sess *session.HostSession, host bool) {
	pids := []int{sess.BackendPID}
	if host {
		pids = append(pids, sess.HostPID)
	}
	for _, pid := range pids {
		if !processAlive(pid) {
			continue
		}
		if err := killProcess(pid); err != nil {
			fmt.Printf("Warning: failed to kill process %d: %v\n", pid, err)
		}
	}
}
