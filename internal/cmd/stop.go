package cmd

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/eja/tazlink/internal/session"
	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a host session",
	Long: `Stop a running host or server by its session ID. The owning tazlink process
is asked to shut down so that the access point is released cleanly. If that
process is already gone, the leftover backend is killed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "how long to wait for a clean shutdown")
}

func runStop(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	sess, err := store.Load(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if !sess.Active() {
		fmt.Printf("Session %s is already stopped.\n", sessionID)
		return nil
	}

	if processAlive(sess.HostPID) {
		if err := signalProcess(sess.HostPID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop session %s: %w", sessionID, err)
		}
		if waitExit(sess.HostPID, stopTimeout) {
			fmt.Printf("Session %s stopped.\n", sessionID)
			return nil
		}
		log.Warn().Int("pid", sess.HostPID).Msg("host did not exit in time, killing it")
		_ = killProcess(sess.HostPID)
	}

	// The owner is gone without cleaning up
	if sess.BackendPID > 0 && processAlive(sess.BackendPID) {
		if err := killProcess(sess.BackendPID); err != nil {
			log.Warn().Err(err).Int("pid", sess.BackendPID).Msg("failed to kill backend")
		}
	}
	sess.MarkStopped("stopped", time.Now())
	if err := store.Save(sess); err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}

	fmt.Printf("Session %s stopped.\n", sessionID)
	return nil
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !processAlive(pid)
}
