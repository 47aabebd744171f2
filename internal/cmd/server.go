package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/session"
	"github.com/eja/tazlink/internal/status"
	"github.com/spf13/cobra"
)

var (
	serverReadyTimeout time.Duration
	serverStatusURL    string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run or inspect the backend without hosting a network",
}

var serverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backend in the foreground",
	Long: `Run the backend inside the sandbox on the current network. The backend is
restarted on SIGHUP and stopped on interrupt.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the status endpoint of the local backend",
	Args:  cobra.NoArgs,
	RunE:  runServerStatus,
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart [session-id]",
	Short: "Restart the backend of a running host or server",
	Long: `Ask a running 'tazlink host' or 'tazlink server run' process to restart its
backend. Without a session ID the most recent active session is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServerRestart,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverRunCmd, serverStatusCmd, serverRestartCmd)

	serverRunCmd.Flags().DurationVar(&serverReadyTimeout, "ready-timeout", 30*time.Second, "how long to wait for the backend to answer")
	serverStatusCmd.Flags().StringVar(&serverStatusURL, "url", "", "status URL to query (default is the local backend)")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	loop := dispatch.NewLoop(16)
	defer loop.Close()

	sup, err := newSupervisor(ctx, loop)
	if err != nil {
		return err
	}
	defer sup.Stop()

	ba, bargs := backendArgs()
	sess := &session.HostSession{
		ID:          session.NewID(),
		State:       session.StateServing,
		HostPID:     os.Getpid(),
		BackendName: ba.Name,
		StartedAt:   time.Now(),
	}
	save := func() {
		if err := store.Save(sess); err != nil {
			log.Warn().Err(err).Msg("failed to save session")
		}
	}

	if err := sup.Start(bargs); err != nil {
		return err
	}
	sess.BackendPID = sup.Handle().PID
	save()

	readyCtx, cancel := context.WithTimeout(ctx, serverReadyTimeout)
	snap, err := sup.WaitReady(readyCtx)
	cancel()
	if err != nil {
		for _, line := range sup.Output() {
			fmt.Fprintln(os.Stderr, line)
		}
		sess.MarkStopped("failed", time.Now())
		save()
		return err
	}
	printStatus(snap)
	fmt.Println("\nPress Ctrl-C to stop")

	var runErr error
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	// Watch for restarts requested from outside and for the backend exiting
	// on its own.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				loop.Post(func() {
					fmt.Println("Restarting backend...")
					if err := sup.Restart(bargs); err != nil {
						runErr = err
						loop.Close()
						return
					}
					sess.BackendPID = sup.Handle().PID
					save()
				})
			case <-ticker.C:
				loop.Post(func() {
					if sup.Handle().PID == 0 {
						runErr = errors.New("backend exited")
						loop.Close()
					}
				})
			}
		}
	}()

	err = loop.Run(ctx)
	sup.Stop()

	reason := "signal"
	if runErr != nil {
		reason = "failed"
		for _, line := range sup.Output() {
			fmt.Fprintln(os.Stderr, line)
		}
	} else if err == nil {
		reason = "stopped"
	}
	sess.MarkStopped(reason, time.Now())
	save()
	return runErr
}

func runServerStatus(cmd *cobra.Command, args []string) error {
	loop := dispatch.NewLoop(1)
	defer loop.Close()

	sup := healthSupervisor(loop)
	var snap *status.Snapshot
	if serverStatusURL != "" {
		client := status.NewClient(time.Second, 1500*time.Millisecond)
		s, err := status.Fetch(cmd.Context(), client, serverStatusURL)
		if err == nil {
			snap = &s
		}
	} else {
		sup.PollHealth(func(s *status.Snapshot) {
			snap = s
			loop.Close()
		})
		if err := loop.Run(cmd.Context()); err != nil {
			return err
		}
	}

	if snap == nil {
		printFail("Backend unreachable")
		return errors.New("backend unreachable")
	}
	printStatus(snap)
	return nil
}

func printStatus(snap *status.Snapshot) {
	printTitle(snap.Name)
	printField("version", snap.Version)
	printField("uptime", (time.Duration(snap.UptimeSeconds) * time.Second).String())
	if snap.Port > 0 {
		printField("port", fmt.Sprintf("%d", snap.Port))
	}
	for _, p := range snap.Peers {
		printField("peer", fmt.Sprintf("%s  %s %s", p.Address, p.Name, p.Version))
	}
}

func runServerRestart(cmd *cobra.Command, args []string) error {
	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	var sess *session.HostSession
	if len(args) == 1 {
		sess, err = store.Load(args[0])
		if err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}
	} else {
		sess, err = latestActive(store)
		if err != nil {
			return err
		}
	}

	if !sess.Active() || !processAlive(sess.HostPID) {
		return fmt.Errorf("session %s is not running", sess.ID)
	}
	if err := signalProcess(sess.HostPID, syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to signal session %s: %w", sess.ID, err)
	}
	fmt.Printf("Restart requested for session %s\n", sess.ID)
	return nil
}

// latestActive returns the most recently started session whose owning
// process is still alive.
func latestActive(store *session.Store) (*session.HostSession, error) {
	sessions, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if s := sessions[i]; s.Active() && processAlive(s.HostPID) {
			return s, nil
		}
	}
	return nil, errors.New("no running session")
}
