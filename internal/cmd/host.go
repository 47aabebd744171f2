package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eja/tazlink/internal/credential"
	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/session"
	"github.com/eja/tazlink/internal/status"
	"github.com/eja/tazlink/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	hostNoBLE        bool
	hostReadyTimeout time.Duration
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a local network and serve the backend on it",
	Long: `Start a local-only access point, run the backend inside the sandbox and
broadcast the network credentials to nearby devices.

The command runs in the foreground until interrupted. Send SIGHUP (or run
'tazlink server restart') to restart the backend without dropping the network.`,
	Args: cobra.NoArgs,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().BoolVar(&hostNoBLE, "no-ble", false, "do not broadcast credentials over bluetooth")
	hostCmd.Flags().DurationVar(&hostReadyTimeout, "ready-timeout", 30*time.Second, "how long to wait for the backend to answer")
}

// hostRun carries the state of one host invocation. Every method runs on the
// loop goroutine.
type hostRun struct {
	ctx     context.Context
	loop    *dispatch.Loop
	store   *session.Store
	sess    *session.HostSession
	sup     *supervisor.Supervisor
	channel *credential.Channel
	args    []string
	err     error
}

func runHost(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	loop := dispatch.NewLoop(32)
	defer loop.Close()

	sup, err := newSupervisor(ctx, loop)
	if err != nil {
		return err
	}
	channel, closeRadio := newChannel(loop)
	defer closeRadio()
	ap := newHotspotManager(loop)

	ba, bargs := backendArgs()
	h := &hostRun{
		ctx:     ctx,
		loop:    loop,
		store:   store,
		sup:     sup,
		channel: channel,
		args:    bargs,
		sess: &session.HostSession{
			ID:          session.NewID(),
			HostPID:     os.Getpid(),
			BackendName: ba.Name,
			StartedAt:   time.Now(),
		},
	}

	fmt.Println("Starting access point...")
	ap.Reserve(h.onReserved, func() {
		h.fail(errors.New("failed to start the access point"))
	})

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			loop.Post(h.restartBackend)
		}
	}()

	runErr := loop.Run(ctx)

	// Teardown happens in reverse order of setup
	channel.StopBroadcast()
	sup.Stop()
	ap.StopHost()

	reason := "stopped"
	switch {
	case h.err != nil:
		reason = "failed"
	case errors.Is(runErr, context.Canceled):
		reason = "signal"
	}
	h.sess.MarkStopped(reason, time.Now())
	h.save()

	if h.err != nil {
		return h.err
	}
	fmt.Println("Host stopped")
	return nil
}

func (h *hostRun) onReserved(creds credential.Credentials) {
	h.sess.Credentials = creds
	h.sess.State = session.StateReserved
	h.save()

	if err := h.sup.Start(h.args); err != nil {
		h.fail(err)
		return
	}
	h.sess.BackendPID = h.sup.Handle().PID
	h.save()

	fmt.Println("Waiting for backend...")
	go func() {
		ctx, cancel := context.WithTimeout(h.ctx, hostReadyTimeout)
		defer cancel()
		snap, err := h.sup.WaitReady(ctx)
		h.loop.Post(func() { h.onReady(snap, err) })
	}()
}

func (h *hostRun) onReady(snap *status.Snapshot, err error) {
	if err != nil {
		for _, line := range h.sup.Output() {
			fmt.Fprintln(os.Stderr, line)
		}
		h.fail(err)
		return
	}

	h.sess.State = session.StateServing
	if !hostNoBLE {
		if err := h.channel.Broadcast(h.sess.Credentials); err != nil {
			log.Warn().Err(err).Msg("credentials will not be broadcast")
		} else {
			h.sess.State = session.StateBroadcasting
		}
	}
	h.save()

	creds := h.sess.Credentials
	printTitle("Hosting " + snap.Name)
	printField("session", h.sess.ID)
	printField("network", creds.NetworkName)
	printField("password", creds.Passphrase)
	printField("address", creds.Address)
	printField("url", "http://"+creds.Address+fmt.Sprintf(":%d/", status.Port))
	printField("version", snap.Version)
	if h.channel.Broadcasting() {
		printOK("Broadcasting credentials to nearby devices")
	}
	fmt.Println("\nPress Ctrl-C to stop")
}

func (h *hostRun) restartBackend() {
	if h.sess.State == "" || !h.sess.Active() {
		return
	}
	fmt.Println("Restarting backend...")
	if err := h.sup.Restart(h.args); err != nil {
		h.fail(err)
		return
	}
	h.sess.BackendPID = h.sup.Handle().PID
	h.save()
}

func (h *hostRun) fail(err error) {
	h.err = err
	h.loop.Close()
}

func (h *hostRun) save() {
	if err := h.store.Save(h.sess); err != nil {
		log.Warn().Err(err).Str("session", h.sess.ID).Msg("failed to save session")
	}
}
