package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/eja/tazlink/internal/session"
	"github.com/spf13/cobra"
)

var psAll bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List host sessions",
	Long:  `List the hosts and servers started on this machine with their status and details.`,
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

func init() {
	rootCmd.AddCommand(psCmd)
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "include stopped sessions")
}

func runPs(cmd *cobra.Command, args []string) error {
	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("failed to access session store: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if !psAll {
		var active []*session.HostSession
		for _, s := range sessions {
			if s.Active() {
				active = append(active, s)
			}
		}
		sessions = active
	}

	if len(sessions) == 0 {
		fmt.Println("No running sessions.")
		return nil
	}

	writeSessions(os.Stdout, sessions, processAlive)
	return nil
}

// sessionStatus is the displayed state. An active session whose owning
// process is gone is reported as stale.
func sessionStatus(s *session.HostSession, alive func(int) bool) string {
	if s.Active() && !alive(s.HostPID) {
		return "stale"
	}
	return s.State
}

func writeSessions(out io.Writer, sessions []*session.HostSession, alive func(int) bool) {
	// Create tabwriter for aligned output
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tNETWORK\tADDRESS\tBACKEND\tSTARTED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t-------\t-------\t-------")

	for _, s := range sessions {
		started := s.StartedAt.Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			sessionStatus(s, alive),
			orDash(s.Credentials.NetworkName),
			orDash(s.Credentials.Address),
			orDash(s.BackendName),
			started,
		)
	}

	_ = w.Flush()
}
