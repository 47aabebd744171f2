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
	"github.com/eja/tazlink/internal/hotspot"
	"github.com/eja/tazlink/internal/status"
	"github.com/spf13/cobra"
)

var (
	joinTimeout time.Duration
	joinSSID    string
	joinPass    string
	joinAddr    string
	joinNoJoin  bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a nearby host",
	Long: `Scan for a nearby host broadcasting its credentials and join its network.

The network can also be given directly:
  tazlink join --ssid taz-1a2b --pass secret --addr 10.42.0.1`,
	Args: cobra.NoArgs,
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().DurationVar(&joinTimeout, "timeout", 60*time.Second, "how long to scan for a host")
	joinCmd.Flags().StringVar(&joinSSID, "ssid", "", "network name to join instead of scanning")
	joinCmd.Flags().StringVar(&joinPass, "pass", "", "network passphrase (with --ssid)")
	joinCmd.Flags().StringVar(&joinAddr, "addr", "", "host address on the joined network (with --ssid)")
	joinCmd.Flags().BoolVar(&joinNoJoin, "no-join", false, "only print the received credentials")
}

var errNoHost = errors.New("no host found")

func runJoin(cmd *cobra.Command, args []string) error {
	if joinSSID == "" && (joinPass != "" || joinAddr != "") {
		return errors.New("--pass and --addr require --ssid")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := dispatch.NewLoop(16)
	defer loop.Close()

	ap := newHotspotManager(loop)
	var result error
	finish := func(err error) {
		result = err
		loop.Close()
	}

	onCredentials := func(creds credential.Credentials) {
		printTitle("Found " + creds.NetworkName)
		printField("network", creds.NetworkName)
		if creds.Address != "" {
			printField("address", creds.Address)
		}
		if joinNoJoin {
			printField("password", creds.Passphrase)
			finish(nil)
			return
		}

		fmt.Printf("Joining %s...\n", creds.NetworkName)
		ap.Join(creds.NetworkName, creds.Passphrase, func(assoc hotspot.Association) {
			printOK("Joined %s on %s (%s)", creds.NetworkName, orDash(assoc.Interface), assoc.Strategy)
			if creds.Address == "" {
				finish(nil)
				return
			}
			printField("url", fmt.Sprintf("http://%s:%d/", creds.Address, status.Port))
			go func() {
				snap, err := fetchOver(ctx, assoc, creds.Address)
				loop.Post(func() {
					if err != nil {
						log.Debug().Err(err).Msg("status unavailable")
						printFail("Backend not answering yet")
					} else {
						printField("backend", snap.Name+" "+snap.Version)
					}
					finish(nil)
				})
			}()
		}, func() {
			finish(fmt.Errorf("failed to join %s", creds.NetworkName))
		})
	}

	if joinSSID != "" {
		loop.Post(func() {
			onCredentials(credential.Credentials{NetworkName: joinSSID, Passphrase: joinPass, Address: joinAddr})
		})
	} else {
		channel, closeRadio := newChannel(loop)
		defer closeRadio()

		fmt.Println("Looking for a nearby host...")
		var cancelScan credential.CancelFunc
		scanning := true
		cancelScan = channel.Scan(func(creds credential.Credentials) {
			scanning = false
			cancelScan()
			onCredentials(creds)
		}, func() {
			finish(errors.New("bluetooth scan failed"))
		})
		defer cancelScan()

		timer := time.AfterFunc(joinTimeout, func() {
			loop.Post(func() {
				if scanning {
					finish(errNoHost)
				}
			})
		})
		defer timer.Stop()
	}

	if err := loop.Run(ctx); err != nil && result == nil {
		return err
	}
	return result
}

// fetchOver queries the host status through the joined interface.
func fetchOver(ctx context.Context, assoc hotspot.Association, addr string) (status.Snapshot, error) {
	client := status.NewClientWithDialer(assoc.Dialer(), 2*time.Second, 5*time.Second)
	return status.Fetch(ctx, client, status.URL(addr))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
