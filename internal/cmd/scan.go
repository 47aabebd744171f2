package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eja/tazlink/internal/dispatch"
	"github.com/eja/tazlink/internal/hotspot"
	"github.com/eja/tazlink/internal/scanner"
	"github.com/eja/tazlink/internal/status"
	"github.com/spf13/cobra"
)

var scanAddresses []string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find backends on the local networks",
	Long: `Probe every address of each local /24 for a backend and print the ones
that answer. By default every IPv4 address of this device is used.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringSliceVar(&scanAddresses, "address", nil, "local address whose /24 is scanned (repeatable)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addrs := scanAddresses
	if len(addrs) == 0 {
		var err error
		addrs, err = hotspot.AllAddresses(ctx)
		if err != nil {
			return fmt.Errorf("failed to list local addresses: %w", err)
		}
	}
	if len(addrs) == 0 {
		return errors.New("no local IPv4 address to scan from")
	}

	loop := dispatch.NewLoop(64)
	defer loop.Close()
	s := newScanner(loop)

	fmt.Printf("Scanning %d network(s)...\n", len(addrs))
	found := 0
	pending := len(addrs)
	for _, addr := range addrs {
		s.ScanContext(ctx, addr, func(h scanner.DiscoveredHost) {
			found++
			fmt.Printf("  %-15s  %-20s  http://%s:%d/\n", h.Address, h.Name, h.Address, status.Port)
		}, func() {
			pending--
			if pending == 0 {
				loop.Close()
			}
		})
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if found == 0 {
		fmt.Println("No backends found")
	}
	return nil
}
