package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/eja/tazlink/internal/hotspot"
	"github.com/spf13/cobra"
)

var addrsCmd = &cobra.Command{
	Use:   "addrs",
	Short: "List the local IPv4 addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		byIP, err := hotspot.InterfaceAddresses(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list addresses: %w", err)
		}
		if len(byIP) == 0 {
			fmt.Println("No IPv4 addresses.")
			return nil
		}

		ips := make([]string, 0, len(byIP))
		for ip := range byIP {
			ips = append(ips, ip)
		}
		sort.Strings(ips)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ADDRESS\tINTERFACE")
		for _, ip := range ips {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", ip, byIP[ip])
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(addrsCmd)
}
