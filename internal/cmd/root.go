package cmd

import (
	"fmt"

	"github.com/eja/tazlink/internal/config"
	"github.com/eja/tazlink/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool

	// Populated by loadRuntime before any subcommand runs
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tazlink",
	Short: "tazlink - zero-configuration links between nearby devices",
	Long: `tazlink turns this device into an ad-hoc host for the taz backend, or joins
a nearby host without any manual network setup.

Host a network and broadcast its credentials:
  tazlink host

Join the nearest host:
  tazlink join

Find backends on the local network:
  tazlink scan

Manage hosts started on this machine:
  tazlink ps
  tazlink stop <session-id>
  tazlink prune`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tazlink/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadRuntime(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		c.Log.Debug = true
	}

	l, err := logger.New(c.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	cfg, log = c, l
	log.Debug().Str("config", cfgFile).Msg("config loaded")
	return nil
}
