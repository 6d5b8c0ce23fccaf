package cli

import (
	"github.com/ralt/publishkit/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "publishkit",
		Short: "Resolve publish targets and build escrow packages",
		Long: `Publishkit decides which artifact repository a build publishes to and
assembles deterministic escrow packages for third-party deposit.

Commands:
  - resolve: pick the snapshot, staging or release repository for a version
  - escrow:  bundle sources, dependencies and license metadata
  - verify:  check an escrow package's fingerprint and signature
  - history: list previously built escrow packages`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to publishkit.yaml (searched in standard locations if empty)")

	// Add subcommands
	rootCmd.AddCommand(NewResolveCmd())
	rootCmd.AddCommand(NewEscrowCmd())
	rootCmd.AddCommand(NewVerifyCmd())
	rootCmd.AddCommand(NewHistoryCmd())

	return rootCmd
}

// loadConfig reads --config, falls back to the search path, and finally to
// the built-in defaults
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		found, err := config.FindConfigFile()
		if err != nil {
			logrus.Debugf("Using default configuration: %v", err)
			return config.DefaultConfig(), nil
		}
		path = found
	}

	logrus.Debugf("Loading configuration from %s", path)
	return config.Load(path)
}
