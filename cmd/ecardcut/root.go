package main

import (
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envPath    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ecardcut",
	Short: "ecardcut - e-card cutter with automatic file expiry",
	Long: `ecardcut crops identity cards out of e-card scans, converts images and
prepares passport photos. Every file it stores is deleted automatically once
it is older than the configured retention window.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: "+constants.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVarP(&envPath, "env", "e", constants.DefaultEnvPath, "Path to .env file (ignored if missing)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(statsCmd)
}
