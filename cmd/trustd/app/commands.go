// Package app provides the entry point for the trustd command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duydn-dev/identityserver/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "trustd",
	DisableAutoGenTag: true,
	Short:             "trustd is the client-credential trust service for the identity provider",
	Long: `trustd manages the RSA key pairs issued to external clients, verifies
signed client requests, and administers the persisted grants and sessions
left behind by the OAuth/OIDC authorization engine.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the trustd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
