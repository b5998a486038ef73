package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/app"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/logger"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uploaderctl",
	Short: "Maintenance commands for the upload service",
	Long: `uploaderctl runs maintenance tasks against the upload service's
database and storage disk, using the same environment as the server.

Examples:
  uploaderctl status
  uploaderctl cleanup --dry-run
  uploaderctl thumbnails --missing-only --batch-size=100`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(thumbnailsCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

// openApp loads the environment and assembles the service without event consumers.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := configuration.Load()
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Server.LogEnabled = true
		cfg.Server.LogLevel = "debug"
	}
	return app.New(cmd.Context(), cfg, app.Options{}, logger.New(cfg))
}
