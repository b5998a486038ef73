package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stored files that no upload record refers to",
	Long: `Lists the upload directory on the configured disk and deletes every
file that is neither an original nor a thumbnail of a live or trashed record.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "List orphaned files without deleting them")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Service.CleanupOrphans(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range report.Files {
		fmt.Fprintln(out, f)
	}
	if report.DryRun {
		fmt.Fprintf(out, "%d orphaned file(s) found (dry run)\n", len(report.Files))
		return nil
	}
	fmt.Fprintf(out, "%d orphaned file(s) removed\n", report.Cleaned)
	return nil
}
