package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show uploader configuration and storage totals",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	status := a.Service.Status()
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%-20s %v\n", k, status[k])
	}

	stats, err := a.Service.GlobalStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-20s %d\n", "total_files", stats.TotalFiles)
	fmt.Fprintf(out, "%-20s %s\n", "total_size", stats.TotalSizeFormatted)
	fmt.Fprintf(out, "%-20s %d\n", "images", stats.ImageCount)
	fmt.Fprintf(out, "%-20s %d\n", "documents", stats.DocumentCount)
	fmt.Fprintf(out, "%-20s %d\n", "uploaded_today", stats.TodayCount)
	return nil
}
