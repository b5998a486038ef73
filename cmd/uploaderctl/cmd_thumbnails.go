package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
)

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Generate thumbnails for stored images",
	RunE:  runThumbnails,
}

func init() {
	thumbnailsCmd.Flags().Bool("missing-only", true, "Only process images missing a configured size")
	thumbnailsCmd.Flags().Bool("regenerate", false, "Rebuild every thumbnail, overrides --missing-only")
	thumbnailsCmd.Flags().Int("batch-size", 50, "Records loaded per batch")
}

func runThumbnails(cmd *cobra.Command, args []string) error {
	missingOnly, _ := cmd.Flags().GetBool("missing-only")
	regenerate, _ := cmd.Flags().GetBool("regenerate")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize < 1 {
		return fmt.Errorf("--batch-size must be positive, got %d", batchSize)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Service.RegenerateThumbnails(cmd.Context(), uploader.ThumbnailOptions{
		MissingOnly: missingOnly && !regenerate,
		BatchSize:   batchSize,
	})
	if errors.Is(err, uploader.ErrImagesUnavailable) {
		return errors.New("no image driver configured, set IMAGE_DRIVER to imaging or basic")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %d, generated %d, skipped %d, errors %d\n",
		report.Processed, report.Generated, report.Skipped, report.Errors)
	return nil
}
