package uploader

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

// CleanupReport lists the orphaned blobs found, and removed unless DryRun.
type CleanupReport struct {
	Cleaned int      `json:"cleaned"`
	Files   []string `json:"files"`
	DryRun  bool     `json:"dry_run"`
}

type ThumbnailOptions struct {
	// MissingOnly skips images that already have every configured size.
	MissingOnly bool
	BatchSize   int
}

type ThumbnailReport struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Cleanup is CleanupOrphans for administrators.
func (s *Service) Cleanup(ctx context.Context, actor auth.Actor, dryRun bool) (CleanupReport, error) {
	if !actor.Authenticated() {
		return CleanupReport{}, ErrUnauthenticated
	}
	if !actor.Admin {
		return CleanupReport{}, ErrForbidden
	}
	return s.CleanupOrphans(ctx, dryRun)
}

// CleanupOrphans removes blobs under the upload directory that no record,
// live or trashed, refers to either as original or as thumbnail.
func (s *Service) CleanupOrphans(ctx context.Context, dryRun bool) (CleanupReport, error) {
	paths, err := s.store.AllPaths(ctx)
	if err != nil {
		return CleanupReport{}, err
	}
	owned := make(map[string]struct{}, len(paths)*(1+len(s.processor.Sizes())))
	for _, p := range paths {
		owned[p] = struct{}{}
		for _, t := range previews.ThumbnailPaths(p, s.processor.Sizes()) {
			owned[t] = struct{}{}
		}
	}

	objects, err := s.disk.List(ctx, s.writer.Dir())
	if err != nil {
		return CleanupReport{}, fmt.Errorf("list %s: %w", s.writer.Dir(), err)
	}

	report := CleanupReport{Files: []string{}, DryRun: dryRun}
	for _, obj := range objects {
		if _, ok := owned[obj.Key]; ok {
			continue
		}
		if !dryRun {
			if err := storage.DeleteIfExists(ctx, s.disk, obj.Key); err != nil {
				s.log.Warn().Err(err).Str("path", obj.Key).Msg("failed to delete orphaned blob")
				continue
			}
		}
		report.Files = append(report.Files, obj.Key)
	}
	sort.Strings(report.Files)
	report.Cleaned = len(report.Files)

	s.log.Info().Int("cleaned", report.Cleaned).Bool("dry_run", dryRun).Msg("orphan cleanup finished")
	return report, nil
}

// RegenerateThumbnails walks every live image record and rebuilds its thumbnails.
func (s *Service) RegenerateThumbnails(ctx context.Context, opts ThumbnailOptions) (ThumbnailReport, error) {
	if !s.processor.Available() {
		return ThumbnailReport{}, ErrImagesUnavailable
	}

	var report ThumbnailReport
	err := s.store.EachImageBatch(ctx, opts.BatchSize, func(batch []models.Upload) error {
		for i := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			u := &batch[i]
			report.Processed++

			if opts.MissingOnly {
				complete, err := s.processor.HasAllThumbnails(ctx, u.Path)
				if err != nil {
					s.log.Warn().Err(err).Str("id", u.ID).Msg("failed to inspect thumbnails")
					report.Errors++
					continue
				}
				if complete {
					report.Skipped++
					continue
				}
			}

			thumbs, err := s.processor.GenerateThumbnails(ctx, u.Path, u.Type)
			if err != nil {
				s.log.Warn().Err(err).Str("id", u.ID).Str("path", u.Path).Msg("failed to generate thumbnails")
				report.Errors++
				continue
			}
			report.Generated += len(thumbs)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	s.log.Info().
		Int("processed", report.Processed).
		Int("generated", report.Generated).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Msg("thumbnail regeneration finished")
	return report, nil
}

// GenerateThumbnails builds the thumbnails of one record. A record that is
// gone or not an image is not an error.
func (s *Service) GenerateThumbnails(ctx context.Context, id string) error {
	u, err := s.store.FindByID(ctx, id)
	if errors.Is(err, infrastructure.ErrNotFound) {
		s.log.Debug().Str("id", id).Msg("thumbnail request for missing upload")
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsImage() || !s.processor.Available() {
		return nil
	}
	thumbs, err := s.processor.GenerateThumbnails(ctx, u.Path, u.Type)
	if err != nil {
		return err
	}
	s.log.Info().Str("id", u.ID).Int("thumbnails", len(thumbs)).Msg("thumbnails generated")
	return nil
}

// PurgeOwner removes every record of a deleted user together with its blobs.
func (s *Service) PurgeOwner(ctx context.Context, userID string) (int, error) {
	rows, err := s.store.FindByOwner(ctx, userID)
	if err != nil {
		return 0, err
	}
	purged := 0
	for i := range rows {
		if err := s.purge(ctx, &rows[i]); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return purged, err
		}
		purged++
	}
	return purged, nil
}
