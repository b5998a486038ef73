package uploader

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/validator"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

var renamePattern = regexp.MustCompile(`^[A-Za-z0-9 _.()\-]+$`)

type ListQuery struct {
	Type      string
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
	// Trashed lists soft-deleted records instead of live ones. Admins only.
	Trashed bool
}

type ListPage struct {
	Data        []Item `json:"data"`
	CurrentPage int    `json:"current_page"`
	PerPage     int    `json:"per_page"`
	Total       int64  `json:"total"`
	LastPage    int    `json:"last_page"`
}

// List returns the page of records actor may see. A guest without a token sees nothing.
func (s *Service) List(ctx context.Context, actor auth.Actor, q ListQuery) (ListPage, error) {
	perPage := q.PerPage
	if perPage < 1 {
		perPage = s.cfg.PerPage
	}
	if perPage > s.cfg.PerPageMax {
		perPage = s.cfg.PerPageMax
	}

	page, err := s.store.List(ctx, infrastructure.ListFilter{
		Scope:       s.authorizer.Scope(actor),
		Type:        q.Type,
		Search:      q.Search,
		SortBy:      q.SortBy,
		SortOrder:   q.SortOrder,
		Page:        q.Page,
		PerPage:     perPage,
		OnlyTrashed: q.Trashed && actor.Admin,
	})
	if err != nil {
		return ListPage{}, err
	}

	items := make([]Item, 0, len(page.Data))
	for i := range page.Data {
		items = append(items, s.decorate(actor, &page.Data[i]))
	}
	return ListPage{
		Data:        items,
		CurrentPage: page.CurrentPage,
		PerPage:     page.PerPage,
		Total:       page.Total,
		LastPage:    page.LastPage,
	}, nil
}

// Show returns one record. Admins also see soft-deleted records.
func (s *Service) Show(ctx context.Context, actor auth.Actor, id string) (Item, error) {
	u, err := s.authorize(ctx, actor, id, auth.ActionView, actor.Admin)
	if err != nil {
		return Item{}, err
	}
	return s.decorate(actor, u), nil
}

// Blob is an open stored file. Size is what the disk holds, which differs
// from the uploaded size once an image has been re-encoded.
type Blob struct {
	io.ReadCloser
	Size   int64
	Upload *models.Upload
}

// Open streams the blob of a record the actor may view.
func (s *Service) Open(ctx context.Context, actor auth.Actor, id string) (*Blob, error) {
	u, err := s.authorize(ctx, actor, id, auth.ActionView, actor.Admin)
	if err != nil {
		return nil, err
	}
	info, err := s.disk.Stat(ctx, u.Path)
	if errors.Is(err, storage.ErrNotExist) {
		s.log.Warn().Str("id", u.ID).Str("path", u.Path).Msg("record has no blob")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rc, err := s.disk.Get(ctx, u.Path)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Blob{ReadCloser: rc, Size: info.Size, Upload: u}, nil
}

// Delete soft-deletes a live record, or purges it when soft deletes are off.
// force purges a live or trashed record and is reserved for administrators.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string, force bool) error {
	if force {
		u, err := s.authorize(ctx, actor, id, auth.ActionPurge, true)
		if err != nil {
			return err
		}
		return s.purge(ctx, u)
	}

	u, err := s.authorize(ctx, actor, id, auth.ActionDelete, false)
	if err != nil {
		return err
	}
	if !s.cfg.SoftDeletes {
		return s.purge(ctx, u)
	}
	if err := s.store.SoftDelete(ctx, u.ID); err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.publish(ctx, events.SubjectUploadDeleted, events.NewUploadEvent(u))
	return nil
}

// purge removes the row first so no record ever points at missing bytes.
// Leftover blobs are picked up by Cleanup.
func (s *Service) purge(ctx context.Context, u *models.Upload) error {
	if err := s.store.HardDelete(ctx, u.ID); err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	removed := s.processor.DeleteThumbnails(ctx, u.Path)
	if err := storage.DeleteIfExists(ctx, s.disk, u.Path); err != nil {
		s.log.Warn().Err(err).Str("path", u.Path).Msg("failed to delete blob of purged upload")
	}
	s.log.Info().Str("id", u.ID).Str("path", u.Path).Int("thumbnails", removed).Msg("upload purged")
	s.publish(ctx, events.SubjectUploadPurged, events.NewUploadEvent(u))
	return nil
}

// Restore brings a soft-deleted record back to live. Restoring a live record is a no-op.
func (s *Service) Restore(ctx context.Context, actor auth.Actor, id string) (Item, error) {
	u, err := s.authorize(ctx, actor, id, auth.ActionRestore, true)
	if err != nil {
		return Item{}, err
	}
	if !u.Trashed() {
		return s.decorate(actor, u), nil
	}
	restored, err := s.store.Restore(ctx, u.ID)
	if err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	s.publish(ctx, events.SubjectUploadRestored, events.NewUploadEvent(restored))
	return s.decorate(actor, restored), nil
}

// Rename changes the display name. The stored path never changes. A name
// without an allowed extension keeps the record's current one.
func (s *Service) Rename(ctx context.Context, actor auth.Actor, id, name string) (Item, error) {
	u, err := s.authorize(ctx, actor, id, auth.ActionUpdate, false)
	if err != nil {
		return Item{}, err
	}

	name, err = s.normalizeName(name, u.Extension())
	if err != nil {
		return Item{}, err
	}
	renamed, err := s.store.UpdateName(ctx, u.ID, name)
	if err != nil {
		if errors.Is(err, infrastructure.ErrNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	s.publish(ctx, events.SubjectUploadRenamed, events.NewUploadEvent(renamed))
	return s.decorate(actor, renamed), nil
}

func (s *Service) normalizeName(name, currentExt string) (string, error) {
	name = strings.TrimRight(strings.TrimSpace(name), ".")
	var msgs []string
	switch {
	case name == "":
		msgs = append(msgs, "The name field is required.")
	case !renamePattern.MatchString(name):
		msgs = append(msgs, "The name may only contain letters, numbers, spaces, dots, dashes, underscores and parentheses.")
	}
	if len(msgs) == 0 {
		if ext := validator.Extension(name); (ext == "" || !s.validator.ExtensionAllowed(ext)) && currentExt != "" {
			name += "." + currentExt
		}
		if len(name) > maxNameLength {
			msgs = append(msgs, "The name may not be greater than 255 characters.")
		}
	}
	if len(msgs) > 0 {
		return "", &ValidationError{Field: "name", Messages: msgs}
	}
	return name, nil
}

// Thumbnails lists the thumbnails of an image record that currently exist on the disk.
func (s *Service) Thumbnails(ctx context.Context, actor auth.Actor, id string) (map[int]previews.Thumbnail, error) {
	u, err := s.authorize(ctx, actor, id, auth.ActionView, false)
	if err != nil {
		return nil, err
	}
	if !u.IsImage() {
		return nil, ErrNotImage
	}
	return s.processor.ExistingThumbnails(ctx, u.Path)
}

// Stats aggregates what an authenticated actor may see: their own records, or every record for admins.
func (s *Service) Stats(ctx context.Context, actor auth.Actor) (models.UploadStats, error) {
	if !actor.Authenticated() {
		return models.UploadStats{}, ErrUnauthenticated
	}
	return s.stats(ctx, s.authorizer.Scope(actor))
}

// GlobalStats aggregates every live record.
func (s *Service) GlobalStats(ctx context.Context) (models.UploadStats, error) {
	return s.stats(ctx, nil)
}

func (s *Service) stats(ctx context.Context, scope infrastructure.Scope) (models.UploadStats, error) {
	stats, err := s.store.Stats(ctx, scope, time.Now())
	if err != nil {
		return models.UploadStats{}, err
	}
	stats.TotalSizeFormatted = humanize.IBytes(uint64(stats.TotalSize))
	return stats, nil
}
