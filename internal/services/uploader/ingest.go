package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/metrics"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/dedup"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/validator"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

const maxNameLength = 255

// Content is an uploaded part that can be read more than once.
type Content interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Incoming is one file of an upload request. Err carries a transport failure
// reported for the part; Open is not called when it is set.
type Incoming struct {
	Field string
	Name  string
	Open  func() (Content, error)
	Err   error
}

type IngestOptions struct {
	SaveToDB bool
}

// Result is the per-file outcome returned to the client.
type Result struct {
	Success     bool                       `json:"success"`
	ID          string                     `json:"id,omitempty"`
	Path        string                     `json:"path,omitempty"`
	URL         string                     `json:"url,omitempty"`
	Type        string                     `json:"type,omitempty"`
	Name        string                     `json:"name,omitempty"`
	Size        int64                      `json:"size"`
	FileHash    string                     `json:"file_hash,omitempty"`
	IsDuplicate bool                       `json:"is_duplicate"`
	ExistingID  string                     `json:"existing_id,omitempty"`
	GuestToken  string                     `json:"guest_token,omitempty"`
	Thumbnails  map[int]previews.Thumbnail `json:"thumbnails,omitempty"`
	Errors      []string                   `json:"errors,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

// FileOutcome pairs the result or the failure of one file with its input position.
type FileOutcome struct {
	Result *Result
	Err    error
}

// PrepareActor checks whether actor may upload at all. Authenticated callers
// drop any guest token; guests without one are issued a fresh token.
func (s *Service) PrepareActor(actor auth.Actor) (auth.Actor, error) {
	if actor.Authenticated() {
		actor.GuestToken = ""
		return actor, nil
	}
	if !s.cfg.AllowGuests {
		return actor, ErrGuestsDisabled
	}
	if actor.GuestToken == "" {
		actor.GuestToken = uuid.NewString()
	}
	return actor, nil
}

// Ingest runs every file through the pipeline in order. A failing file never
// stops the others; outcomes correspond positionally to files.
func (s *Service) Ingest(ctx context.Context, actor auth.Actor, files []Incoming, opts IngestOptions) ([]FileOutcome, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	actor, err := s.PrepareActor(actor)
	if err != nil {
		return nil, err
	}

	out := make([]FileOutcome, len(files))
	for i, f := range files {
		res, err := s.ingestOne(ctx, actor, f, opts)
		out[i] = FileOutcome{Result: res, Err: err}
	}
	return out, nil
}

func (s *Service) ingestOne(ctx context.Context, actor auth.Actor, inc Incoming, opts IngestOptions) (*Result, error) {
	if inc.Field == "" {
		inc.Field = "file"
	}
	if inc.Err != nil {
		return nil, s.invalid(inc, validator.File{Name: inc.Name, UploadErr: inc.Err})
	}
	f, err := inc.Open()
	if err != nil {
		return nil, s.invalid(inc, validator.File{Name: inc.Name, UploadErr: err})
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("detect content type of %q: %w", inc.Name, err)
	}
	mime := validator.BaseMime(mt.String())
	if err := rewind(f); err != nil {
		return nil, err
	}

	hash, size, err := dedup.Hash(f)
	if err != nil {
		return nil, err
	}
	if err := rewind(f); err != nil {
		return nil, err
	}

	if err := s.invalid(inc, validator.File{Name: inc.Name, MimeType: mime, Size: size}); err != nil {
		return nil, err
	}

	keys := []string{dedup.LockKey(hash, size)}
	if !actor.Authenticated() {
		keys = append(keys, "guest:"+actor.GuestToken)
	}

	var res *Result
	err = s.locks.WithLock(ctx, keys, func() error {
		var err error
		res, err = s.storeLocked(ctx, actor, inc.Name, f, mime, hash, size, opts)
		return err
	})
	return res, err
}

// invalid validates f and returns a *ValidationError, or nil when f conforms.
func (s *Service) invalid(inc Incoming, f validator.File) error {
	res := s.validator.Validate(f)
	if res.Valid {
		return nil
	}
	metrics.RecordUpload("invalid", 0)
	s.log.Debug().Str("name", inc.Name).Strs("errors", res.Errors).Msg("upload rejected")
	return &ValidationError{Field: inc.Field, Messages: res.Errors}
}

// storeLocked runs with the dedup key and the guest key held.
func (s *Service) storeLocked(ctx context.Context, actor auth.Actor, clientName string, body io.Reader, mime, hash string, size int64, opts IngestOptions) (*Result, error) {
	if !actor.Authenticated() && s.cfg.GuestLimit > 0 {
		n, err := s.store.CountByGuest(ctx, actor.GuestToken)
		if err != nil {
			return nil, err
		}
		if n >= s.cfg.GuestLimit {
			return nil, ErrGuestLimitExceeded
		}
	}

	outcome, err := s.dedup.Resolve(ctx, hash, size)
	if err != nil {
		return nil, err
	}
	if outcome.Reuse {
		metrics.RecordUpload("duplicate", 0)
		return s.duplicateResult(ctx, actor, outcome.Existing), nil
	}

	name := displayName(clientName)
	stored, err := s.writer.Store(ctx, body, size, name, validator.Extension(name), mime)
	if err != nil {
		metrics.RecordUpload("failed", 0)
		var werr *storage.WriteError
		if errors.As(err, &werr) {
			return nil, &StorageError{Disk: werr.Disk, Path: werr.Path, Err: werr.Err}
		}
		return nil, &StorageError{Disk: s.disk.Name(), Err: err}
	}

	res := &Result{
		Success:  true,
		Path:     stored.Path,
		URL:      stored.URL,
		Type:     mime,
		Name:     name,
		Size:     size,
		FileHash: hash,
	}
	if !actor.Authenticated() {
		res.GuestToken = actor.GuestToken
	}
	if outcome.IsDuplicate() {
		res.IsDuplicate = true
		res.ExistingID = outcome.Existing.ID
	}

	async := opts.SaveToDB && s.image.Thumbnails && s.image.ThumbnailsAsync
	if strings.HasPrefix(mime, "image/") {
		var processed previews.Result
		if async {
			processed = s.processor.Optimize(ctx, stored.Path, mime)
		} else {
			processed = s.processor.Process(ctx, stored.Path, mime)
		}
		if len(processed.Thumbnails) > 0 {
			res.Thumbnails = processed.Thumbnails
		}
	}

	if opts.SaveToDB {
		rec := &models.Upload{
			ID:       uuid.NewString(),
			Path:     stored.Path,
			URL:      stored.URL,
			Type:     mime,
			Name:     name,
			Size:     size,
			FileHash: models.StringPtr(hash),
		}
		if actor.Authenticated() {
			rec.UserID = models.StringPtr(actor.Principal.ID)
		} else {
			rec.GuestToken = models.StringPtr(actor.GuestToken)
		}
		if err := s.store.Create(ctx, rec); err != nil {
			metrics.RecordUpload("failed", 0)
			s.discard(ctx, stored.Path)
			return nil, fmt.Errorf("failed to save upload metadata: %w", err)
		}
		res.ID = rec.ID

		s.publish(ctx, events.SubjectUploadCreated, events.NewUploadEvent(rec))
		if async && rec.IsImage() && s.processor.Available() {
			s.publish(ctx, events.SubjectThumbnailsRequested, events.NewUploadEvent(rec))
		}
	}

	metrics.RecordUpload("stored", size)
	s.log.Info().
		Str("path", res.Path).
		Str("type", mime).
		Int64("size", size).
		Bool("duplicate", res.IsDuplicate).
		Msg("file stored")
	return res, nil
}

func (s *Service) duplicateResult(ctx context.Context, actor auth.Actor, existing *models.Upload) *Result {
	res := &Result{
		Success:     true,
		ID:          existing.ID,
		Path:        existing.Path,
		URL:         existing.URL,
		Type:        existing.Type,
		Name:        existing.Name,
		Size:        existing.Size,
		IsDuplicate: true,
		ExistingID:  existing.ID,
	}
	if existing.FileHash != nil {
		res.FileHash = *existing.FileHash
	}
	if !actor.Authenticated() {
		res.GuestToken = actor.GuestToken
	}
	if existing.IsImage() {
		thumbs, err := s.processor.ExistingThumbnails(ctx, existing.Path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", existing.Path).Msg("failed to look up thumbnails")
		} else if len(thumbs) > 0 {
			res.Thumbnails = thumbs
		}
	}
	return res
}

// discard removes a blob and its thumbnails after a later step failed.
func (s *Service) discard(ctx context.Context, key string) {
	s.processor.DeleteThumbnails(ctx, key)
	if err := storage.DeleteIfExists(ctx, s.disk, key); err != nil {
		s.log.Warn().Err(err).Str("path", key).Msg("failed to clean up blob")
	}
}

// FailureResult renders a per-file failure for batch responses.
func FailureResult(err error) Result {
	var verr *ValidationError
	var serr *StorageError
	switch {
	case errors.As(err, &verr):
		return Result{Errors: verr.Messages}
	case errors.As(err, &serr):
		return Result{Error: "Failed to store file."}
	case errors.Is(err, ErrGuestLimitExceeded):
		return Result{Error: "Guest upload limit reached."}
	default:
		return Result{Error: "Upload failed."}
	}
}

// displayName keeps the client's base name, bounded in length with the extension kept.
func displayName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	if len(name) <= maxNameLength {
		return name
	}
	ext := path.Ext(name)
	if len(ext) >= maxNameLength/2 {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	base = base[:maxNameLength-len(ext)]
	for !utf8.ValidString(base) {
		base = base[:len(base)-1]
	}
	return base + ext
}

func rewind(f io.Seeker) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload: %w", err)
	}
	return nil
}
