// Package uploader runs the ingestion pipeline and the management operations
// over stored uploads.
package uploader

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/dedup"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/locks"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/validator"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

// Deps are the collaborators of a Service. Events may be nil.
type Deps struct {
	Uploader   configuration.UploaderConfig
	Image      configuration.ImageConfig
	Store      *infrastructure.UploadStore
	Writer     *storage.Writer
	Processor  *previews.Processor
	Authorizer *auth.Authorizer
	Locks      locks.Locker
	Events     events.Publisher
	Log        zerolog.Logger
}

type Service struct {
	cfg        configuration.UploaderConfig
	image      configuration.ImageConfig
	store      *infrastructure.UploadStore
	writer     *storage.Writer
	disk       storage.Disk
	processor  *previews.Processor
	authorizer *auth.Authorizer
	validator  *validator.Validator
	dedup      *dedup.Resolver
	locks      locks.Locker
	events     events.Publisher
	log        zerolog.Logger
}

func New(d Deps) *Service {
	pub := d.Events
	if pub == nil {
		pub = events.Noop{}
	}
	d.Processor.GuardOriginals(d.Store.PathInUse)
	return &Service{
		cfg:        d.Uploader,
		image:      d.Image,
		store:      d.Store,
		writer:     d.Writer,
		disk:       d.Writer.Disk(),
		processor:  d.Processor,
		authorizer: d.Authorizer,
		validator:  validator.New(d.Uploader),
		dedup:      dedup.NewResolver(d.Store, d.Uploader.CheckDuplicates, d.Uploader.ReturnExisting),
		locks:      d.Locks,
		events:     pub,
		log:        d.Log.With().Str("component", "uploader").Logger(),
	}
}

func (s *Service) Authorizer() *auth.Authorizer { return s.authorizer }

func (s *Service) Config() configuration.UploaderConfig { return s.cfg }

// Item is a record decorated for API responses.
type Item struct {
	models.Upload
	Permissions   auth.Permissions `json:"permissions"`
	FormattedSize string           `json:"formatted_size"`
	IsImage       bool             `json:"is_image"`
}

func (s *Service) decorate(actor auth.Actor, u *models.Upload) Item {
	return Item{
		Upload:        *u,
		Permissions:   s.authorizer.Permissions(actor, u),
		FormattedSize: humanize.IBytes(uint64(u.Size)),
		IsImage:       u.IsImage(),
	}
}

// find loads a record and maps a missing row to ErrNotFound.
func (s *Service) find(ctx context.Context, id string, withTrashed bool) (*models.Upload, error) {
	var (
		u   *models.Upload
		err error
	)
	if withTrashed {
		u, err = s.store.FindByIDWithTrashed(ctx, id)
	} else {
		u, err = s.store.FindByID(ctx, id)
	}
	if errors.Is(err, infrastructure.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// authorize finds id and checks action, so every operation reports 404 before 403.
func (s *Service) authorize(ctx context.Context, actor auth.Actor, id string, action auth.Action, withTrashed bool) (*models.Upload, error) {
	u, err := s.find(ctx, id, withTrashed)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.Can(actor, action, u) {
		return nil, ErrForbidden
	}
	return u, nil
}

func (s *Service) publish(ctx context.Context, subject string, payload any) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("[NATS] failed to publish event")
	}
}

// Health reports the reachability of the record store and the blob disk.
func (s *Service) Health(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"storage":  s.disk.Ping(ctx),
	}
}

func (s *Service) Status() map[string]any {
	return map[string]any{
		"disk":               s.disk.Name(),
		"directory":          s.writer.Dir(),
		"image_driver":       s.processor.DriverName(),
		"images_available":   s.processor.Available(),
		"thumbnail_sizes":    s.processor.Sizes(),
		"allowed_types":      s.cfg.AllowedExtensions,
		"max_size":           humanize.IBytes(uint64(s.cfg.MaxSizeBytes())),
		"guests_allowed":     s.cfg.AllowGuests,
		"check_duplicates":   s.cfg.CheckDuplicates,
		"soft_deletes":       s.cfg.SoftDeletes,
		"thumbnails_enabled": s.image.Thumbnails,
		"thumbnails_async":   s.image.ThumbnailsAsync,
	}
}
