// Package app assembles the upload service from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/locks"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

const localStripes = 256

// App owns every long-lived dependency of the service.
type App struct {
	Config  *configuration.Config
	Service *uploader.Service
	// JetStream is nil when NATS_URL is empty.
	JetStream *events.JetStream

	db      *gorm.DB
	closers []func() error
	log     zerolog.Logger
}

// Options selects the optional parts to bring up.
type Options struct {
	// Events connects to NATS when NATS_URL is set.
	Events bool
}

func New(ctx context.Context, cfg *configuration.Config, opts Options, log zerolog.Logger) (a *App, err error) {
	a = &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.db, err = infrastructure.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return infrastructure.Close(a.db) })
	if err := infrastructure.Migrate(a.db, log); err != nil {
		return nil, err
	}

	disk, err := openDisk(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	locker, err := openLocker(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	// the writer locks while an ingest lock is held and stripes are not reentrant
	writerLocks := locker
	if _, ok := locker.(*locks.Striped); ok {
		writerLocks = locks.NewStriped(localStripes)
	}

	var pub events.Publisher = events.Noop{}
	if opts.Events && cfg.NATSURL != "" {
		js, err := events.Connect(cfg.NATSURL, cfg.Server.ServiceName, log)
		if err != nil {
			return nil, err
		}
		a.JetStream = js
		a.closers = append(a.closers, func() error { js.Close(); return nil })
		pub = js
	}

	driver, err := previews.SelectDriver(cfg.Image.Driver)
	if err != nil {
		return nil, err
	}
	if driver == nil {
		log.Warn().Msg("image driver disabled, images are stored as uploaded")
	}

	a.Service = uploader.New(uploader.Deps{
		Uploader:   cfg.Uploader,
		Image:      cfg.Image,
		Store:      infrastructure.NewUploadStore(a.db),
		Writer:     storage.NewWriter(disk, cfg.Storage.Directory, writerLocks, log),
		Processor:  previews.NewProcessor(driver, disk, cfg.Image, log),
		Authorizer: auth.NewAuthorizer(auth.NewDefaultResolver(cfg.Auth.AdminRole)),
		Locks:      locker,
		Events:     pub,
		Log:        log,
	})
	return a, nil
}

func openDisk(ctx context.Context, cfg configuration.StorageConfig, log zerolog.Logger) (storage.Disk, error) {
	switch cfg.Disk {
	case "local":
		return storage.NewLocalDisk(cfg.LocalRoot, cfg.LocalBaseURL)
	case "minio":
		return storage.NewMinioDisk(ctx, cfg.MinIO, log)
	case "s3":
		return storage.NewS3Disk(ctx, cfg.S3, log)
	default:
		return nil, fmt.Errorf("unknown disk %q", cfg.Disk)
	}
}

func openLocker(ctx context.Context, cfg configuration.RedisConfig, log zerolog.Logger) (locks.Locker, error) {
	if cfg.URL == "" {
		log.Info().Msg("using in-process upload locks")
		return locks.NewStriped(localStripes), nil
	}
	return locks.NewRedis(ctx, cfg.URL, cfg.LockTTL, log)
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
