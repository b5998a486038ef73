package previews

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/metrics"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
)

// Thumbnail is one derived image on the disk.
type Thumbnail struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Result reports what Process did. Every step is best effort.
type Result struct {
	Available    bool
	Processed    bool
	Thumbnails   map[int]Thumbnail
	OriginalSize int64
}

// PathOwner reports whether key is the stored original of some record.
type PathOwner func(ctx context.Context, key string) (bool, error)

var errForeignObject = errors.New("target belongs to another upload")

type Processor struct {
	driver Driver
	disk   storage.Disk
	cfg    configuration.ImageConfig
	owner  PathOwner
	log    zerolog.Logger
}

// NewProcessor accepts a nil driver; the processor then reports itself unavailable.
func NewProcessor(driver Driver, disk storage.Disk, cfg configuration.ImageConfig, log zerolog.Logger) *Processor {
	name := "none"
	if driver != nil {
		name = driver.Name()
	}
	return &Processor{
		driver: driver,
		disk:   disk,
		cfg:    cfg,
		log:    log.With().Str("component", "image-processor").Str("driver", name).Logger(),
	}
}

// GuardOriginals makes the processor leave alone any thumbnail key that
// owner reports as an original.
func (p *Processor) GuardOriginals(owner PathOwner) {
	p.owner = owner
}

// foreign reports whether key must not be written or removed as a thumbnail.
// A failing lookup counts as foreign.
func (p *Processor) foreign(ctx context.Context, key string) (bool, error) {
	if p.owner == nil {
		return false, nil
	}
	owned, err := p.owner(ctx, key)
	if err != nil {
		return true, err
	}
	if owned {
		return true, errForeignObject
	}
	return false, nil
}

func (p *Processor) Available() bool {
	return p.driver != nil
}

func (p *Processor) DriverName() string {
	if p.driver == nil {
		return "none"
	}
	return p.driver.Name()
}

func (p *Processor) Sizes() []int {
	return p.cfg.ThumbnailSizes
}

// Process orients, re-encodes and thumbnails the image stored at key.
// Non-image content and an unavailable driver are no-ops.
func (p *Processor) Process(ctx context.Context, key, contentType string) Result {
	return p.run(ctx, key, contentType, p.cfg.Thumbnails)
}

// Optimize is Process without thumbnails, for when they are generated off-path.
func (p *Processor) Optimize(ctx context.Context, key, contentType string) Result {
	return p.run(ctx, key, contentType, false)
}

func (p *Processor) run(ctx context.Context, key, contentType string, thumbnails bool) Result {
	res := Result{Available: p.Available()}
	if !strings.HasPrefix(contentType, "image/") {
		return res
	}
	if p.driver == nil {
		metrics.RecordDegradation("unavailable")
		p.log.Debug().Str("path", key).Msg("image processing not available")
		return res
	}
	if !p.cfg.Optimize && !thumbnails {
		return res
	}

	raw, err := p.read(ctx, key)
	if err != nil {
		p.degrade("read", key, err)
		return res
	}
	res.OriginalSize = int64(len(raw))

	format, err := p.driver.Format(path.Ext(key))
	if err != nil {
		p.degrade("format", key, err)
		return res
	}

	orient := p.cfg.AutoOrient && p.driver.SupportsOrientation()
	img, err := p.driver.Decode(bytes.NewReader(raw), orient)
	if err != nil {
		p.degrade("decode", key, err)
		return res
	}

	if p.cfg.Optimize && (orient || p.cfg.Quality < 100) {
		size, err := p.write(ctx, key, img, format, p.cfg.Quality, contentType)
		if err != nil {
			p.degrade("encode", key, err)
		} else {
			res.Processed = true
			res.OriginalSize = size
		}
	}

	if thumbnails {
		res.Thumbnails = p.thumbnails(ctx, key, img, format, contentType)
	}
	return res
}

// GenerateThumbnails rebuilds every configured thumbnail for key, overwriting existing ones.
func (p *Processor) GenerateThumbnails(ctx context.Context, key, contentType string) (map[int]Thumbnail, error) {
	if p.driver == nil {
		return nil, fmt.Errorf("image processing not available")
	}
	raw, err := p.read(ctx, key)
	if err != nil {
		return nil, err
	}
	format, err := p.driver.Format(path.Ext(key))
	if err != nil {
		return nil, err
	}
	img, err := p.driver.Decode(bytes.NewReader(raw), p.cfg.AutoOrient && p.driver.SupportsOrientation())
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return p.thumbnails(ctx, key, img, format, contentType), nil
}

func (p *Processor) thumbnails(ctx context.Context, key string, img image.Image, format, contentType string) map[int]Thumbnail {
	out := make(map[int]Thumbnail, len(p.cfg.ThumbnailSizes))
	for _, size := range p.cfg.ThumbnailSizes {
		thumbPath := ThumbnailPath(key, size)
		if skip, err := p.foreign(ctx, thumbPath); skip {
			p.degrade("thumbnail", thumbPath, err)
			continue
		}
		n, err := p.write(ctx, thumbPath, p.driver.Fit(img, size), format, p.cfg.ThumbnailQuality, contentType)
		if err != nil {
			p.degrade("thumbnail", thumbPath, err)
			continue
		}
		metrics.RecordThumbnail(strconv.Itoa(size))
		out[size] = Thumbnail{Path: thumbPath, URL: p.disk.URL(thumbPath), Size: n}
	}
	return out
}

// ExistingThumbnails lists the configured thumbnails currently present on the disk.
func (p *Processor) ExistingThumbnails(ctx context.Context, key string) (map[int]Thumbnail, error) {
	out := make(map[int]Thumbnail)
	for _, size := range p.cfg.ThumbnailSizes {
		thumbPath := ThumbnailPath(key, size)
		if skip, _ := p.foreign(ctx, thumbPath); skip {
			continue
		}
		info, err := p.disk.Stat(ctx, thumbPath)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out[size] = Thumbnail{Path: thumbPath, URL: p.disk.URL(thumbPath), Size: info.Size}
	}
	return out, nil
}

// HasAllThumbnails reports whether every configured size exists for key.
func (p *Processor) HasAllThumbnails(ctx context.Context, key string) (bool, error) {
	existing, err := p.ExistingThumbnails(ctx, key)
	if err != nil {
		return false, err
	}
	return len(existing) == len(p.cfg.ThumbnailSizes), nil
}

// DeleteThumbnails removes every configured thumbnail of key. Missing ones are skipped.
func (p *Processor) DeleteThumbnails(ctx context.Context, key string) int {
	removed := 0
	for _, thumbPath := range ThumbnailPaths(key, p.cfg.ThumbnailSizes) {
		ok, err := storage.Exists(ctx, p.disk, thumbPath)
		if err != nil {
			p.log.Warn().Err(err).Str("path", thumbPath).Msg("failed to check thumbnail")
			continue
		}
		if !ok {
			continue
		}
		if skip, err := p.foreign(ctx, thumbPath); skip {
			p.log.Warn().Err(err).Str("path", thumbPath).Msg("thumbnail path not removed")
			continue
		}
		if err := storage.DeleteIfExists(ctx, p.disk, thumbPath); err != nil {
			p.log.Warn().Err(err).Str("path", thumbPath).Msg("failed to delete thumbnail")
			continue
		}
		removed++
	}
	return removed
}

func (p *Processor) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.disk.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (p *Processor) write(ctx context.Context, key string, img image.Image, format string, quality int, contentType string) (int64, error) {
	var buf bytes.Buffer
	if err := p.driver.Encode(&buf, img, format, quality); err != nil {
		return 0, fmt.Errorf("encode %s: %w", format, err)
	}
	n := int64(buf.Len())
	if err := p.disk.Put(ctx, key, &buf, n, contentType); err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	return n, nil
}

func (p *Processor) degrade(step, key string, err error) {
	metrics.RecordDegradation(step)
	p.log.Warn().Err(err).Str("step", step).Str("path", key).Msg("image processing step skipped")
}

// ThumbnailPath derives {dir}/{basename}_thumb_{size}.{ext} from an original key.
func ThumbnailPath(key string, size int) string {
	dir, file := path.Split(key)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + fmt.Sprintf("%s_thumb_%d%s", base, size, ext)
}

func ThumbnailPaths(key string, sizes []int) []string {
	out := make([]string, 0, len(sizes))
	for _, size := range sizes {
		out = append(out, ThumbnailPath(key, size))
	}
	return out
}
