package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/metrics"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/locks"
)

// MaxBaseNameLength bounds the sanitized part of a stored file name.
const MaxBaseNameLength = 64

// maxSuffixAttempts stops the _N probing from looping forever on a broken disk.
const maxSuffixAttempts = 10000

// WriteError is a storage failure: the write failed or could not be confirmed.
type WriteError struct {
	Disk string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("storage write to %s:%s failed: %v", e.Disk, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

var errNotConfirmed = errors.New("object not readable after write")

// thumbnailStem matches the {name}_thumb_{size} stems derived thumbnails use.
// Originals never get such a stem, so a thumbnail key can't land on one.
var thumbnailStem = regexp.MustCompile(`_thumb_(\d+)$`)

// reservedSuffix is rewritten out of sanitized names so neither the name nor
// any of its _N variants can take a thumbnail stem.
var reservedSuffix = regexp.MustCompile(`_thumb(_\d+)?$`)

// IsThumbnailStem reports whether a file name without extension is reserved for thumbnails.
func IsThumbnailStem(stem string) bool {
	return thumbnailStem.MatchString(stem)
}

// Stored is the canonical reference to a written blob.
type Stored struct {
	Path string
	URL  string
	Size int64
}

// Writer places blobs under a directory without overwriting anything already there.
type Writer struct {
	disk  Disk
	dir   string
	locks locks.Locker
	log   zerolog.Logger
}

func NewWriter(disk Disk, dir string, locker locks.Locker, log zerolog.Logger) *Writer {
	return &Writer{
		disk:  disk,
		dir:   strings.Trim(dir, "/"),
		locks: locker,
		log:   log.With().Str("component", "storage-writer").Str("disk", disk.Name()).Logger(),
	}
}

func (w *Writer) Disk() Disk { return w.disk }

func (w *Writer) Dir() string { return w.dir }

// Store writes r under a sanitized form of name. ext is appended lower-cased.
//
// The directory lock covers probing and creating, since name, name_1, ...
// of different uploads share candidates.
func (w *Writer) Store(ctx context.Context, r io.Reader, size int64, name, ext, contentType string) (Stored, error) {
	base := SanitizeName(name)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")

	var stored Stored
	err := w.locks.WithLock(ctx, []string{"path:" + w.dir}, func() error {
		key, err := w.create(ctx, r, size, base, ext, contentType)
		if err != nil {
			return err
		}
		info, err := w.disk.Stat(ctx, key)
		if err != nil {
			return w.fail(ctx, key, fmt.Errorf("%w: %v", errNotConfirmed, err))
		}
		if size >= 0 && info.Size != size {
			return w.fail(ctx, key, fmt.Errorf("%w: wrote %d bytes, found %d", errNotConfirmed, size, info.Size))
		}
		stored = Stored{Path: key, URL: w.disk.URL(key), Size: info.Size}
		return nil
	})
	return stored, err
}

// create writes r at the first free candidate key. Disks that can create
// exclusively retry on the next candidate when another writer got there first.
func (w *Writer) create(ctx context.Context, r io.Reader, size int64, base, ext, contentType string) (string, error) {
	creator, exclusive := w.disk.(ExclusiveCreator)
	from := 0
	for {
		key, next, err := w.freeKey(ctx, base, ext, from)
		if err != nil {
			return "", err
		}
		if !exclusive {
			if err := w.disk.Put(ctx, key, r, size, contentType); err != nil {
				return "", w.fail(ctx, key, err)
			}
			return key, nil
		}
		err = creator.Create(ctx, key, r, size, contentType)
		if errors.Is(err, ErrExist) {
			w.log.Debug().Str("path", key).Msg("key taken concurrently, probing next")
			from = next
			continue
		}
		if err != nil {
			return "", w.fail(ctx, key, err)
		}
		return key, nil
	}
}

// freeKey probes name, name_1, name_2, ... starting at suffix from until
// nothing occupies the key. Candidates with a thumbnail stem are skipped.
// It also returns the suffix to resume from.
func (w *Writer) freeKey(ctx context.Context, base, ext string, from int) (string, int, error) {
	for i := from; i < maxSuffixAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		if IsThumbnailStem(candidate) {
			continue
		}
		if ext != "" {
			candidate += "." + ext
		}
		key := path.Join(w.dir, candidate)
		exists, err := Exists(ctx, w.disk, key)
		if err != nil {
			return "", 0, &WriteError{Disk: w.disk.Name(), Path: key, Err: fmt.Errorf("probe existing object: %w", err)}
		}
		if !exists {
			return key, i + 1, nil
		}
	}
	return "", 0, &WriteError{Disk: w.disk.Name(), Path: path.Join(w.dir, base), Err: errors.New("no free file name")}
}

func (w *Writer) fail(ctx context.Context, key string, err error) error {
	metrics.RecordStorageFailure(w.disk.Name())
	w.log.Error().Err(err).Str("path", key).Msg("blob write failed")
	if delErr := DeleteIfExists(ctx, w.disk, key); delErr != nil {
		w.log.Warn().Err(delErr).Str("path", key).Msg("failed to remove partial blob")
	}
	return &WriteError{Disk: w.disk.Name(), Path: key, Err: err}
}

// SanitizeName reduces a client file name (extension stripped) to [A-Za-z0-9_-],
// collapses runs of replaced characters and bounds its length. A trailing
// _thumb or _thumb_{n} becomes -thumb or -thumb_{n}.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}

	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-_")
	if len(out) > MaxBaseNameLength {
		out = strings.TrimRight(out[:MaxBaseNameLength], "-_")
	}
	if out == "" {
		return "file"
	}
	return reservedSuffix.ReplaceAllString(out, "-thumb$1")
}
