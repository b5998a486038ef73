// Package storage holds the blob backends and the collision-free writer on top of them.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotExist is returned by Disk implementations for missing keys.
	ErrNotExist = errors.New("object does not exist")
	// ErrExist is returned by ExclusiveCreator when the key is already taken.
	ErrExist = errors.New("object already exists")
)

type ObjectInfo struct {
	Key  string
	Size int64
}

// Disk is a flat key/value blob store addressed by slash-separated keys.
type Disk interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// List returns every object below prefix, recursively.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	URL(key string) string
	Ping(ctx context.Context) error
}

// ExclusiveCreator is implemented by disks that can refuse to replace an
// existing object atomically. The reader is untouched when ErrExist is returned.
type ExclusiveCreator interface {
	Create(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Exists reports whether key is present on d.
func Exists(ctx context.Context, d Disk, key string) (bool, error) {
	_, err := d.Stat(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

// DeleteIfExists removes key and treats a missing object as success.
func DeleteIfExists(ctx context.Context, d Disk, key string) error {
	if err := d.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	return nil
}
