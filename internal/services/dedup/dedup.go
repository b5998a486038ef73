// Package dedup computes content digests and resolves uploads against stored records.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

// Hash streams r through MD5 and returns the hex digest and the byte count.
func Hash(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Finder looks up a live record by its dedup key.
type Finder interface {
	FindByHashAndSize(ctx context.Context, hash string, size int64) (*models.Upload, error)
}

// Outcome is the decision for one incoming file.
type Outcome struct {
	Existing *models.Upload
	// Reuse is set when the caller should return Existing instead of storing.
	Reuse bool
}

func (o Outcome) IsDuplicate() bool {
	return o.Existing != nil
}

type Resolver struct {
	finder         Finder
	enabled        bool
	returnExisting bool
}

func NewResolver(finder Finder, enabled, returnExisting bool) *Resolver {
	return &Resolver{finder: finder, enabled: enabled, returnExisting: returnExisting}
}

// Resolve returns a zero Outcome when checking is disabled or no live record matches.
func (r *Resolver) Resolve(ctx context.Context, hash string, size int64) (Outcome, error) {
	if !r.enabled || hash == "" {
		return Outcome{}, nil
	}
	existing, err := r.finder.FindByHashAndSize(ctx, hash, size)
	if err != nil {
		return Outcome{}, fmt.Errorf("find duplicate: %w", err)
	}
	if existing == nil {
		return Outcome{}, nil
	}
	return Outcome{Existing: existing, Reuse: r.returnExisting}, nil
}

// LockKey is the mutex key guarding check-and-create for one dedup key.
func LockKey(hash string, size int64) string {
	return fmt.Sprintf("dedup:%s:%d", hash, size)
}
