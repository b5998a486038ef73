package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

type fakeFinder struct {
	rec   *models.Upload
	err   error
	calls int
}

func (f *fakeFinder) FindByHashAndSize(_ context.Context, hash string, size int64) (*models.Upload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.rec != nil && *f.rec.FileHash == hash && f.rec.Size == size {
		return f.rec, nil
	}
	return nil, nil
}

func TestHashIsStable(t *testing.T) {
	a, n, err := Hash(strings.NewReader("hello"))
	require.NoError(t, err)
	b, _, err := Hash(strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", a)
	assert.Equal(t, a, b)
	assert.Equal(t, int64(5), n)
	assert.Len(t, a, 32)
}

func TestResolve(t *testing.T) {
	hash := "5d41402abc4b2a76b9719d911017c592"
	rec := &models.Upload{ID: "u1", FileHash: &hash, Size: 5}
	ctx := context.Background()

	out, err := NewResolver(&fakeFinder{rec: rec}, true, true).Resolve(ctx, hash, 5)
	require.NoError(t, err)
	assert.True(t, out.IsDuplicate())
	assert.True(t, out.Reuse)
	assert.Equal(t, "u1", out.Existing.ID)

	out, err = NewResolver(&fakeFinder{rec: rec}, true, false).Resolve(ctx, hash, 5)
	require.NoError(t, err)
	assert.True(t, out.IsDuplicate())
	assert.False(t, out.Reuse)

	// same hash, different size is not a duplicate
	out, err = NewResolver(&fakeFinder{rec: rec}, true, true).Resolve(ctx, hash, 6)
	require.NoError(t, err)
	assert.False(t, out.IsDuplicate())
}

func TestResolveDisabledSkipsLookup(t *testing.T) {
	finder := &fakeFinder{err: errors.New("boom")}
	out, err := NewResolver(finder, false, true).Resolve(context.Background(), "abc", 1)
	require.NoError(t, err)
	assert.False(t, out.IsDuplicate())
	assert.Zero(t, finder.calls)
}

func TestResolvePropagatesLookupErrors(t *testing.T) {
	_, err := NewResolver(&fakeFinder{err: errors.New("db down")}, true, true).Resolve(context.Background(), "abc", 1)
	assert.ErrorContains(t, err, "db down")
}
