package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/infrastructure"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/locks"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/storage"
	"github.com/File-Sharing-BondBridg/Upload-Service/uploads/previews"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type harness struct {
	svc    *Service
	store  *infrastructure.UploadStore
	disk   *storage.LocalDisk
	events *recordingPublisher
}

func testConfigs() (configuration.UploaderConfig, configuration.ImageConfig) {
	return configuration.UploaderConfig{
			AllowedExtensions: []string{"jpg", "jpeg", "png", "pdf", "txt"},
			MaxSizeKB:         2048,
			StrictMime:        true,
			SaveToDB:          true,
			SoftDeletes:       true,
			AllowGuests:       true,
			GuestLimit:        10,
			CheckDuplicates:   true,
			ReturnExisting:    true,
			PerPage:           15,
			PerPageMax:        100,
		}, configuration.ImageConfig{
			Driver:           "imaging",
			Optimize:         true,
			Quality:          85,
			AutoOrient:       true,
			Thumbnails:       true,
			ThumbnailSizes:   []int{150, 300},
			ThumbnailQuality: 80,
		}
}

func newHarness(t *testing.T, tweak func(*configuration.UploaderConfig, *configuration.ImageConfig)) *harness {
	t.Helper()
	upCfg, imgCfg := testConfigs()
	if tweak != nil {
		tweak(&upCfg, &imgCfg)
	}

	db, err := infrastructure.Open(configuration.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:uploader_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, infrastructure.Migrate(db, zerolog.Nop()))
	t.Cleanup(func() { _ = infrastructure.Close(db) })
	store := infrastructure.NewUploadStore(db)

	disk, err := storage.NewLocalDisk(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	lk := locks.NewStriped(64)
	driver, err := previews.SelectDriver(imgCfg.Driver)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc := New(Deps{
		Uploader:   upCfg,
		Image:      imgCfg,
		Store:      store,
		Writer:     storage.NewWriter(disk, "uploads", locks.NewStriped(64), zerolog.Nop()),
		Processor:  previews.NewProcessor(driver, disk, imgCfg, zerolog.Nop()),
		Authorizer: auth.NewAuthorizer(auth.NewDefaultResolver("admin")),
		Locks:      lk,
		Events:     pub,
		Log:        zerolog.Nop(),
	})
	return &harness{svc: svc, store: store, disk: disk, events: pub}
}

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func incoming(name string, data []byte) Incoming {
	return Incoming{
		Field: "file",
		Name:  name,
		Open:  func() (Content, error) { return memFile{bytes.NewReader(data)}, nil },
	}
}

func jpegBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

var red = color.RGBA{R: 220, G: 30, B: 30, A: 255}

func guest(token string) auth.Actor { return auth.Actor{GuestToken: token} }

func user(id string) auth.Actor {
	return auth.Actor{Principal: &models.Principal{ID: id}}
}

func admin() auth.Actor {
	return auth.Actor{Principal: &models.Principal{ID: "root", Roles: []string{"admin"}}, Admin: true}
}

func ingestOne(t *testing.T, h *harness, actor auth.Actor, name string, data []byte) (*Result, error) {
	t.Helper()
	out, err := h.svc.Ingest(context.Background(), actor, []Incoming{incoming(name, data)}, IngestOptions{SaveToDB: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0].Result, out[0].Err
}

func exists(t *testing.T, d storage.Disk, key string) bool {
	t.Helper()
	ok, err := storage.Exists(context.Background(), d, key)
	require.NoError(t, err)
	return ok
}

func TestGuestImageUploadStoresRecordAndThumbnails(t *testing.T) {
	h := newHarness(t, nil)
	data := jpegBytes(t, 400, 200, red)

	res, err := ingestOne(t, h, guest("g1"), "photo.jpg", data)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "uploads/photo.jpg", res.Path)
	assert.Equal(t, "http://files.test/uploads/photo.jpg", res.URL)
	assert.Equal(t, "image/jpeg", res.Type)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Len(t, res.FileHash, 32)
	assert.False(t, res.IsDuplicate)
	assert.Equal(t, "g1", res.GuestToken)
	require.Len(t, res.Thumbnails, 2)
	assert.Equal(t, "uploads/photo_thumb_150.jpg", res.Thumbnails[150].Path)
	assert.Equal(t, "uploads/photo_thumb_300.jpg", res.Thumbnails[300].Path)

	rec, err := h.store.FindByID(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.GuestToken)
	assert.Equal(t, "g1", *rec.GuestToken)
	assert.Nil(t, rec.UserID)
	assert.Equal(t, "photo.jpg", rec.Name)

	assert.True(t, exists(t, h.disk, "uploads/photo.jpg"))
	assert.True(t, exists(t, h.disk, "uploads/photo_thumb_150.jpg"))
	assert.Contains(t, h.events.Subjects(), events.SubjectUploadCreated)
}

func TestGuestWithoutTokenIsIssuedOne(t *testing.T) {
	h := newHarness(t, nil)

	res, err := ingestOne(t, h, guest(""), "notes.txt", []byte("hello world"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.GuestToken)
}

func TestGuestsDisabled(t *testing.T) {
	h := newHarness(t, func(u *configuration.UploaderConfig, _ *configuration.ImageConfig) { u.AllowGuests = false })

	_, err := h.svc.Ingest(context.Background(), guest("g1"), []Incoming{incoming("notes.txt", []byte("x"))}, IngestOptions{SaveToDB: true})
	assert.ErrorIs(t, err, ErrGuestsDisabled)
}

func TestDuplicateReturnsExistingRecord(t *testing.T) {
	h := newHarness(t, nil)
	data := jpegBytes(t, 400, 200, red)

	first, err := ingestOne(t, h, user("u1"), "photo.jpg", data)
	require.NoError(t, err)
	second, err := ingestOne(t, h, user("u1"), "copy.jpg", data)
	require.NoError(t, err)

	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ID, second.ExistingID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Path, second.Path)
	assert.Len(t, second.Thumbnails, 2)

	page, err := h.svc.List(context.Background(), user("u1"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.False(t, exists(t, h.disk, "uploads/copy.jpg"))
}

func TestDuplicateStoredAgainWhenNotReturningExisting(t *testing.T) {
	h := newHarness(t, func(u *configuration.UploaderConfig, _ *configuration.ImageConfig) { u.ReturnExisting = false })
	data := []byte("same bytes")

	first, err := ingestOne(t, h, user("u1"), "a.txt", data)
	require.NoError(t, err)
	second, err := ingestOne(t, h, user("u1"), "a.txt", data)
	require.NoError(t, err)

	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ID, second.ExistingID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "uploads/a.txt", first.Path)
	assert.Equal(t, "uploads/a_1.txt", second.Path)
}

func TestInvalidFileWritesNothing(t *testing.T) {
	h := newHarness(t, nil)

	_, err := ingestOne(t, h, user("u1"), "setup.exe", []byte("MZ fake binary"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
	assert.Contains(t, verr.Messages, "File type 'exe' is not allowed.")

	objects, err := h.disk.List(context.Background(), "uploads")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestMismatchedContentIsRejected(t *testing.T) {
	h := newHarness(t, nil)

	_, err := ingestOne(t, h, user("u1"), "fake.jpg", []byte("just some text"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Messages, 1)
}

func TestBatchContinuesPastFailures(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.svc.Ingest(context.Background(), user("u1"), []Incoming{
		incoming("a.txt", []byte("first")),
		incoming("bad.exe", []byte("nope")),
		{Field: "files", Name: "broken.txt", Err: fmt.Errorf("partial upload")},
		incoming("b.txt", []byte("second")),
	}, IngestOptions{SaveToDB: true})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.NoError(t, out[0].Err)
	assert.Error(t, out[1].Err)
	assert.Error(t, out[2].Err)
	assert.NoError(t, out[3].Err)
	assert.Equal(t, "uploads/b.txt", out[3].Result.Path)

	fr := FailureResult(out[1].Err)
	assert.False(t, fr.Success)
	assert.NotEmpty(t, fr.Errors)
}

func TestGuestLimit(t *testing.T) {
	h := newHarness(t, func(u *configuration.UploaderConfig, _ *configuration.ImageConfig) { u.GuestLimit = 1 })

	_, err := ingestOne(t, h, guest("g1"), "one.txt", []byte("one"))
	require.NoError(t, err)
	_, err = ingestOne(t, h, guest("g1"), "two.txt", []byte("two"))
	assert.ErrorIs(t, err, ErrGuestLimitExceeded)

	_, err = ingestOne(t, h, guest("g2"), "two.txt", []byte("two"))
	assert.NoError(t, err)
}

func TestWithoutSaveToDBNoRecordIsCreated(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.svc.Ingest(context.Background(), user("u1"), []Incoming{incoming("a.txt", []byte("x"))}, IngestOptions{})
	require.NoError(t, err)
	require.NoError(t, out[0].Err)
	assert.Empty(t, out[0].Result.ID)
	assert.True(t, exists(t, h.disk, "uploads/a.txt"))

	page, err := h.svc.List(context.Background(), admin(), ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestAsyncThumbnailsAreRequested(t *testing.T) {
	h := newHarness(t, func(_ *configuration.UploaderConfig, i *configuration.ImageConfig) { i.ThumbnailsAsync = true })

	res, err := ingestOne(t, h, user("u1"), "photo.jpg", jpegBytes(t, 400, 200, red))
	require.NoError(t, err)
	assert.Empty(t, res.Thumbnails)
	assert.Contains(t, h.events.Subjects(), events.SubjectThumbnailsRequested)

	require.NoError(t, h.svc.GenerateThumbnails(context.Background(), res.ID))
	assert.True(t, exists(t, h.disk, "uploads/photo_thumb_300.jpg"))
}

func TestGuestCannotTouchAnotherGuestsFile(t *testing.T) {
	h := newHarness(t, nil)
	res, err := ingestOne(t, h, guest("g1"), "notes.txt", []byte("g1 notes"))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Delete(ctx, guest("g2"), res.ID, false), ErrForbidden)
	_, err = h.svc.Show(ctx, guest("g2"), res.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.svc.Show(ctx, guest("g2"), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	item, err := h.svc.Show(ctx, guest("g1"), res.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.Permissions{View: true, Delete: true, Download: true}, item.Permissions)
	assert.Equal(t, "8 B", item.FormattedSize)
}

func TestSoftDeleteRestoreAndForceDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "photo.jpg", jpegBytes(t, 400, 200, red))
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, user("u1"), res.ID, false))
	assert.True(t, exists(t, h.disk, res.Path))
	_, err = h.svc.Show(ctx, user("u1"), res.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.Restore(ctx, user("u1"), res.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	restored, err := h.svc.Restore(ctx, admin(), res.ID)
	require.NoError(t, err)
	assert.False(t, restored.Trashed())

	assert.ErrorIs(t, h.svc.Delete(ctx, user("u1"), res.ID, true), ErrForbidden)
	require.NoError(t, h.svc.Delete(ctx, admin(), res.ID, true))

	assert.False(t, exists(t, h.disk, res.Path))
	assert.False(t, exists(t, h.disk, "uploads/photo_thumb_150.jpg"))
	assert.False(t, exists(t, h.disk, "uploads/photo_thumb_300.jpg"))
	_, err = h.store.FindByIDWithTrashed(ctx, res.ID)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)

	subjects := h.events.Subjects()
	assert.Contains(t, subjects, events.SubjectUploadDeleted)
	assert.Contains(t, subjects, events.SubjectUploadRestored)
	assert.Contains(t, subjects, events.SubjectUploadPurged)
}

func TestDeleteWithoutSoftDeletesPurges(t *testing.T) {
	h := newHarness(t, func(u *configuration.UploaderConfig, _ *configuration.ImageConfig) { u.SoftDeletes = false })
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "a.txt", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, user("u1"), res.ID, false))
	assert.False(t, exists(t, h.disk, res.Path))
	_, err = h.store.FindByIDWithTrashed(ctx, res.ID)
	assert.ErrorIs(t, err, infrastructure.ErrNotFound)
}

func TestRename(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "report.pdf", []byte("%PDF-1.4\n%test document\n"))
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"Quarterly report", "Quarterly report.pdf"},
		{"archive.exe", "archive.exe.pdf"},
		{"  final (v2)...  ", "final (v2).pdf"},
		{"summary.txt", "summary.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			item, err := h.svc.Rename(ctx, user("u1"), res.ID, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, item.Name)
			assert.Equal(t, res.Path, item.Path)
		})
	}

	for _, bad := range []string{"", "   ", "bad/name", "semi;colon", strings.Repeat("a", 255)} {
		_, err := h.svc.Rename(ctx, user("u1"), res.ID, bad)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, bad)
	}

	_, err = h.svc.Rename(ctx, user("u2"), res.ID, "mine")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListScopesAndPaginates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := ingestOne(t, h, user("u1"), fmt.Sprintf("u1-%d.txt", i), []byte(fmt.Sprintf("u1 %d", i)))
		require.NoError(t, err)
	}
	_, err := ingestOne(t, h, user("u2"), "u2.txt", []byte("u2"))
	require.NoError(t, err)
	_, err = ingestOne(t, h, guest("g1"), "g1.txt", []byte("g1"))
	require.NoError(t, err)

	page, err := h.svc.List(ctx, user("u1"), ListQuery{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.LastPage)
	assert.Len(t, page.Data, 2)

	page, err = h.svc.List(ctx, admin(), ListQuery{PerPage: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 100, page.PerPage)

	page, err = h.svc.List(ctx, guest("g1"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 15, page.PerPage)

	page, err = h.svc.List(ctx, guest(""), ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Data)
}

func TestTrashedListingIsAdminOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "a.txt", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(ctx, user("u1"), res.ID, false))

	page, err := h.svc.List(ctx, admin(), ListQuery{Trashed: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = h.svc.List(ctx, user("u1"), ListQuery{Trashed: true})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestOpenAndThumbnails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	img, err := ingestOne(t, h, user("u1"), "photo.jpg", jpegBytes(t, 400, 200, red))
	require.NoError(t, err)
	doc, err := ingestOne(t, h, user("u1"), "a.txt", []byte("plain"))
	require.NoError(t, err)

	blob, err := h.svc.Open(ctx, user("u1"), doc.ID)
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(blob)
	require.NoError(t, err)
	require.NoError(t, blob.Close())
	assert.Equal(t, "plain", buf.String())
	assert.Equal(t, "a.txt", blob.Upload.Name)
	assert.Equal(t, int64(5), blob.Size)

	// the stored image was re-encoded, so its length comes from the disk
	blob, err = h.svc.Open(ctx, user("u1"), img.ID)
	require.NoError(t, err)
	buf.Reset()
	n, err := buf.ReadFrom(blob)
	require.NoError(t, err)
	require.NoError(t, blob.Close())
	assert.Equal(t, n, blob.Size)
	assert.Equal(t, img.Size, blob.Upload.Size)

	thumbs, err := h.svc.Thumbnails(ctx, user("u1"), img.ID)
	require.NoError(t, err)
	assert.Len(t, thumbs, 2)

	_, err = h.svc.Thumbnails(ctx, user("u1"), doc.ID)
	assert.ErrorIs(t, err, ErrNotImage)

	require.NoError(t, h.disk.Delete(ctx, doc.Path))
	_, err = h.svc.Open(ctx, user("u1"), doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := ingestOne(t, h, user("u1"), "a.txt", bytes.Repeat([]byte("a"), 1024))
	require.NoError(t, err)
	_, err = ingestOne(t, h, user("u1"), "b.txt", bytes.Repeat([]byte("b"), 1024))
	require.NoError(t, err)

	_, err = h.svc.Stats(ctx, guest("g1"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	stats, err := h.svc.Stats(ctx, user("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(2048), stats.TotalSize)
	assert.Equal(t, "2.0 KiB", stats.TotalSizeFormatted)
	assert.Equal(t, int64(2), stats.DocumentCount)
}

func TestCleanupOrphans(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "photo.jpg", jpegBytes(t, 400, 200, red))
	require.NoError(t, err)
	trashed, err := ingestOne(t, h, user("u1"), "old.txt", []byte("old"))
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(ctx, user("u1"), trashed.ID, false))

	stray := []byte("stray")
	require.NoError(t, h.disk.Put(ctx, "uploads/stray.bin", bytes.NewReader(stray), int64(len(stray)), "application/octet-stream"))
	require.NoError(t, h.disk.Put(ctx, "elsewhere/keep.bin", bytes.NewReader(stray), int64(len(stray)), "application/octet-stream"))

	_, err = h.svc.Cleanup(ctx, guest("g1"), true)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = h.svc.Cleanup(ctx, user("u1"), true)
	assert.ErrorIs(t, err, ErrForbidden)

	report, err := h.svc.Cleanup(ctx, admin(), true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, []string{"uploads/stray.bin"}, report.Files)
	assert.True(t, exists(t, h.disk, "uploads/stray.bin"))

	report, err = h.svc.CleanupOrphans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cleaned)
	assert.False(t, exists(t, h.disk, "uploads/stray.bin"))
	assert.True(t, exists(t, h.disk, "elsewhere/keep.bin"))
	assert.True(t, exists(t, h.disk, res.Path))
	assert.True(t, exists(t, h.disk, trashed.Path))
}

func TestRegenerateThumbnails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	res, err := ingestOne(t, h, user("u1"), "photo.jpg", jpegBytes(t, 400, 200, red))
	require.NoError(t, err)

	report, err := h.svc.RegenerateThumbnails(ctx, ThumbnailOptions{MissingOnly: true, BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, ThumbnailReport{Processed: 1, Skipped: 1}, report)

	require.NoError(t, h.disk.Delete(ctx, "uploads/photo_thumb_150.jpg"))
	report, err = h.svc.RegenerateThumbnails(ctx, ThumbnailOptions{MissingOnly: true})
	require.NoError(t, err)
	assert.Equal(t, ThumbnailReport{Processed: 1, Generated: 2}, report)
	assert.True(t, exists(t, h.disk, previews.ThumbnailPath(res.Path, 150)))
}

func TestRegenerateThumbnailsWithoutDriver(t *testing.T) {
	h := newHarness(t, func(_ *configuration.UploaderConfig, i *configuration.ImageConfig) { i.Driver = "none" })

	_, err := h.svc.RegenerateThumbnails(context.Background(), ThumbnailOptions{})
	assert.ErrorIs(t, err, ErrImagesUnavailable)
}

func TestPurgeOwner(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a, err := ingestOne(t, h, user("u1"), "a.txt", []byte("a"))
	require.NoError(t, err)
	b, err := ingestOne(t, h, user("u1"), "b.txt", []byte("b"))
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(ctx, user("u1"), b.ID, false))
	other, err := ingestOne(t, h, user("u2"), "c.txt", []byte("c"))
	require.NoError(t, err)

	n, err := h.svc.PurgeOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, exists(t, h.disk, a.Path))
	assert.False(t, exists(t, h.disk, b.Path))
	assert.True(t, exists(t, h.disk, other.Path))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "photo.jpg", displayName(`C:\Users\me\photo.jpg`))
	assert.Equal(t, "file", displayName("  "))
	long := displayName(strings.Repeat("a", 300) + ".pdf")
	assert.Len(t, long, maxNameLength)
	assert.True(t, strings.HasSuffix(long, ".pdf"))
}

func readBlob(t *testing.T, d storage.Disk, key string) []byte {
	t.Helper()
	rc, err := d.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestThumbnailLikeNameDoesNotCollideWithDerivedThumbnails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	victim, err := ingestOne(t, h, guest("g1"), "photo_thumb_150.jpg", jpegBytes(t, 120, 80, red))
	require.NoError(t, err)
	assert.Equal(t, "uploads/photo-thumb_150.jpg", victim.Path)
	assert.Equal(t, "photo_thumb_150.jpg", victim.Name)
	before := readBlob(t, h.disk, victim.Path)

	other, err := ingestOne(t, h, guest("g1"), "photo.jpg", jpegBytes(t, 800, 600, color.RGBA{G: 200, A: 255}))
	require.NoError(t, err)
	require.Contains(t, other.Thumbnails, 150)
	assert.NotEqual(t, victim.Path, other.Thumbnails[150].Path)
	assert.Equal(t, before, readBlob(t, h.disk, victim.Path))

	require.NoError(t, h.svc.Delete(ctx, admin(), other.ID, true))
	assert.Equal(t, before, readBlob(t, h.disk, victim.Path))
}

func TestThumbnailsNeverReplaceAnExistingRecordsBlob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// a record stored under a thumbnail-shaped key, as older data may be
	legacy := jpegBytes(t, 60, 60, red)
	require.NoError(t, h.disk.Put(ctx, "uploads/photo_thumb_150.jpg", bytes.NewReader(legacy), int64(len(legacy)), "image/jpeg"))
	rec := &models.Upload{
		Path:       "uploads/photo_thumb_150.jpg",
		URL:        h.disk.URL("uploads/photo_thumb_150.jpg"),
		Type:       "image/jpeg",
		Name:       "photo_thumb_150.jpg",
		Size:       int64(len(legacy)),
		GuestToken: models.StringPtr("g2"),
	}
	require.NoError(t, h.store.Create(ctx, rec))

	res, err := ingestOne(t, h, guest("g1"), "photo.jpg", jpegBytes(t, 800, 600, color.RGBA{B: 200, A: 255}))
	require.NoError(t, err)
	assert.NotContains(t, res.Thumbnails, 150)
	assert.Contains(t, res.Thumbnails, 300)
	assert.Equal(t, legacy, readBlob(t, h.disk, rec.Path))

	require.NoError(t, h.svc.Delete(ctx, admin(), res.ID, true))
	assert.Equal(t, legacy, readBlob(t, h.disk, rec.Path))
	assert.False(t, exists(t, h.disk, "uploads/photo_thumb_300.jpg"))
}

func TestConcurrentIdenticalUploadsKeepOneRecord(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	data := []byte("the very same bytes")

	const n = 8
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.svc.Ingest(ctx, user("u1"), []Incoming{incoming("same.txt", data)}, IngestOptions{SaveToDB: true})
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = out[0].Result, out[0].Err
		}(i)
	}
	wg.Wait()

	var originals, duplicates int
	var originalID string
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].IsDuplicate {
			duplicates++
			continue
		}
		originals++
		originalID = results[i].ID
	}
	assert.Equal(t, 1, originals)
	assert.Equal(t, n-1, duplicates)
	for _, res := range results {
		assert.Equal(t, originalID, res.ID)
	}

	page, err := h.svc.List(ctx, user("u1"), ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	objects, err := h.disk.List(ctx, "uploads")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestConcurrentGuestUploadsRespectTheLimit(t *testing.T) {
	const limit = 3
	h := newHarness(t, func(u *configuration.UploaderConfig, _ *configuration.ImageConfig) { u.GuestLimit = limit })
	ctx := context.Background()

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := []byte(fmt.Sprintf("guest file %d", i))
			out, err := h.svc.Ingest(ctx, guest("g1"), []Incoming{incoming(fmt.Sprintf("f%d.txt", i), body)}, IngestOptions{SaveToDB: true})
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = out[0].Err
		}(i)
	}
	wg.Wait()

	var stored, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			stored++
		case errors.Is(err, ErrGuestLimitExceeded):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, limit, stored)
	assert.Equal(t, n-limit, rejected)

	count, err := h.store.CountByGuest(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(limit), count)
}
