package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
)

func newValidator(strict bool) *Validator {
	return New(configuration.UploaderConfig{
		AllowedExtensions: []string{"jpg", "jpeg", "png", "pdf", "dat"},
		MaxSizeKB:         1,
		StrictMime:        strict,
	})
}

func TestValidateAcceptsConformingFile(t *testing.T) {
	res := newValidator(true).Validate(File{Name: "Photo.JPG", MimeType: "image/jpeg", Size: 1024})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	res := newValidator(true).Validate(File{
		Name:      "setup.exe",
		MimeType:  "application/x-msdownload",
		Size:      1025,
		UploadErr: errors.New("partial upload"),
	})

	assert.False(t, res.Valid)
	assert.Equal(t, []string{
		"File type 'exe' is not allowed.",
		"File size exceeds maximum allowed size of 1.0 KiB.",
		"File upload failed: partial upload",
	}, res.Errors)
}

func TestValidateStrictMime(t *testing.T) {
	v := newValidator(true)

	res := v.Validate(File{Name: "fake.png", MimeType: "application/pdf", Size: 10})
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"File content type 'application/pdf' does not match extension 'png'."}, res.Errors)

	// no mapping for the extension: fail open
	res = v.Validate(File{Name: "blob.dat", MimeType: "application/octet-stream", Size: 10})
	assert.True(t, res.Valid)

	res = newValidator(false).Validate(File{Name: "fake.png", MimeType: "application/pdf", Size: 10})
	assert.True(t, res.Valid)
}

func TestMimeMatchesIgnoresParameters(t *testing.T) {
	assert.True(t, MimeMatches("txt", "text/plain; charset=utf-8"))
	assert.True(t, MimeMatches("jpeg", "image/jpg"))
	assert.False(t, MimeMatches("pdf", "text/plain"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Extension("a.b.JPG"))
	assert.Equal(t, "", Extension("README"))
}
