// Package validator checks candidate uploads against the configured policy.
package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/configuration"
)

// knownMimeTypes maps an extension to the detected types accepted for it.
// Extensions missing here pass the strict MIME check.
var knownMimeTypes = map[string][]string{
	"jpg":  {"image/jpeg", "image/jpg", "image/pjpeg"},
	"jpeg": {"image/jpeg", "image/jpg", "image/pjpeg"},
	"png":  {"image/png"},
	"gif":  {"image/gif"},
	"webp": {"image/webp"},
	"bmp":  {"image/bmp", "image/x-ms-bmp"},
	"svg":  {"image/svg+xml", "text/xml", "text/plain"},
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword", "application/x-ole-storage"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	"xls":  {"application/vnd.ms-excel", "application/x-ole-storage"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	"txt":  {"text/plain"},
	"csv":  {"text/csv", "text/plain"},
	"zip":  {"application/zip"},
	"mp4":  {"video/mp4"},
	"mp3":  {"audio/mpeg"},
}

// File describes one candidate upload.
type File struct {
	Name      string
	MimeType  string
	Size      int64
	UploadErr error
}

type Result struct {
	Valid  bool
	Errors []string
}

type Validator struct {
	allowed  map[string]struct{}
	maxBytes int64
	strict   bool
}

func New(cfg configuration.UploaderConfig) *Validator {
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Validator{
		allowed:  allowed,
		maxBytes: cfg.MaxSizeBytes(),
		strict:   cfg.StrictMime,
	}
}

// Validate runs every rule and collects all violations.
func (v *Validator) Validate(f File) Result {
	var errs []string
	ext := Extension(f.Name)

	if !v.ExtensionAllowed(ext) {
		errs = append(errs, fmt.Sprintf("File type '%s' is not allowed.", ext))
	}
	if f.Size > v.maxBytes {
		errs = append(errs, fmt.Sprintf("File size exceeds maximum allowed size of %s.", humanize.IBytes(uint64(v.maxBytes))))
	}
	// a failed transfer has no content to sniff
	if v.strict && f.UploadErr == nil && !MimeMatches(ext, f.MimeType) {
		errs = append(errs, fmt.Sprintf("File content type '%s' does not match extension '%s'.", f.MimeType, ext))
	}
	if f.UploadErr != nil {
		errs = append(errs, "File upload failed: "+f.UploadErr.Error())
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func (v *Validator) ExtensionAllowed(ext string) bool {
	_, ok := v.allowed[strings.ToLower(ext)]
	return ok
}

// Extension returns the lower-cased extension of name without the leading dot.
func Extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// MimeMatches reports whether mimeType is acceptable for ext.
func MimeMatches(ext, mimeType string) bool {
	accepted, known := knownMimeTypes[strings.ToLower(ext)]
	if !known {
		return true
	}
	base := BaseMime(mimeType)
	for _, m := range accepted {
		if m == base {
			return true
		}
	}
	return false
}

// BaseMime strips parameters such as "; charset=utf-8".
func BaseMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
