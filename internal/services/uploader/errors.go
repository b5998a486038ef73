package uploader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("upload not found")
	ErrForbidden          = errors.New("not allowed to act on this upload")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrGuestsDisabled     = errors.New("guest uploads are disabled")
	ErrGuestLimitExceeded = errors.New("guest upload limit reached")
	ErrNotImage           = errors.New("upload is not an image")
	ErrNoFiles            = errors.New("no files provided")
	ErrImagesUnavailable  = errors.New("image processing is not available")
)

// ValidationError lists every rule a field broke.
type ValidationError struct {
	Field    string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, strings.Join(e.Messages, " "))
}

// StorageError is a blob write that failed or could not be confirmed.
type StorageError struct {
	Disk string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure on %s at %q: %v", e.Disk, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
