// Package events publishes upload lifecycle events to NATS JetStream.
package events

import (
	"context"
	"time"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/models"
)

const (
	StreamName = "upload-events"

	SubjectUploadCreated       = "uploads.created"
	SubjectUploadDeleted       = "uploads.deleted"
	SubjectUploadPurged        = "uploads.purged"
	SubjectUploadRestored      = "uploads.restored"
	SubjectUploadRenamed       = "uploads.renamed"
	SubjectThumbnailsRequested = "uploads.thumbnails.requested"

	SubjectUserDeleted = "users.deleted"
)

// Publisher delivers one event. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type UploadEvent struct {
	UploadID   string    `json:"upload_id"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	FileHash   string    `json:"file_hash,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewUploadEvent(u *models.Upload) UploadEvent {
	ev := UploadEvent{
		UploadID:   u.ID,
		Path:       u.Path,
		Type:       u.Type,
		Name:       u.Name,
		Size:       u.Size,
		OccurredAt: time.Now().UTC(),
	}
	if u.FileHash != nil {
		ev.FileHash = *u.FileHash
	}
	if u.UserID != nil {
		ev.UserID = *u.UserID
	}
	return ev
}

type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// Noop drops every event. It is used when NATS_URL is empty.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
