package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
)

// Maintainer is the slice of the upload service the consumers drive.
type Maintainer interface {
	PurgeOwner(ctx context.Context, userID string) (int, error)
	GenerateThumbnails(ctx context.Context, id string) error
}

// Routes binds every consumed subject. Thumbnail requests are only consumed
// when async is set.
func Routes(m Maintainer, async bool, log zerolog.Logger) map[string]Route {
	routes := map[string]Route{
		// User events
		events.SubjectUserDeleted: {Durable: "upload-service-users-deleted", Handler: HandleUserDeleted(m, log)},
	}
	if async {
		routes[events.SubjectThumbnailsRequested] = Route{
			Durable: "upload-service-thumbnails",
			Handler: HandleThumbnailsRequested(m, log),
		}
	}
	return routes
}

func HandleUserDeleted(m Maintainer, log zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, msg *nats.Msg) error {
		var payload events.UserDeletedEvent
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return fmt.Errorf("%w: users.deleted: %v", ErrInvalidPayload, err)
		}
		if payload.UserID == "" {
			return fmt.Errorf("%w: users.deleted: missing user_id", ErrInvalidPayload)
		}

		log.Info().Str("user_id", payload.UserID).Msg("[NATS] Processing users.deleted")
		n, err := m.PurgeOwner(ctx, payload.UserID)
		if err != nil {
			return fmt.Errorf("purge uploads of %s: %w", payload.UserID, err)
		}
		log.Info().Str("user_id", payload.UserID).Int("purged", n).Msg("[NATS] Successfully cleaned up user")
		return nil
	}
}

func HandleThumbnailsRequested(m Maintainer, log zerolog.Logger) HandlerFunc {
	return func(ctx context.Context, msg *nats.Msg) error {
		var payload events.UploadEvent
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, events.SubjectThumbnailsRequested, err)
		}
		if payload.UploadID == "" {
			return fmt.Errorf("%w: %s: missing upload_id", ErrInvalidPayload, events.SubjectThumbnailsRequested)
		}
		log.Debug().Str("upload_id", payload.UploadID).Msg("[NATS] Generating thumbnails")
		return m.GenerateThumbnails(ctx, payload.UploadID)
	}
}
