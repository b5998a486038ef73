// Package uploads holds the gin handlers of the upload API.
package uploads

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/auth"
	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
)

type Handler struct {
	svc   *uploader.Service
	debug bool
	log   zerolog.Logger
}

// NewHandler builds the upload handlers. debug adds error details to 500 responses.
func NewHandler(svc *uploader.Service, debug bool, log zerolog.Logger) *Handler {
	return &Handler{
		svc:   svc,
		debug: debug,
		log:   log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) actor(c *gin.Context) auth.Actor {
	return h.svc.Authorizer().ActorFor(c.Request)
}

// fail maps a service error to its status code. Expected conditions are not logged as faults.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		verr *uploader.ValidationError
		serr *uploader.StorageError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": gin.H{verr.Field: verr.Messages}})
	case errors.As(err, &serr):
		h.log.Error().Err(serr.Err).Str("disk", serr.Disk).Str("path", serr.Path).Msg("storage failure")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to store file."})
	case errors.Is(err, uploader.ErrNoFiles):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": gin.H{"file": []string{"The file field is required."}}})
	case errors.Is(err, uploader.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
	case errors.Is(err, uploader.ErrGuestsDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "Guest uploads are not allowed."})
	case errors.Is(err, uploader.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	case errors.Is(err, uploader.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
	case errors.Is(err, uploader.ErrGuestLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Guest upload limit reached."})
	case errors.Is(err, uploader.ErrNotImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is not an image"})
	default:
		h.log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Msg("request failed")
		body := gin.H{"error": "Internal server error"}
		if h.debug {
			body["details"] = err.Error()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

// boolParam reads a query value, falling back to the form body.
func boolParam(c *gin.Context, key string, def bool) bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		raw, ok = c.GetPostForm(key)
	}
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
