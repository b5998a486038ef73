package uploads

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Download streams the blob straight from the disk, no temp files.
func (h *Handler) Download(c *gin.Context) {
	blob, err := h.svc.Open(c.Request.Context(), h.actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer blob.Close()

	u := blob.Upload
	c.DataFromReader(http.StatusOK, blob.Size, u.Type, blob, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": u.Name}),
	})
}
