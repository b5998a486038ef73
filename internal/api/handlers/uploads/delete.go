package uploads

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Delete soft-deletes an upload. force=true purges it and is admin only.
func (h *Handler) Delete(c *gin.Context) {
	fileID := c.Param("id")
	force := boolParam(c, "force", false)

	if err := h.svc.Delete(c.Request.Context(), h.actor(c), fileID, force); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Restore(c *gin.Context) {
	item, err := h.svc.Restore(c.Request.Context(), h.actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "upload": item})
}
