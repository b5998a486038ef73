package uploads

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
)

// List returns a page of the uploads the caller may see.
func (h *Handler) List(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), h.actor(c), uploader.ListQuery{
		Type:      c.Query("type"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Page:      intQuery(c, "page"),
		PerPage:   intQuery(c, "per_page"),
		Trashed:   boolParam(c, "trashed", false),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Show(c *gin.Context) {
	item, err := h.svc.Show(c.Request.Context(), h.actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) Thumbnails(c *gin.Context) {
	thumbs, err := h.svc.Thumbnails(c.Request.Context(), h.actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "thumbnails": thumbs})
}
