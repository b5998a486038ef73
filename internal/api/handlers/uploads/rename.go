package uploads

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/uploader"
)

type renameRequest struct {
	Name string `json:"name" form:"name" binding:"required"`
}

func (h *Handler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBind(&req); err != nil {
		msg := "The request body is malformed."
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msg = "The name field is required."
		}
		h.fail(c, &uploader.ValidationError{Field: "name", Messages: []string{msg}})
		return
	}

	item, err := h.svc.Rename(c.Request.Context(), h.actor(c), c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"upload":  item,
		"message": "File renamed successfully",
	})
}
