package uploads

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), h.actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Cleanup removes orphaned blobs. dry_run=true only reports them.
func (h *Handler) Cleanup(c *gin.Context) {
	report, err := h.svc.Cleanup(c.Request.Context(), h.actor(c), boolParam(c, "dry_run", false))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Health(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK
	for name, err := range h.svc.Health(c.Request.Context()) {
		if err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
