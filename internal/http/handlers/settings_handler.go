// Settings HTTP handlers.
//
// Endpoints:
//   - GET /api/settings   (current runtime settings)
//   - PUT /api/settings   (partial update; persists and broadcasts)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// GetSettings returns the current runtime settings.
func (h *Handlers) GetSettings(c *gin.Context) {
	ok(c, http.StatusOK, h.eng.Settings())
}

// UpdateSettings applies a partial settings update. Absent fields are left
// unchanged. The merged settings are returned, and every connected session
// receives a settings-update broadcast.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if patch.CrawlIntervalMinutes != nil && *patch.CrawlIntervalMinutes < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "crawling_interval must be >= 1")
		return
	}

	merged := h.eng.UpdateSettings(c.Request.Context(), patch)
	ok(c, http.StatusOK, merged)
}
