// Product and stats HTTP handlers.
//
// Endpoints:
//   - GET /api/products   (catalog page + settings + stats, weak ETag)
//   - GET /api/sessions   (registry observability snapshot)
//
// Handlers are transport-thin: they validate input, call the engine, and
// translate the result into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/engine"
	"github.com/dilduck/fallcentalert/internal/session"
	"github.com/dilduck/fallcentalert/internal/utils"
)

//
// Service contracts
//

// EngineService is the subset of the distribution engine consumed by the
// HTTP handlers. Implementations must be safe for concurrent use.
type EngineService interface {
	// State returns the full snapshot: products, settings, stats.
	State() engine.State
	// Stats returns current catalog statistics.
	Stats() domain.Stats
	// CatalogVersion returns the catalog mutation counter for ETags.
	CatalogVersion() int64
	// Settings returns a copy of the runtime settings.
	Settings() domain.Settings
	// UpdateSettings merges a partial update, persists, and broadcasts.
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings
}

// SessionStatsService exposes the registry snapshot for observability.
type SessionStatsService interface {
	Stats() session.Stats
}

// Handlers groups the REST endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from engine logic.
type Handlers struct {
	eng      EngineService
	sessions SessionStatsService
}

// New constructs a Handlers instance bound to the given services.
func New(eng EngineService, sessions SessionStatsService) *Handlers {
	return &Handlers{eng: eng, sessions: sessions}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ProductsResponse wraps one catalog page together with the shared settings
// and statistics, mirroring the full-state snapshot sent over the websocket.
type ProductsResponse struct {
	Products   []domain.Product `json:"products"`
	Settings   domain.Settings  `json:"settings"`
	Stats      domain.Stats     `json:"stats"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListProducts returns one page of the catalog plus settings and stats.
// A weak ETag derived from the catalog version supports If-None-Match → 304.
func (h *Handlers) ListProducts(c *gin.Context) {
	page, pageSize := clampPagination(c)

	etag := fmt.Sprintf(`W/"products:%d:%d:%d"`, h.eng.CatalogVersion(), page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	st := h.eng.State()
	total := len(st.Products)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	resp := ProductsResponse{
		Products: st.Products[start:end],
		Settings: st.Settings,
		Stats:    st.Stats,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// ListSessions returns the session registry snapshot (active sessions with
// their dismissed counts and activity timestamps).
func (h *Handlers) ListSessions(c *gin.Context) {
	ok(c, http.StatusOK, h.sessions.Stats())
}
