package handlers

import (
	"github.com/gin-gonic/gin"

	"docnum/internal/core/numerator"
	"docnum/internal/infrastructure/http/v1/dto"
	"docnum/pkg/logger"
)

// RecycleHandler administers the recycling pools.
type RecycleHandler struct {
	BaseHandler
	pool *numerator.RecyclingPool
}

// NewRecycleHandler creates a new recycle handler.
func NewRecycleHandler(pool *numerator.RecyclingPool) *RecycleHandler {
	return &RecycleHandler{pool: pool}
}

// Get reports the pool size and the next numbers to be reissued.
// GET /api/v1/offices/:office/recycled?limit=100
func (h *RecycleHandler) Get(c *gin.Context) {
	var req dto.LimitRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	ctx := c.Request.Context()
	office := h.Office(c)
	size, err := h.pool.Size(ctx, office)
	if err != nil {
		h.Error(c, err)
		return
	}
	numbers, err := h.pool.List(ctx, office, req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if numbers == nil {
		numbers = []numerator.RecycledNumber{}
	}
	h.OK(c, dto.RecycledResponse{Office: office, Size: size, Numbers: numbers})
}

// Purge drops every recycled number of the office.
// DELETE /api/v1/offices/:office/recycled
func (h *RecycleHandler) Purge(c *gin.Context) {
	ctx := c.Request.Context()
	office := h.Office(c)
	removed, err := h.pool.Purge(ctx, office)
	if err != nil {
		h.Error(c, err)
		return
	}
	logger.Info(ctx, "recycling pool purged", "office", office, "removed", removed)
	h.OK(c, dto.PurgeResponse{Office: office, Removed: removed})
}
