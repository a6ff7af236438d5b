package handlers

import (
	"github.com/gin-gonic/gin"

	"docnum/internal/domain/numbering"
	"docnum/internal/infrastructure/http/v1/dto"
)

// NumberHandler serves allocation, release and validation of document numbers.
type NumberHandler struct {
	BaseHandler
	allocator *numbering.Allocator
}

// NewNumberHandler creates a new number handler.
func NewNumberHandler(allocator *numbering.Allocator) *NumberHandler {
	return &NumberHandler{allocator: allocator}
}

// Allocate hands out a number for the office.
// POST /api/v1/offices/:office/numbers
func (h *NumberHandler) Allocate(c *gin.Context) {
	office := h.Office(c)
	number, err := h.allocator.Allocate(c.Request.Context(), office)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.NumberResponse{Office: office, Number: number})
}

// Release returns a number to the office's recycling pool.
// POST /api/v1/offices/:office/numbers/release
func (h *NumberHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.allocator.Release(c.Request.Context(), h.Office(c), req.Number); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Validate checks a number against the office pattern.
// GET /api/v1/offices/:office/numbers/:number/validate
func (h *NumberHandler) Validate(c *gin.Context) {
	number, ok := h.Number(c)
	if !ok {
		return
	}
	office := h.Office(c)
	valid, err := h.allocator.Validate(c.Request.Context(), office, number)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ValidateResponse{Office: office, Number: number, Valid: valid})
}

// Audit checks a batch of historical numbers.
// POST /api/v1/offices/:office/numbers/audit
func (h *NumberHandler) Audit(c *gin.Context) {
	var req dto.AuditRequest
	if !h.BindJSON(c, &req) {
		return
	}
	office := h.Office(c)
	invalid, err := h.allocator.Audit(c.Request.Context(), office, req.Numbers)
	if err != nil {
		h.Error(c, err)
		return
	}
	if invalid == nil {
		invalid = []string{}
	}
	h.OK(c, dto.AuditResponse{Office: office, Checked: len(req.Numbers), Invalid: invalid})
}
