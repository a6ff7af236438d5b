package handlers

import (
	"github.com/gin-gonic/gin"

	"docnum/internal/core/apperror"
	"docnum/internal/core/numerator"
	"docnum/internal/infrastructure/http/v1/dto"
)

// PatternHandler exposes the read-only pattern registry.
type PatternHandler struct {
	BaseHandler
	registry *numerator.Registry
}

// NewPatternHandler creates a new pattern handler.
func NewPatternHandler(registry *numerator.Registry) *PatternHandler {
	return &PatternHandler{registry: registry}
}

// List returns every office and its template.
// GET /api/v1/patterns
func (h *PatternHandler) List(c *gin.Context) {
	h.OK(c, dto.FromRegistry(h.registry))
}

// Get returns one office's template.
// GET /api/v1/patterns/:office
func (h *PatternHandler) Get(c *gin.Context) {
	office := h.Office(c)
	tpl, err := h.registry.TemplateFor(office)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTemplate(office, tpl))
}

// Resolve finds the office whose pattern a number matches.
// GET /api/v1/numbers/:number/office
func (h *PatternHandler) Resolve(c *gin.Context) {
	number, ok := h.Number(c)
	if !ok {
		return
	}
	office, found := h.registry.OfficeFor(number)
	if !found {
		h.Error(c, apperror.NewNotFound("office for number", number))
		return
	}
	h.OK(c, dto.NumberResponse{Office: office, Number: number})
}
