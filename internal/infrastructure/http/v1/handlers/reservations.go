package handlers

import (
	"github.com/gin-gonic/gin"

	"docnum/internal/domain/reservations"
	"docnum/internal/infrastructure/http/v1/dto"
)

// ReservationHandler claims numbers in the record table.
type ReservationHandler struct {
	BaseHandler
	service *reservations.Service
}

// NewReservationHandler creates a new reservation handler.
func NewReservationHandler(service *reservations.Service) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Create reserves a fresh number for the office.
// POST /api/v1/offices/:office/reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	r, err := h.service.Reserve(c.Request.Context(), h.Office(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromReservation(r))
}

// Get loads a reservation.
// GET /api/v1/offices/:office/reservations/:number
func (h *ReservationHandler) Get(c *gin.Context) {
	number, ok := h.Number(c)
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), number)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromReservation(r))
}

// Delete withdraws a reservation and recycles its number.
// DELETE /api/v1/offices/:office/reservations/:number
func (h *ReservationHandler) Delete(c *gin.Context) {
	number, ok := h.Number(c)
	if !ok {
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), h.Office(c), number); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
