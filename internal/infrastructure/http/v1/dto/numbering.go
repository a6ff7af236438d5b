package dto

import (
	"time"

	"docnum/internal/core/numerator"
	"docnum/internal/domain/reservations"
)

// NumberResponse carries an allocated document number.
type NumberResponse struct {
	Office string `json:"office"`
	Number string `json:"number"`
}

// ReleaseRequest returns a number to the recycling pool.
type ReleaseRequest struct {
	Number string `json:"number" binding:"required"`
}

// ValidateResponse reports pattern conformance of a number.
type ValidateResponse struct {
	Office string `json:"office"`
	Number string `json:"number"`
	Valid  bool   `json:"valid"`
}

// AuditRequest lists historical numbers to check.
type AuditRequest struct {
	Numbers []string `json:"numbers" binding:"required,min=1,max=10000"`
}

// AuditResponse lists the numbers that do not match the office pattern.
type AuditResponse struct {
	Office  string   `json:"office"`
	Checked int      `json:"checked"`
	Invalid []string `json:"invalid"`
}

// PatternResponse is one office and its template.
type PatternResponse struct {
	Office        string `json:"office"`
	Template      string `json:"template"`
	SequenceWidth int    `json:"sequence_width"`
	MaxSequence   int64  `json:"max_sequence"`
}

// FromTemplate describes the template of office.
func FromTemplate(office string, t numerator.Template) PatternResponse {
	return PatternResponse{
		Office:        office,
		Template:      t.String(),
		SequenceWidth: t.SequenceWidth(),
		MaxSequence:   t.MaxSequence(),
	}
}

// PatternsResponse is the full registry.
type PatternsResponse struct {
	TemplateLength int               `json:"template_length"`
	Patterns       []PatternResponse `json:"patterns"`
}

// FromRegistry lists the registry in office order.
func FromRegistry(r *numerator.Registry) PatternsResponse {
	offices := r.Offices()
	out := PatternsResponse{
		TemplateLength: r.Options().TemplateLength,
		Patterns:       make([]PatternResponse, 0, len(offices)),
	}
	for _, office := range offices {
		t, err := r.TemplateFor(office)
		if err != nil {
			continue
		}
		out.Patterns = append(out.Patterns, FromTemplate(office, t))
	}
	return out
}

// RecycledResponse describes an office's recycling pool.
type RecycledResponse struct {
	Office  string                     `json:"office"`
	Size    int64                      `json:"size"`
	Numbers []numerator.RecycledNumber `json:"numbers"`
}

// PurgeResponse reports how many recycled numbers were dropped.
type PurgeResponse struct {
	Office  string `json:"office"`
	Removed int64  `json:"removed"`
}

// ReservationResponse is a persisted reservation.
type ReservationResponse struct {
	ID        string    `json:"id"`
	Office    string    `json:"office"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"created_at"`
}

// FromReservation converts a domain reservation.
func FromReservation(r *reservations.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        r.ID.String(),
		Office:    r.Office,
		Number:    r.Number,
		CreatedAt: r.CreatedAt,
	}
}
