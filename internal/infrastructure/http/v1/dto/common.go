// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// --- Pagination ---

// LimitRequest bounds list endpoints.
type LimitRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// Defaults sets the default limit.
func (r *LimitRequest) Defaults() {
	if r.Limit == 0 {
		r.Limit = 100
	}
}

// --- Error Response ---

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
