// Package models defines the request and response shapes of the vector API.
package models

// EmbeddingRequest is the body of POST /api/vectors/save. Fields are not
// validated here: missing ids, over-long titles and wrong-dimension vectors
// are rejected by the store.
type EmbeddingRequest struct {
	ReportID    *int64    `json:"reportId"`
	ReportTitle *string   `json:"reportTitle"`
	Vector      []float64 `json:"vector"`
}

// SaveResponse is returned by a successful save.
type SaveResponse struct {
	Success    bool   `json:"success"`
	ReportID   *int64 `json:"reportId"`
	SaveTimeMs int64  `json:"saveTimeMs"`
}

// ErrorResponse is the failure envelope of save and search. ErrorType is
// only set by save.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType,omitempty"`
}

// CountResponse is returned by GET /api/vectors/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// HealthResponse is returned by GET /api/vectors/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
