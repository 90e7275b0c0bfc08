package models

import "fmt"

// Search metrics.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// DefaultSearchLimit is used when a search request carries no limit.
const DefaultSearchLimit = 5

// SearchRequest is the body of POST /api/vectors/search.
type SearchRequest struct {
	Vector []float64 `json:"vector"`
	Limit  *int      `json:"limit,omitempty"`
	// Metric is "cosine" (default) or "l2".
	Metric string `json:"metric,omitempty"`
}

// LimitOr returns the requested limit, or def when none was given.
// The value is passed to the store as-is.
func (q *SearchRequest) LimitOr(def int) int {
	if q.Limit == nil {
		return def
	}
	return *q.Limit
}

// MetricOrDefault returns the normalized metric, or an error for an unknown one.
func (q *SearchRequest) MetricOrDefault() (string, error) {
	switch q.Metric {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	}
	return "", fmt.Errorf("unsupported metric %q (want %q or %q)", q.Metric, MetricCosine, MetricL2)
}

// SearchResult is one hit. Cosine searches set Similarity; L2 searches set
// Distance. SearchTimeMs is the duration of the whole store query and is the
// same for every result of a batch.
type SearchResult struct {
	ReportID     int64    `json:"reportId"`
	ReportTitle  *string  `json:"reportTitle"`
	Similarity   *float64 `json:"similarity,omitempty"`
	Distance     *float64 `json:"distance,omitempty"`
	SearchTimeMs int64    `json:"searchTimeMs"`
}

// SearchResponse is returned by a successful search.
type SearchResponse struct {
	Success     bool           `json:"success"`
	Results     []SearchResult `json:"results"`
	TotalTimeMs int64          `json:"totalTimeMs"`
	ResultCount int            `json:"resultCount"`
}
