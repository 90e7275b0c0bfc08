package models

// EmbedRequest is the body of POST /api/vectors/embed: a report document
// whose summary fields are turned into text and embedded.
type EmbedRequest struct {
	Report map[string]interface{} `json:"report"`
}

// EmbedResponse carries the embedding of a report.
type EmbedResponse struct {
	Vector    []float32 `json:"vector"`
	Dimension int       `json:"dimension"`
}

// EmbedErrorResponse is the failure envelope of the embed endpoint.
// Detail is only filled in debug mode.
type EmbedErrorResponse struct {
	Success   bool    `json:"success"`
	ErrorCode string  `json:"error_code"`
	Message   string  `json:"message"`
	Detail    *string `json:"detail"`
}
