// Package models defines request and response types for the chaingate
// introspection API. All types are JSON-serializable.
package models

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the minimal liveness document returned from /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// ServiceDocument is the small JSON document returned for any path the
// introspection API doesn't otherwise recognize.
type ServiceDocument struct {
	Service string   `json:"service"`
	Routes  []string `json:"routes"`
}
