package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// CacheStats reports the cumulative hit/miss/degraded-hit counters,
// replacing the fixed-coefficient "API calls saved" figure the source
// computed from process uptime with the real avoided-call count.
type CacheStats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	DegradedHits int64 `json:"degraded_hits"`
}

// EndpointStats summarizes one upstream endpoint's health for /status.
type EndpointStats struct {
	URL           string  `json:"url"`
	Current       bool    `json:"current"`
	Healthy       bool    `json:"healthy"`
	ErrorCount    int     `json:"error_count"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	TotalRequests int64   `json:"total_requests"`
}

// StatusResponse is the full /status introspection document.
type StatusResponse struct {
	Service          string           `json:"service"`
	Uptime           string           `json:"uptime"`
	UptimeSeconds    int64            `json:"uptime_seconds"`
	StartTime        time.Time        `json:"start_time"`
	ConnectedClients int              `json:"connected_clients"`
	FeedSubscribers  map[string]int   `json:"feed_subscribers"`
	QueueLength      int              `json:"queue_length"`
	CurrentEndpoint  string           `json:"current_endpoint"`
	EndpointIndex    int              `json:"endpoint_index"`
	Endpoints        []EndpointStats  `json:"endpoints"`
	HeadFresh        bool             `json:"head_fresh"`
	HeadHeight       int64            `json:"head_height,omitempty"`
	WitnessFresh     bool             `json:"witness_fresh"`
	Cache            CacheStats       `json:"cache"`
	CPU              CPUStats         `json:"cpu"`
	Memory           MemoryStats      `json:"memory"`
}

// AuditEvent is one row of the recent-history view at /status/events.
type AuditEvent struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditEventsResponse wraps the recent audit events for /status/events.
type AuditEventsResponse struct {
	Events []AuditEvent `json:"events"`
}
