package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/chaingate/internal/api/models"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health returns a minimal liveness document.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UnixMilli(),
	})
}

// Status returns the full runtime status document: uptime, connected
// clients, per-feed subscriber counts, queue depth, the pool's current
// endpoint, cache freshness, and cache hit/miss/degraded counters. The
// "total API calls saved" figure the source derived from a fixed uptime
// coefficient is intentionally absent - Cache.Hits is the real count of
// upstream calls the cache avoided.
func (h *Handler) Status(c *gin.Context) {
	uptime := time.Since(h.startTime)

	resp := models.StatusResponse{
		Service:       "chaingate",
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats(),
		Memory:        memoryStats(),
	}

	if h.frontend != nil {
		resp.ConnectedClients = h.frontend.ConnectionCount()
		resp.QueueLength = h.frontend.Queue.Len()
	}

	if h.registry != nil {
		resp.FeedSubscribers = make(map[string]int, len(session.AllFeeds()))
		for _, f := range session.AllFeeds() {
			resp.FeedSubscribers[string(f)] = h.registry.MemberCount(f)
		}
	}

	if h.pool != nil {
		ep, idx := h.pool.Current()
		resp.EndpointIndex = idx
		if ep != nil {
			resp.CurrentEndpoint = ep.URL
		}
		for i, e := range h.pool.Endpoints() {
			eh := e.Health()
			resp.Endpoints = append(resp.Endpoints, models.EndpointStats{
				URL:           e.URL,
				Current:       i == idx,
				Healthy:       eh.Healthy,
				ErrorCount:    eh.ErrorCount,
				AvgLatencyMs:  float64(eh.AvgLatency.Microseconds()) / 1000.0,
				TotalRequests: eh.TotalRequests,
			})
		}
	}

	if h.cache != nil {
		if _, ok := h.cache.Head.Peek(); ok {
			resp.HeadFresh = true
		}
		if _, ok := h.cache.Witness.Peek(); ok {
			resp.WitnessFresh = true
		}
		resp.Cache = models.CacheStats{
			Hits:         h.cache.Counters.Hits(),
			Misses:       h.cache.Counters.Misses(),
			DegradedHits: h.cache.Counters.DegradedHits(),
		}
		if hs, ok := h.cache.Head.Peek(); ok {
			resp.HeadHeight = hs.Height
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Events returns the most recent audit log entries, bounded by
// cfg.Audit.EventLimit.
func (h *Handler) Events(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, models.AuditEventsResponse{})
		return
	}

	limit := 100
	if h.cfg != nil && h.cfg.Audit.EventLimit > 0 {
		limit = h.cfg.Audit.EventLimit
	}

	events, err := h.audit.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	out := make([]models.AuditEvent, 0, len(events))
	for _, e := range events {
		out = append(out, models.AuditEvent{
			ID:         e.ID,
			Kind:       string(e.Kind),
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	c.JSON(http.StatusOK, models.AuditEventsResponse{Events: out})
}

func cpuStats() models.CPUStats {
	stats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		stats.UsedPercent = pct[0]
		stats.IdlePercent = 100.0 - pct[0]
	}
	return stats
}

func memoryStats() models.MemoryStats {
	stats := models.MemoryStats{}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.TotalMB = float64(vm.Total) / 1024 / 1024
		stats.FreeMB = float64(vm.Available) / 1024 / 1024
		stats.UsedMB = float64(vm.Used) / 1024 / 1024
		stats.UsedPercent = vm.UsedPercent
	}
	return stats
}
