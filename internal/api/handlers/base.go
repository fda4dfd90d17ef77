// Package handlers implements the REST introspection endpoints for
// chaingate: liveness, runtime status, and recent audit history.
package handlers

import (
	"log/slog"
	"time"

	"github.com/jroosing/chaingate/internal/audit"
	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/config"
	"github.com/jroosing/chaingate/internal/frontend"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	pool     *upstream.Pool
	registry *subscribe.Registry
	frontend *frontend.Server
	cache    *cache.Bundle
	audit    *audit.Log
}

// New creates a new Handler with the given configuration. Runtime
// collaborators are wired in afterward with the Set* methods once
// internal/runner constructs them, since the gateway's components and the
// introspection API are built in the same step but started in sequence.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetPool wires the upstream pool for runtime access.
func (h *Handler) SetPool(p *upstream.Pool) { h.pool = p }

// SetRegistry wires the subscription registry for runtime access.
func (h *Handler) SetRegistry(r *subscribe.Registry) { h.registry = r }

// SetFrontend wires the frontend server for runtime access.
func (h *Handler) SetFrontend(f *frontend.Server) { h.frontend = f }

// SetCache wires the cache bundle for runtime access.
func (h *Handler) SetCache(c *cache.Bundle) { h.cache = c }

// SetAudit wires the audit log for runtime access.
func (h *Handler) SetAudit(a *audit.Log) { h.audit = a }
