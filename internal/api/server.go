// Package api provides the HTTP introspection surface for chaingate: a
// liveness probe, a runtime status document, recent audit history, and the
// WebSocket upgrade route itself, all on one Gin engine and one listener.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/chaingate/internal/api/handlers"
	"github.com/jroosing/chaingate/internal/api/middleware"
	"github.com/jroosing/chaingate/internal/config"
	"golang.org/x/sys/unix"
)

// Server is the gateway's combined HTTP/WebSocket front door.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	Handler    *handlers.Handler
}

// New builds the engine and wraps it in an http.Server bound to
// cfg.Listen. ws is mounted at /ws alongside the introspection routes.
func New(cfg *config.Config, logger *slog.Logger, ws http.HandlerFunc) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	mountStatic(engine)

	h := handlers.New(cfg, logger)
	RegisterRoutes(engine, h, cfg, ws)

	addr := net.JoinHostPort(cfg.Listen.Host, strconv.Itoa(cfg.Listen.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer, Handler: h}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ListenAndServe binds the gateway's listen address with SO_REUSEADDR set
// so a restart during a deploy doesn't trip over a socket still draining
// in TIME_WAIT, then serves the engine on it.
func (s *Server) ListenAndServe() error {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
