// Package runner orchestrates chaingate's startup, wiring, and graceful
// shutdown: build every component from config, start the background loops
// and the combined HTTP/WebSocket listener, then wait for a shutdown
// signal or a fatal component error.
package runner

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jroosing/chaingate/internal/api"
	"github.com/jroosing/chaingate/internal/audit"
	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/config"
	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/frontend"
	"github.com/jroosing/chaingate/internal/helpers"
	"github.com/jroosing/chaingate/internal/logging"
	"github.com/jroosing/chaingate/internal/poll"
	"github.com/jroosing/chaingate/internal/subscribe"
	"github.com/jroosing/chaingate/internal/upstream"
)

// Runner orchestrates the gateway's startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run wires every gateway component from cfg and blocks until ctx is
// cancelled (normally via SIGINT/SIGTERM) or a listener reports a fatal
// error.
//
// Startup order: audit log, upstream pool, cache bundle, subscription
// registry, dispatcher, frontend (WS) server, poll driver + health
// probe, HTTP introspection server. Shutdown order is the reverse: stop
// accepting new HTTP/WS work first, then let the background loops drain.
func (r *Runner) Run(cfg *config.Config) error {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	auditLog, err := audit.Open()
	if err != nil {
		return err
	}
	defer auditLog.Close()

	pool, err := buildPool(cfg)
	if err != nil {
		return err
	}

	bundle := cache.NewBundle(cfg.Cache.HeadersMax, cfg.Cache.BlocksMax, cfg.Cache.OpsMax)
	pool.OnFailover = func(oldIndex, newIndex int) {
		bundle.DropAll()
		logger.Warn("runner: upstream failover, cache dropped", "old_index", oldIndex, "new_index", newIndex)
		if err := auditLog.Record(audit.KindFailover, recordDetail(oldIndex, newIndex)); err != nil {
			logger.Warn("runner: failed to record failover audit event", "err", err)
		}
		if err := auditLog.Record(audit.KindCacheDrop, "cache bundle dropped after failover"); err != nil {
			logger.Warn("runner: failed to record cache drop audit event", "err", err)
		}
	}

	caller := upstream.NewCaller(pool, cfg.Upstream.MaxAttempts, parseDurationOr(cfg.Upstream.BaseDelay, upstream.DefaultBaseDelay, time.Millisecond, 30*time.Second))

	headTTL := parseDurationOr(cfg.Cache.HeadTTL, 3*time.Second, 100*time.Millisecond, time.Minute)
	witnessTTL := parseDurationOr(cfg.Cache.WitnessTTL, 60*time.Second, time.Second, 5*time.Minute)
	blockTTL := parseDurationOr(cfg.Cache.BlockTTL, 10*time.Minute, time.Second, 24*time.Hour)

	registry := subscribe.NewRegistry()
	disp := dispatch.New(bundle, caller, pool, registry, logger)
	disp.HeadTTL, disp.WitnessTTL, disp.BlockTTL = headTTL, witnessTTL, blockTTL

	front := frontend.NewServer(disp, registry, logger)
	front.Audit = auditLog
	front.MaxConnections = cfg.Admission.MaxConnections
	front.WorkerCount = cfg.Admission.WorkerCount
	front.Queue = frontend.NewWorkQueue(cfg.Admission.QueueSize)
	front.RateLimitCap = cfg.Admission.RateLimitPerMinute
	front.RateLimitWin = time.Minute

	driver := poll.NewDriver(disp, registry, pool, front, logger)
	driver.Period = parseDurationOr(cfg.Poll.Period, poll.DefaultPeriod, 100*time.Millisecond, time.Minute)

	probe := poll.NewHealthProbe(disp, pool, logger)
	probe.Period = parseDurationOr(cfg.Poll.HealthProbePeriod, poll.DefaultHealthPeriod, time.Second, 5*time.Minute)
	probe.SlowThreshold = parseDurationOr(cfg.Poll.SlowThreshold, poll.DefaultSlowThreshold, time.Millisecond, 30*time.Second)

	apiServer := api.New(cfg, logger, front.ServeHTTP)
	apiServer.Handler.SetPool(pool)
	apiServer.Handler.SetRegistry(registry)
	apiServer.Handler.SetFrontend(front)
	apiServer.Handler.SetCache(bundle)
	apiServer.Handler.SetAudit(auditLog)

	logger.Info("chaingate listening",
		"addr", apiServer.Addr(),
		"endpoints", cfg.Upstream.Endpoints,
		"max_connections", cfg.Admission.MaxConnections,
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); front.RunWorkers(ctx) }()
	go func() { defer wg.Done(); driver.Run(ctx) }()
	go func() { defer wg.Done(); probe.Run(ctx) }()

	errCh := make(chan error, 1)
	go func() { errCh <- apiServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancelRun()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = apiServer.Shutdown(shutdownCtx)

	cancelRun()
	wg.Wait()
	return nil
}

func buildPool(cfg *config.Config) (*upstream.Pool, error) {
	timeout := parseDurationOr(cfg.Upstream.RequestTimeout, 10*time.Second, time.Second, 5*time.Minute)
	endpoints := make([]*upstream.Endpoint, 0, len(cfg.Upstream.Endpoints))
	for _, url := range cfg.Upstream.Endpoints {
		client := upstream.NewHTTPRPCClient(url, timeout)
		endpoints = append(endpoints, upstream.NewEndpoint(url, client))
	}
	recovery := parseDurationOr(cfg.Upstream.RecoveryWindow, upstream.DefaultRecoveryWindow, time.Second, time.Hour)
	pool := upstream.NewPool(endpoints, recovery)
	if len(endpoints) == 0 {
		return nil, upstream.ErrNoEndpoints
	}
	return pool, nil
}

// parseDurationOr parses raw as a duration, falling back to fallback when raw
// is empty or invalid, then clamps the result to [minVal, maxVal] so an
// operator-supplied extreme can't push a background loop or timeout outside
// its sane operating range.
func parseDurationOr(raw string, fallback, minVal, maxVal time.Duration) time.Duration {
	d := fallback
	if raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			d = parsed
		}
	}
	return helpers.ClampDuration(d, minVal, maxVal)
}

func recordDetail(oldIndex, newIndex int) string {
	return "endpoint index " + strconv.Itoa(oldIndex) + " -> " + strconv.Itoa(newIndex)
}

// Configure sets up the process-wide logger from cfg.
func Configure(cfg config.LoggingConfig) *slog.Logger {
	return logging.Configure(logging.Config{
		Level:            cfg.Level,
		Structured:       cfg.Structured,
		StructuredFormat: cfg.StructuredFormat,
		IncludePID:       cfg.IncludePID,
		ExtraFields:      cfg.ExtraFields,
	})
}
