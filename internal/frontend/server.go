// Package frontend accepts WebSocket connections, wraps each in a
// session.Session with its own rate limiter, and feeds parsed frames to a
// bounded work queue serviced by a fixed pool of dispatcher workers.
package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jroosing/chaingate/internal/audit"
	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/pool"
	"github.com/jroosing/chaingate/internal/session"
	"github.com/jroosing/chaingate/internal/subscribe"
)

// DefaultMaxConnections is the default accepted-connection cap.
const DefaultMaxConnections = 100

// DefaultWorkerCount is the default number of dispatch workers draining the
// work queue.
const DefaultWorkerCount = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bufferPool recycles the scratch buffers used to encode outbound frames,
// avoiding a fresh allocation per reply on the hot dispatch path.
var bufferPool = pool.New(func() *bytes.Buffer { return new(bytes.Buffer) })

// Server accepts WebSocket upgrades, enforces the connection cap, and runs
// the worker pool that services each session's parsed frames through a
// dispatch.Dispatcher.
type Server struct {
	Dispatcher     *dispatch.Dispatcher
	Registry       *subscribe.Registry
	Logger         *slog.Logger
	Audit          *audit.Log
	MaxConnections int
	RateLimitCap   int
	RateLimitWin   time.Duration
	WorkerCount    int
	Queue          *WorkQueue

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewServer returns a Server with defaults applied where the caller left
// fields unset.
func NewServer(d *dispatch.Dispatcher, registry *subscribe.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Dispatcher:     d,
		Registry:       registry,
		Logger:         logger,
		MaxConnections: DefaultMaxConnections,
		RateLimitCap:   DefaultRateLimitCap,
		RateLimitWin:   DefaultRateLimitWindow,
		WorkerCount:    DefaultWorkerCount,
		Queue:          NewWorkQueue(DefaultQueueSize),
		sessions:       make(map[string]*session.Session),
	}
}

// Sessions returns a snapshot of every currently open session, implementing
// poll.SessionLister.
func (s *Server) Sessions() []*session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// ConnectionCount reports how many sessions are currently open, for /status.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunWorkers launches WorkerCount dispatch workers that drain Queue until
// ctx is cancelled.
func (s *Server) RunWorkers(ctx context.Context) {
	n := s.WorkerCount
	if n <= 0 {
		n = DefaultWorkerCount
	}
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runWorker(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (s *Server) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.Queue.items:
			if item.sess.IsClosed() {
				continue
			}
			frame, after := s.Dispatcher.Handle(ctx, item.sess, item.raw)
			if b := marshalFrame(frame); b != nil {
				item.sess.Send(b)
			}
			if after != nil {
				after()
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and drives its
// full lifecycle: admission, hello frame, read loop, and cleanup. Register
// this as the handler for the gateway's /ws route.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("frontend: websocket upgrade failed", "err", err)
		return
	}

	maxConns := s.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}

	s.mu.Lock()
	if len(s.sessions) >= maxConns {
		s.mu.Unlock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "at capacity, try again later")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = conn.Close()
		if s.Audit != nil {
			_ = s.Audit.Record(audit.KindAdmissionRejected, "connection cap reached")
		}
		return
	}

	id := "sess-" + uuid.New().String()
	limiter := NewRateLimiter(s.RateLimitCap, s.RateLimitWin)
	sess := session.New(id, limiter)
	s.sessions[id] = sess
	s.mu.Unlock()

	requestsPerMinute := ratePerMinute(limiter.cap, limiter.window)
	sess.Send(buildHello(requestsPerMinute))

	go s.writePump(conn, sess)
	s.readPump(conn, sess)

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.Registry.RemoveAll(sess)
	sess.Close()
	_ = conn.Close()
}

// readPump owns the connection's read side: one goroutine per accepted
// connection, exactly as the wire protocol's single-reader-per-connection
// model requires. It blocks until a read fails (the peer disconnects or the
// connection breaks); a frame that is not valid JSON gets an error reply
// and does not end the loop.
func (s *Server) readPump(conn *websocket.Conn, sess *session.Session) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleInbound(sess, dispatch.RawFrame(raw))
	}
}

// handleInbound applies rate limiting and queue admission before a frame
// ever reaches the dispatcher; both rejections reply synchronously and
// never touch the work queue.
func (s *Server) handleInbound(sess *session.Session, raw dispatch.RawFrame) {
	if !sess.RateLimiter.Allow() {
		var resetAt time.Time
		if rl, ok := sess.RateLimiter.(*RateLimiter); ok {
			resetAt = rl.ResetAt()
		}
		sess.Send(marshalFrame(dispatch.RateLimitErrorFrame(resetAt)))
		if s.Audit != nil {
			_ = s.Audit.Record(audit.KindRateLimitRejected, "session "+sess.ID)
		}
		return
	}
	if !s.Queue.TryEnqueue(sess, raw) {
		sess.Send(marshalFrame(dispatch.QueueFullErrorFrame()))
		return
	}
}

// marshalFrame renders frame to its wire bytes using a pooled buffer, the
// same pool-a-scratch-buffer shape the teacher used for its DNS message
// packing, repurposed here for JSON frame encoding on the hot reply path.
func marshalFrame(frame dispatch.Frame) []byte {
	buf := bufferPool.Get()
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	enc := json.NewEncoder(buf)
	if err := enc.Encode(frame); err != nil {
		return nil
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return bytes.TrimRight(out, "\n")
}

// writePump drains a session's outbound channel to the wire. It exits when
// the channel is closed, which happens exactly once, from ServeHTTP's
// cleanup after readPump returns.
func (s *Server) writePump(conn *websocket.Conn, sess *session.Session) {
	for b := range sess.Outbound() {
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func ratePerMinute(requestCap int, window time.Duration) int {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	perSecond := float64(requestCap) / window.Seconds()
	return int(perSecond * 60)
}
