// Package session models one accepted client connection: its outbound
// write channel, rate-limit state, and subscription membership. A Session
// is created on accept and destroyed on close or protocol violation;
// destruction must remove it from every subscription set and discard any
// queued work that targets it.
package session

import (
	"sync"
)

// Limiter decides whether a session may issue another request right now.
// Implementations (see internal/frontend.RateLimiter) own their own window
// bookkeeping; Session only asks the yes/no question.
type Limiter interface {
	Allow() bool
}

// DefaultOutboundBuffer is the size of a session's outbound channel.
const DefaultOutboundBuffer = 32

// Session is one accepted connection.
type Session struct {
	ID string

	RateLimiter Limiter

	mu            sync.Mutex
	closed        bool
	outbound      chan []byte
	subscriptions map[Feed]struct{}
}

// New returns a Session ready to be driven by a front-end connection loop.
func New(id string, limiter Limiter) *Session {
	return &Session{
		ID:            id,
		RateLimiter:   limiter,
		outbound:      make(chan []byte, DefaultOutboundBuffer),
		subscriptions: make(map[Feed]struct{}),
	}
}

// Outbound returns the channel the connection loop should drain and write
// to the wire.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Send queues frame for delivery. It never blocks: if the session is closed
// or its outbound buffer is full, the frame is dropped and ok is false -
// matching the spec's "any reply whose session is closed when it becomes
// available is dropped" rule.
func (s *Session) Send(frame []byte) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

// Close marks the session closed and closes its outbound channel. It is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MarkSubscribed records feed membership for cleanup purposes. The
// subscribe.Registry is the authority on actual membership; this set only
// lets Registry.RemoveAll know which feeds to visit without scanning all of
// them.
func (s *Session) MarkSubscribed(feed Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[feed] = struct{}{}
}

// MarkUnsubscribed removes feed from the session's membership record.
func (s *Session) MarkUnsubscribed(feed Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, feed)
}

// Subscriptions returns a snapshot of the feeds this session believes it is
// a member of.
func (s *Session) Subscriptions() []Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Feed, 0, len(s.subscriptions))
	for f := range s.subscriptions {
		out = append(out, f)
	}
	return out
}
