// Package subscribe implements the gateway's feed membership sets and the
// two broadcast paths a change fans out over: subscription updates to feed
// members, and a legacy broadcast to everyone else.
package subscribe

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jroosing/chaingate/internal/session"
)

// feedSet holds the members of one feed behind its own lock, so broadcast
// traffic on one feed never contends with membership changes on another.
type feedSet struct {
	mu      sync.RWMutex
	members map[*session.Session]struct{}
}

// Registry maps each feed in the closed set to its membership set.
type Registry struct {
	feeds map[session.Feed]*feedSet
}

// NewRegistry returns a Registry with an empty set for every known feed.
func NewRegistry() *Registry {
	r := &Registry{feeds: make(map[session.Feed]*feedSet, len(session.AllFeeds()))}
	for _, f := range session.AllFeeds() {
		r.feeds[f] = &feedSet{members: make(map[*session.Session]struct{})}
	}
	return r
}

// Add enrolls sess in feed. Idempotent.
func (r *Registry) Add(feed session.Feed, sess *session.Session) {
	fs := r.feeds[feed]
	if fs == nil {
		return
	}
	fs.mu.Lock()
	fs.members[sess] = struct{}{}
	fs.mu.Unlock()
	sess.MarkSubscribed(feed)
}

// Remove drops sess from feed. Tolerates absence.
func (r *Registry) Remove(feed session.Feed, sess *session.Session) {
	fs := r.feeds[feed]
	if fs == nil {
		return
	}
	fs.mu.Lock()
	delete(fs.members, sess)
	fs.mu.Unlock()
	sess.MarkUnsubscribed(feed)
}

// RemoveAll drops sess from every feed it believes it belongs to - used when
// a session closes.
func (r *Registry) RemoveAll(sess *session.Session) {
	for _, f := range sess.Subscriptions() {
		r.Remove(f, sess)
	}
}

// MemberCount reports how many sessions are subscribed to feed.
func (r *Registry) MemberCount(feed session.Feed) int {
	fs := r.feeds[feed]
	if fs == nil {
		return 0
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.members)
}

// HasSubscribers reports whether feed has at least one member - used by the
// poll driver to skip derived fetches nobody asked for.
func (r *Registry) HasSubscribers(feed session.Feed) bool {
	return r.MemberCount(feed) > 0
}

// subscriptionUpdate is the wire shape of a subscription_update frame.
type subscriptionUpdate struct {
	Type         string          `json:"type"`
	Subscription session.Feed    `json:"subscription"`
	Data         json.RawMessage `json:"data"`
	Timestamp    int64           `json:"timestamp"`
}

// legacyBroadcast is the wire shape of the backward-compatible broadcast
// frame sent to non-subscribers.
type legacyBroadcast struct {
	Type      string          `json:"type"`
	Method    string          `json:"method"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// BroadcastTo writes a subscription_update frame to every live member of
// feed, removing any session whose write fails or is already closed. This
// is the only removal path besides explicit unsubscribe or session close.
func (r *Registry) BroadcastTo(feed session.Feed, payload json.RawMessage) {
	fs := r.feeds[feed]
	if fs == nil {
		return
	}

	frame, err := json.Marshal(subscriptionUpdate{
		Type:         "subscription_update",
		Subscription: feed,
		Data:         payload,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	for sess := range fs.members {
		if sess.IsClosed() || !sess.Send(frame) {
			delete(fs.members, sess)
			sess.MarkUnsubscribed(feed)
		}
	}
}

// BroadcastLegacyToNonMembers sends the legacy dynamic_global_properties_update
// broadcast to every session in allOpen that is NOT a member of feed, so a
// given session receives exactly one frame across both broadcast paths.
func (r *Registry) BroadcastLegacyToNonMembers(feed session.Feed, payload json.RawMessage, allOpen []*session.Session) {
	fs := r.feeds[feed]
	if fs == nil {
		return
	}

	frame, err := json.Marshal(legacyBroadcast{
		Type:      "broadcast",
		Method:    "dynamic_global_properties_update",
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	fs.mu.RLock()
	members := make(map[*session.Session]struct{}, len(fs.members))
	for s := range fs.members {
		members[s] = struct{}{}
	}
	fs.mu.RUnlock()

	for _, sess := range allOpen {
		if _, isMember := members[sess]; isMember {
			continue
		}
		if sess.IsClosed() {
			continue
		}
		sess.Send(frame)
	}
}
