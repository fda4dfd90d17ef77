package frontend

import (
	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/session"
)

// DefaultQueueSize is the bounded work queue's capacity.
const DefaultQueueSize = 1000

// workItem pairs a raw inbound frame with the session that sent it.
type workItem struct {
	sess *session.Session
	raw  dispatch.RawFrame
}

// WorkQueue is a bounded channel of pending dispatch work, serviced by a
// fixed pool of workers (see Server.runWorker), grounded in the DNS UDP
// server's "N workers, non-blocking receive" design: TryEnqueue never
// blocks the caller, and a full queue is the caller's signal to reject the
// request synchronously instead of waiting for room.
type WorkQueue struct {
	items chan workItem
}

// NewWorkQueue returns a WorkQueue with size defaulted when non-positive.
func NewWorkQueue(size int) *WorkQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &WorkQueue{items: make(chan workItem, size)}
}

// TryEnqueue attempts a non-blocking enqueue, reporting false if the queue
// is currently full.
func (q *WorkQueue) TryEnqueue(sess *session.Session, raw dispatch.RawFrame) bool {
	select {
	case q.items <- workItem{sess: sess, raw: raw}:
		return true
	default:
		return false
	}
}

// Len reports the number of items currently queued, for /status reporting.
func (q *WorkQueue) Len() int {
	return len(q.items)
}
