// Package longpoll coordinates suspended poll requests with the send path.
// A poll request that finds no new messages registers a Waiter; storing a
// message notifies the session's waiters with exactly the messages newer
// than each waiter's cutoff.
package longpoll

import (
	"sync"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
)

// Waiter represents one suspended poll request. It is resolved at most once,
// by whichever of notification, timeout or client disconnect wins; the
// channel is buffered so the notifier never blocks on a caller that already
// gave up.
type Waiter struct {
	sessionID  string
	lastSeenID int64
	ch         chan []chat.Message
}

// Done exposes the single-shot resolution channel.
func (w *Waiter) Done() <-chan []chat.Message {
	return w.ch
}

// LastSeenID is the message id cutoff the poller already has.
func (w *Waiter) LastSeenID() int64 {
	return w.lastSeenID
}

// deliver hands messages to the waiter. Ownership discipline (a waiter is
// delivered to only after being removed from the registry, and removal
// happens exactly once) makes the send race-free; the default arm keeps a
// misbehaving double delivery from blocking instead of corrupting state.
func (w *Waiter) deliver(messages []chat.Message) {
	select {
	case w.ch <- messages:
	default:
	}
}

// Registry is the process-wide table of outstanding waiters per session.
// All mutation goes through one mutex; waiter lists are short-lived and
// contention is negligible.
type Registry struct {
	mu      sync.Mutex
	waiters map[string][]*Waiter
}

// NewRegistry returns an empty registry. One instance lives for the server's
// lifetime; tests construct their own.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[string][]*Waiter)}
}

// Register appends a new waiter for the session and returns it. The waiter
// itself is the handle for later removal; identity comparison means two
// waiters registered in the same instant never collide. Never blocks.
func (r *Registry) Register(sessionID string, lastSeenID int64) *Waiter {
	w := &Waiter{
		sessionID:  sessionID,
		lastSeenID: lastSeenID,
		ch:         make(chan []chat.Message, 1),
	}

	r.mu.Lock()
	r.waiters[sessionID] = append(r.waiters[sessionID], w)
	r.mu.Unlock()
	return w
}

// Remove unregisters the waiter if it is still present and reports whether it
// was. Idempotent: timeout, disconnect and a concurrent Drain can all race to
// remove the same waiter, and every loser is a no-op.
func (r *Registry) Remove(sessionID string, w *Waiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.waiters[sessionID]
	if !ok {
		return false
	}
	for i, candidate := range list {
		if candidate == w {
			r.waiters[sessionID] = append(list[:i], list[i+1:]...)
			if len(r.waiters[sessionID]) == 0 {
				delete(r.waiters, sessionID)
			}
			return true
		}
	}
	return false
}

// Drain atomically removes and returns all waiters for the session. The
// caller gains exclusive resolution rights over the returned waiters, so
// each is resolved at most once even when two messages are stored
// back-to-back.
func (r *Registry) Drain(sessionID string) []*Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.waiters[sessionID]
	delete(r.waiters, sessionID)
	return list
}

// Pending reports how many waiters are outstanding for the session.
func (r *Registry) Pending(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[sessionID])
}
