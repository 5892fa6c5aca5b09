package longpoll

import (
	"context"
	"log"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
)

// MessageSource is the slice of the message store the notifier needs: the
// session's messages with id greater than afterID, ascending.
type MessageSource interface {
	MessagesAfter(ctx context.Context, sessionID string, afterID int64) ([]chat.Message, error)
}

// Notifier wakes a session's waiters after a message has been durably
// stored.
type Notifier struct {
	registry *Registry
	source   MessageSource
}

// NewNotifier binds a registry to a message source.
func NewNotifier(registry *Registry, source MessageSource) *Notifier {
	return &Notifier{registry: registry, source: source}
}

// Notify resolves every waiter for the session that has messages newer than
// its cutoff. The session history is read once and shared across waiters.
// Waiters whose cutoff already covers everything are dropped without
// resolution; they received their messages through the immediate-check path
// of a poll, so dropping only costs them a timeout. That case is logged
// because it should be rare.
func (n *Notifier) Notify(ctx context.Context, sessionID string) {
	waiters := n.registry.Drain(sessionID)
	if len(waiters) == 0 {
		return
	}

	messages, err := n.source.MessagesAfter(ctx, sessionID, 0)
	if err != nil {
		// Drained waiters fall through to their timeouts and answer with an
		// empty list; the next poll re-reads the store.
		log.Printf("[poll] notify for session=%s failed to load messages: %v", sessionID, err)
		return
	}

	for _, w := range waiters {
		fresh := messagesAfter(messages, w.lastSeenID)
		if len(fresh) == 0 {
			log.Printf("[poll] dropping already-satisfied waiter for session=%s cutoff=%d", sessionID, w.lastSeenID)
			continue
		}
		w.deliver(fresh)
	}
}

func messagesAfter(messages []chat.Message, afterID int64) []chat.Message {
	fresh := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.ID > afterID {
			fresh = append(fresh, msg)
		}
	}
	return fresh
}
