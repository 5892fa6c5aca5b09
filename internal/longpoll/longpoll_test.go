package longpoll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
)

// fakeSource is an in-memory MessageSource. err, when set, is returned from
// every read; reads counts store hits so tests can assert the notifier reads
// once per broadcast.
type fakeSource struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
	reads    int
	err      error
}

func newFakeSource() *fakeSource {
	return &fakeSource{messages: make(map[string][]chat.Message)}
}

func (s *fakeSource) add(sessionID string, id int64, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], chat.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      chat.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *fakeSource) MessagesAfter(_ context.Context, sessionID string, afterID int64) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	var out []chat.Message
	for _, msg := range s.messages[sessionID] {
		if msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestRegisterDrain(t *testing.T) {
	reg := NewRegistry()

	w1 := reg.Register("s1", 0)
	w2 := reg.Register("s1", 5)
	reg.Register("s2", 0)

	if got := reg.Pending("s1"); got != 2 {
		t.Fatalf("expected 2 pending waiters, got %d", got)
	}

	drained := reg.Drain("s1")
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained waiters, got %d", len(drained))
	}
	if drained[0] != w1 || drained[1] != w2 {
		t.Fatal("drain did not preserve registration order")
	}
	if got := reg.Pending("s1"); got != 0 {
		t.Fatalf("expected 0 pending after drain, got %d", got)
	}
	if drained := reg.Drain("s1"); len(drained) != 0 {
		t.Fatalf("second drain should be empty, got %d", len(drained))
	}
	if got := reg.Pending("s2"); got != 1 {
		t.Fatalf("drain must not touch other sessions, got %d", got)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	reg := NewRegistry()
	w := reg.Register("s1", 0)

	if !reg.Remove("s1", w) {
		t.Fatal("first remove should report removal")
	}
	if reg.Remove("s1", w) {
		t.Fatal("second remove should be a no-op")
	}
	if reg.Remove("s1", w) {
		t.Fatal("third remove should be a no-op")
	}
	if got := reg.Pending("s1"); got != 0 {
		t.Fatalf("expected empty registry, got %d", got)
	}
}

func TestRemoveByIdentity(t *testing.T) {
	reg := NewRegistry()
	// Same session, same cutoff: only identity tells them apart.
	w1 := reg.Register("s1", 3)
	w2 := reg.Register("s1", 3)

	if !reg.Remove("s1", w1) {
		t.Fatal("expected w1 removal")
	}
	drained := reg.Drain("s1")
	if len(drained) != 1 || drained[0] != w2 {
		t.Fatal("removing w1 must leave exactly w2 registered")
	}
}

func TestRemoveRacesDrain(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 200; i++ {
		w := reg.Register("s1", 0)

		var wg sync.WaitGroup
		var removed bool
		var drained []*Waiter
		wg.Add(2)
		go func() {
			defer wg.Done()
			removed = reg.Remove("s1", w)
		}()
		go func() {
			defer wg.Done()
			drained = reg.Drain("s1")
		}()
		wg.Wait()

		// Exactly one side wins ownership of the waiter.
		if removed && len(drained) != 0 {
			t.Fatal("waiter owned by both remove and drain")
		}
		if !removed && len(drained) != 1 {
			t.Fatal("waiter owned by neither remove nor drain")
		}
		if got := reg.Pending("s1"); got != 0 {
			t.Fatalf("waiter leaked: %d pending", got)
		}
	}
}

func TestNotifyFiltersPerWaiter(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.add("s1", 1, "first")
	source.add("s1", 2, "second")
	source.add("s1", 3, "third")

	wAll := reg.Register("s1", 0)
	wTail := reg.Register("s1", 2)

	NewNotifier(reg, source).Notify(context.Background(), "s1")

	gotAll := receiveOrFail(t, wAll)
	if len(gotAll) != 3 || gotAll[0].ID != 1 || gotAll[2].ID != 3 {
		t.Fatalf("cutoff 0 waiter should receive ids 1..3, got %+v", gotAll)
	}
	gotTail := receiveOrFail(t, wTail)
	if len(gotTail) != 1 || gotTail[0].ID != 3 {
		t.Fatalf("cutoff 2 waiter should receive only id 3, got %+v", gotTail)
	}
	if source.readCount() != 1 {
		t.Fatalf("notify should read the store once, read %d times", source.readCount())
	}
}

func TestNotifyWithoutWaitersSkipsStore(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.add("s1", 1, "first")

	NewNotifier(reg, source).Notify(context.Background(), "s1")

	if source.readCount() != 0 {
		t.Fatalf("notify with no waiters must not read the store, read %d times", source.readCount())
	}
}

func TestNotifyDropsSatisfiedWaiter(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.add("s1", 1, "first")

	// Cutoff already past everything in the store.
	w := reg.Register("s1", 9)

	NewNotifier(reg, source).Notify(context.Background(), "s1")

	select {
	case got := <-w.Done():
		t.Fatalf("satisfied waiter must not be resolved, got %+v", got)
	default:
	}
	if got := reg.Pending("s1"); got != 0 {
		t.Fatalf("dropped waiter still registered: %d pending", got)
	}
}

func TestNotifySourceError(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.err = errors.New("disk gone")

	w := reg.Register("s1", 0)

	NewNotifier(reg, source).Notify(context.Background(), "s1")

	select {
	case got := <-w.Done():
		t.Fatalf("waiter must not resolve on store error, got %+v", got)
	default:
	}
	if got := reg.Pending("s1"); got != 0 {
		t.Fatalf("errored notify must still drain, %d pending", got)
	}
}

func TestNotifyResolvesAtMostOnce(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.add("s1", 1, "first")

	w := reg.Register("s1", 0)
	notifier := NewNotifier(reg, source)

	// Back-to-back sends before the poller runs: the second broadcast finds
	// no waiters and must not deliver again.
	notifier.Notify(context.Background(), "s1")
	source.add("s1", 2, "second")
	notifier.Notify(context.Background(), "s1")

	got := receiveOrFail(t, w)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected single delivery of id 1, got %+v", got)
	}
	select {
	case extra := <-w.Done():
		t.Fatalf("waiter resolved twice, second delivery %+v", extra)
	default:
	}
}

func TestConcurrentNotifyAndTimeoutRemoval(t *testing.T) {
	reg := NewRegistry()
	source := newFakeSource()
	source.add("s1", 1, "first")
	notifier := NewNotifier(reg, source)

	for i := 0; i < 100; i++ {
		w := reg.Register("s1", 0)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			notifier.Notify(context.Background(), "s1")
		}()
		go func() {
			defer wg.Done()
			// Timeout path: remove, then treat the waiter as abandoned.
			reg.Remove("s1", w)
		}()
		wg.Wait()

		deliveries := 0
		for {
			select {
			case <-w.Done():
				deliveries++
				continue
			default:
			}
			break
		}
		if deliveries > 1 {
			t.Fatalf("waiter delivered %d times", deliveries)
		}
		if got := reg.Pending("s1"); got != 0 {
			t.Fatalf("waiter leaked: %d pending", got)
		}
	}
}

func receiveOrFail(t *testing.T, w *Waiter) []chat.Message {
	t.Helper()
	select {
	case got := <-w.Done():
		return got
	case <-time.After(time.Second):
		t.Fatal("waiter was not resolved")
		return nil
	}
}
