package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
	"github.com/daylinehq/dayline/backend/internal/model/timeline"
	"github.com/daylinehq/dayline/backend/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertMessageMonotonicIDs(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	if _, err := st.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	var prev int64
	for i, content := range []string{"a", "b", "c"} {
		id, err := st.InsertMessage(ctx, "s1", chat.RoleUser, content)
		if err != nil {
			t.Fatalf("InsertMessage %d err: %v", i, err)
		}
		if id <= prev {
			t.Fatalf("ids must increase: got %d after %d", id, prev)
		}
		prev = id
	}
}

func TestMessagesAfterFilters(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	if _, err := st.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := st.CreateSession(ctx, "s2"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	first, err := st.InsertMessage(ctx, "s1", chat.RoleUser, "hello")
	if err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}
	if _, err := st.InsertMessage(ctx, "s2", chat.RoleUser, "other session"); err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}
	second, err := st.InsertMessage(ctx, "s1", chat.RoleAssistant, "hi")
	if err != nil {
		t.Fatalf("InsertMessage err: %v", err)
	}

	got, err := st.MessagesAfter(ctx, "s1", first)
	if err != nil {
		t.Fatalf("MessagesAfter err: %v", err)
	}
	if len(got) != 1 || got[0].ID != second || got[0].Role != chat.RoleAssistant {
		t.Fatalf("expected only the reply, got %+v", got)
	}

	all, err := st.MessagesAfter(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("MessagesAfter err: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 messages for s1, got %d", len(all))
	}
	for _, msg := range all {
		if msg.SessionID != "s1" {
			t.Fatalf("message leaked across sessions: %+v", msg)
		}
		if msg.CreatedAt.IsZero() {
			t.Fatalf("timestamp not round-tripped: %+v", msg)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if created.ID != "s1" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected session: %+v", created)
	}

	exists, err := st.SessionExists(ctx, "s1")
	if err != nil || !exists {
		t.Fatalf("expected session to exist, got %v %v", exists, err)
	}
	exists, err = st.SessionExists(ctx, "nope")
	if err != nil || exists {
		t.Fatalf("expected session to be missing, got %v %v", exists, err)
	}

	if _, err := st.CreateSession(ctx, "s1"); err == nil {
		t.Fatal("duplicate session id must be rejected")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	last, err := st.LastSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("LastSnapshot err: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no snapshot yet, got %+v", last)
	}

	if _, err := st.InsertSnapshot(ctx, timeline.Snapshot{
		SessionID:       "s1",
		ScreenshotPath:  "shot-1.png",
		Caption:         "editing code",
		FullDescription: "an editor with a Go file open",
		Changes:         []string{"switched from browser"},
		Facts:           []string{"file store.go"},
	}); err != nil {
		t.Fatalf("InsertSnapshot err: %v", err)
	}
	if _, err := st.InsertSnapshot(ctx, timeline.Snapshot{
		SessionID:      "s1",
		ScreenshotPath: "shot-2.png",
		Caption:        "running tests",
	}); err != nil {
		t.Fatalf("InsertSnapshot err: %v", err)
	}

	last, err = st.LastSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("LastSnapshot err: %v", err)
	}
	if last == nil || last.Caption != "running tests" {
		t.Fatalf("expected newest snapshot, got %+v", last)
	}
	if last.Changes == nil || last.Facts == nil {
		t.Fatalf("nil change/fact slices should round-trip as empty, got %+v", last)
	}

	recent, err := st.RecentSnapshots(ctx, "s1", 5)
	if err != nil {
		t.Fatalf("RecentSnapshots err: %v", err)
	}
	if len(recent) != 2 || recent[0].Caption != "running tests" {
		t.Fatalf("expected newest-first snapshots, got %+v", recent)
	}
	if len(recent[1].Changes) != 1 || recent[1].Changes[0] != "switched from browser" {
		t.Fatalf("changes not round-tripped: %+v", recent[1])
	}
}

func TestTimelineEntries(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	for i, text := range []string{"started the day in the editor", "moved to a code review"} {
		if _, err := st.InsertTimelineEntry(ctx, timeline.Entry{
			SessionID: "s1",
			Text:      text,
			Caption:   "caption",
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("InsertTimelineEntry err: %v", err)
		}
	}

	entries, err := st.TimelineEntries(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("TimelineEntries err: %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "started the day in the editor" {
		t.Fatalf("expected insertion order, got %+v", entries)
	}
	if !entries[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp not round-tripped: got %v want %v", entries[0].Timestamp, ts)
	}

	recent, err := st.RecentTimelineEntries(ctx, "s1", 1)
	if err != nil {
		t.Fatalf("RecentTimelineEntries err: %v", err)
	}
	if len(recent) != 1 || recent[0].Text != "moved to a code review" {
		t.Fatalf("expected newest entry, got %+v", recent)
	}
}
