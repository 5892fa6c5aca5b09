package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daylinehq/dayline/backend/internal/model/timeline"
	"github.com/daylinehq/dayline/backend/internal/store"
)

// contextWindow is how many recent snapshots and timeline entries feed the
// assistant's grounding context.
const contextWindow = 5

// SessionContext is the activity evidence handed to the assistant for a
// session: the freshest snapshots and timeline entries, newest first.
type SessionContext struct {
	Snapshots []timeline.Snapshot `json:"snapshots"`
	Timeline  []timeline.Entry    `json:"timeline"`
}

// Empty reports whether there is no recorded activity at all.
func (c SessionContext) Empty() bool {
	return len(c.Snapshots) == 0 && len(c.Timeline) == 0
}

// Service records summarized screenshots and maintains the per-session
// activity timeline. Screenshot capture and vision summarization happen
// upstream; this service only persists and serves their output.
type Service struct {
	store *store.Store
}

// NewService wires the timeline service to its persistence layer.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// RecordSnapshot stores a summarized snapshot and appends a timeline entry
// for it. entryText is the narrated timeline line; when the summarizer did
// not provide one the caption stands in.
func (s *Service) RecordSnapshot(ctx context.Context, snap timeline.Snapshot, entryText string) (timeline.Snapshot, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	id, err := s.store.InsertSnapshot(ctx, snap)
	if err != nil {
		return timeline.Snapshot{}, err
	}
	snap.ID = id

	if entryText == "" {
		entryText = snap.Caption
	}
	if _, err := s.store.InsertTimelineEntry(ctx, timeline.Entry{
		SessionID: snap.SessionID,
		Text:      entryText,
		Caption:   snap.Caption,
		Timestamp: snap.CreatedAt,
	}); err != nil {
		return timeline.Snapshot{}, fmt.Errorf("append timeline entry: %w", err)
	}
	return snap, nil
}

// LastSnapshot returns the session's newest snapshot, or nil when none.
func (s *Service) LastSnapshot(ctx context.Context, sessionID string) (*timeline.Snapshot, error) {
	return s.store.LastSnapshot(ctx, sessionID)
}

// Entries returns the session's full timeline in insertion order.
func (s *Service) Entries(ctx context.Context, sessionID string) ([]timeline.Entry, error) {
	return s.store.TimelineEntries(ctx, sessionID, 0)
}

// Render flattens the session timeline into the "<time>: <text>" block the
// assistant prompt and the timeline endpoint expose. Returns "" when the
// timeline is empty.
func (s *Service) Render(ctx context.Context, sessionID string) (string, error) {
	entries, err := s.store.TimelineEntries(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Timestamp.Local().Format("2006-01-02 15:04:05"), entry.Text))
	}
	return strings.Join(lines, "\n\n"), nil
}

// Context assembles the recent-activity context for a session.
func (s *Service) Context(ctx context.Context, sessionID string) (SessionContext, error) {
	snaps, err := s.store.RecentSnapshots(ctx, sessionID, contextWindow)
	if err != nil {
		return SessionContext{}, err
	}
	entries, err := s.store.RecentTimelineEntries(ctx, sessionID, contextWindow)
	if err != nil {
		return SessionContext{}, err
	}
	return SessionContext{Snapshots: snaps, Timeline: entries}, nil
}
