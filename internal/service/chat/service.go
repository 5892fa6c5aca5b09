package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/daylinehq/dayline/backend/internal/model/chat"
	"github.com/daylinehq/dayline/backend/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message cannot be empty or contain only whitespace")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
)

const (
	defaultMaxMessageLength = 4000
	defaultHistoryLimit     = 50
)

// Config tunes message validation and history reads.
type Config struct {
	MaxMessageLength int
	HistoryLimit     int
}

// Service encapsulates conversation state management over the store.
type Service struct {
	store            *store.Store
	maxMessageLength int
	historyLimit     int
}

// NewService wires the chat service to its persistence layer.
func NewService(st *store.Store, cfg Config) *Service {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessageLength
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Service{
		store:            st,
		maxMessageLength: cfg.MaxMessageLength,
		historyLimit:     cfg.HistoryLimit,
	}
}

// CreateSession provisions a new conversation with a fresh identifier.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	return s.store.CreateSession(ctx, uuid.NewString())
}

// SessionExists reports whether the session id is known.
func (s *Service) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return s.store.SessionExists(ctx, sessionID)
}

// ListSessions returns all sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]chat.Session, error) {
	return s.store.ListSessions(ctx)
}

// SaveUserMessage validates, trims and stores a user message, returning the
// new message id and the content as stored.
func (s *Service) SaveUserMessage(ctx context.Context, sessionID, content string) (int64, string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0, "", ErrEmptyMessage
	}
	if len(trimmed) > s.maxMessageLength {
		return 0, "", fmt.Errorf("%w of %d characters (received %d)", ErrMessageTooLong, s.maxMessageLength, len(trimmed))
	}

	id, err := s.saveMessage(ctx, sessionID, chat.RoleUser, trimmed)
	return id, trimmed, err
}

// SaveAssistantMessage stores a generated reply without user-input
// validation.
func (s *Service) SaveAssistantMessage(ctx context.Context, sessionID, content string) (int64, error) {
	return s.saveMessage(ctx, sessionID, chat.RoleAssistant, content)
}

func (s *Service) saveMessage(ctx context.Context, sessionID, role, content string) (int64, error) {
	exists, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrSessionNotFound
	}
	return s.store.InsertMessage(ctx, sessionID, role, content)
}

// History returns up to limit messages in ascending id order. A limit of 0
// falls back to the configured default.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.store.MessageHistory(ctx, sessionID, limit)
}

// MessagesAfter returns the session's messages newer than afterID, ascending.
func (s *Service) MessagesAfter(ctx context.Context, sessionID string, afterID int64) ([]chat.Message, error) {
	return s.store.MessagesAfter(ctx, sessionID, afterID)
}
