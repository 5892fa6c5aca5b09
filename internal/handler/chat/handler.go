package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daylinehq/dayline/backend/internal/longpoll"
	chatmodel "github.com/daylinehq/dayline/backend/internal/model/chat"
	"github.com/daylinehq/dayline/backend/internal/service/ai"
	chatservice "github.com/daylinehq/dayline/backend/internal/service/chat"
	"github.com/daylinehq/dayline/backend/pkg/utils"
)

// fallbackReply keeps the conversation loop alive when no chat model is
// configured.
const fallbackReply = "The assistant is not configured on this server, so I can't answer right now. Your message has been saved."

// Handler exposes the chat HTTP surface: session management, message send
// and the long-poll delivery endpoint.
type Handler struct {
	chatSvc     *chatservice.Service
	registry    *longpoll.Registry
	notifier    *longpoll.Notifier
	responder   ai.Responder
	pollTimeout time.Duration
}

// New creates the chat handler. responder may be nil when no model is
// configured; the send path then answers with a canned reply.
func New(chatSvc *chatservice.Service, registry *longpoll.Registry, notifier *longpoll.Notifier, responder ai.Responder, pollTimeout time.Duration) *Handler {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Handler{
		chatSvc:     chatSvc,
		registry:    registry,
		notifier:    notifier,
		responder:   responder,
		pollTimeout: pollTimeout,
	}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/session", h.handleCreateSession)
	r.Get("/chat/sessions", h.handleListSessions)
	r.Get("/chat/session/{sessionID}/messages", h.handleHistory)
	r.Post("/chat/session/{sessionID}/message", h.handleSendMessage)
	r.Get("/chat/session/{sessionID}/poll", h.handlePoll)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		log.Printf("[chat] create session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": session.ID,
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatSvc.ListSessions(r.Context())
	if err != nil {
		log.Printf("[chat] list sessions failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": sessions,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	exists, err := h.chatSvc.SessionExists(r.Context(), sessionID)
	if err != nil {
		log.Printf("[chat] history lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if !exists {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.chatSvc.History(r.Context(), sessionID, limit)
	if err != nil {
		log.Printf("[chat] history read failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	respondMessages(w, messages)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Message is required and must be a string")
		return
	}

	userMessageID, stored, err := h.chatSvc.SaveUserMessage(r.Context(), sessionID, payload.Message)
	if err != nil {
		respondSaveError(w, err)
		return
	}

	// The user message is durable: wake pollers now so a generation failure
	// below cannot hold it back.
	h.notifier.Notify(r.Context(), sessionID)

	reply, err := h.generateReply(r.Context(), sessionID, userMessageID, stored)
	if err != nil {
		log.Printf("[chat] reply generation failed for session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	assistantMessageID, err := h.chatSvc.SaveAssistantMessage(r.Context(), sessionID, reply)
	if err != nil {
		log.Printf("[chat] saving reply failed for session=%s: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}
	h.notifier.Notify(r.Context(), sessionID)

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":              true,
		"response":             reply,
		"user_message_id":      userMessageID,
		"assistant_message_id": assistantMessageID,
	})
}

func (h *Handler) generateReply(ctx context.Context, sessionID string, userMessageID int64, userMessage string) (string, error) {
	if h.responder == nil {
		return fallbackReply, nil
	}

	// History up to (and excluding) the message being answered.
	history, err := h.chatSvc.MessagesAfter(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	trimmed := history[:0]
	for _, msg := range history {
		if msg.ID < userMessageID {
			trimmed = append(trimmed, msg)
		}
	}

	return h.responder.GenerateReply(ctx, sessionID, trimmed, userMessage)
}

// handlePoll implements the long-poll delivery endpoint: answer immediately
// when newer messages already exist, otherwise wait for a notification until
// the poll window closes.
func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	lastMessageID, _ := strconv.ParseInt(r.URL.Query().Get("lastMessageId"), 10, 64)

	exists, err := h.chatSvc.SessionExists(r.Context(), sessionID)
	if err != nil {
		log.Printf("[poll] session lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Polling failed")
		return
	}
	if !exists {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}

	// Immediate check first: a message stored between the client's previous
	// poll and this one must never leave the request waiting.
	messages, err := h.chatSvc.MessagesAfter(r.Context(), sessionID, lastMessageID)
	if err != nil {
		log.Printf("[poll] message read failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Polling failed")
		return
	}
	if len(messages) > 0 {
		respondMessages(w, messages)
		return
	}

	waiter := h.registry.Register(sessionID, lastMessageID)
	// Covers every exit below; a no-op when the notifier already drained the
	// waiter.
	defer h.registry.Remove(sessionID, waiter)

	timer := time.NewTimer(h.pollTimeout)
	defer timer.Stop()

	select {
	case delivered := <-waiter.Done():
		respondMessages(w, delivered)
	case <-timer.C:
		// Empty list is the documented no-news signal, not an error.
		respondMessages(w, nil)
	case <-r.Context().Done():
		// Client went away; nothing to write.
	}
}

func respondMessages(w http.ResponseWriter, messages []chatmodel.Message) {
	if messages == nil {
		messages = []chatmodel.Message{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
	})
}

func respondSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrEmptyMessage), errors.Is(err, chatservice.ErrMessageTooLong):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	default:
		log.Printf("[chat] saving message failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process message")
	}
}
