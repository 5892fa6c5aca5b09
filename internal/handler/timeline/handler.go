package timeline

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	timelinemodel "github.com/daylinehq/dayline/backend/internal/model/timeline"
	timelineservice "github.com/daylinehq/dayline/backend/internal/service/timeline"
	"github.com/daylinehq/dayline/backend/pkg/utils"
)

// Handler serves the activity-monitoring surface: snapshot ingestion and
// timeline/context reads. The capture side lives outside this server and
// posts already-summarized snapshots.
type Handler struct {
	timelineSvc *timelineservice.Service
}

// New creates the timeline handler.
func New(timelineSvc *timelineservice.Service) *Handler {
	return &Handler{timelineSvc: timelineSvc}
}

// RegisterRoutes mounts the monitoring routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/monitor/snapshot", h.handleRecordSnapshot)
	r.Get("/monitor/timeline/{sessionID}", h.handleTimeline)
	r.Get("/context/{sessionID}", h.handleContext)
}

func (h *Handler) handleRecordSnapshot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID       string   `json:"sessionId"`
		ScreenshotPath  string   `json:"screenshotPath"`
		Caption         string   `json:"caption"`
		FullDescription string   `json:"fullDescription"`
		Changes         []string `json:"changes"`
		Facts           []string `json:"facts"`
		TimelineText    string   `json:"timelineText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if payload.Caption == "" {
		utils.RespondError(w, http.StatusBadRequest, "caption is required")
		return
	}

	snap, err := h.timelineSvc.RecordSnapshot(r.Context(), timelinemodel.Snapshot{
		SessionID:       payload.SessionID,
		ScreenshotPath:  payload.ScreenshotPath,
		Caption:         payload.Caption,
		FullDescription: payload.FullDescription,
		Changes:         payload.Changes,
		Facts:           payload.Facts,
		CreatedAt:       time.Now().UTC(),
	}, payload.TimelineText)
	if err != nil {
		log.Printf("[monitor] recording snapshot failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to record snapshot")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"snapshot":        snap,
		"timelineUpdated": true,
	})
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	rendered, err := h.timelineSvc.Render(r.Context(), sessionID)
	if err != nil {
		log.Printf("[monitor] rendering timeline failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch timeline")
		return
	}
	entries, err := h.timelineSvc.Entries(r.Context(), sessionID)
	if err != nil {
		log.Printf("[monitor] reading timeline failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch timeline")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"timeline": rendered,
		"entries":  entries,
	})
}

func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sessionCtx, err := h.timelineSvc.Context(r.Context(), sessionID)
	if err != nil {
		log.Printf("[monitor] reading context failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch session context")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"context": sessionCtx,
	})
}
