package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/daylinehq/dayline/backend/internal/handler/chat"
	timelinehandler "github.com/daylinehq/dayline/backend/internal/handler/timeline"
	"github.com/daylinehq/dayline/backend/internal/longpoll"
	middlewarePkg "github.com/daylinehq/dayline/backend/internal/middleware"
	"github.com/daylinehq/dayline/backend/internal/service/ai"
	chatservice "github.com/daylinehq/dayline/backend/internal/service/chat"
	timelineservice "github.com/daylinehq/dayline/backend/internal/service/timeline"
	"github.com/daylinehq/dayline/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. responder may be nil when no
// chat model is configured.
func NewRouter(chatSvc *chatservice.Service, timelineSvc *timelineservice.Service, registry *longpoll.Registry, notifier *longpoll.Notifier, responder ai.Responder, pollTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(chatSvc, registry, notifier, responder, pollTimeout)
	timelineHandler := timelinehandler.New(timelineSvc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/hello", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
		})

		chatHandler.RegisterRoutes(api)
		timelineHandler.RegisterRoutes(api)
	})

	return r
}
