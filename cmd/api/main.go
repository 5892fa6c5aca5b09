package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/daylinehq/dayline/backend/internal/config"
	"github.com/daylinehq/dayline/backend/internal/handler"
	"github.com/daylinehq/dayline/backend/internal/longpoll"
	"github.com/daylinehq/dayline/backend/internal/service/ai"
	chatservice "github.com/daylinehq/dayline/backend/internal/service/chat"
	timelineservice "github.com/daylinehq/dayline/backend/internal/service/timeline"
	"github.com/daylinehq/dayline/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open database at %s: %v", cfg.Store.Path, err)
	}
	defer st.Close()
	log.Printf("database ready at %s", cfg.Store.Path)

	chatSvc := chatservice.NewService(st, chatservice.Config{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
	})
	timelineSvc := timelineservice.NewService(st)

	registry := longpoll.NewRegistry()
	notifier := longpoll.NewNotifier(registry, st)

	var responder ai.Responder
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, timelineSvc, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - check the ARK_* environment variables")
		} else {
			responder = aiSvc
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("chat model credentials not configured, skipping AI initialization")
	}

	router := handler.NewRouter(chatSvc, timelineSvc, registry, notifier, responder, cfg.Chat.PollTimeout)

	startServer(ctx, cfg.Server, cfg.Chat.PollTimeout, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, pollTimeout time.Duration, router http.Handler) {
	idleTimeout := 120 * time.Second
	if idleTimeout < 2*pollTimeout {
		// Poll requests hold their connections open for the full window.
		idleTimeout = 2 * pollTimeout
	}

	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       idleTimeout,
	}

	log.Printf("Dayline backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
