// Package main is the entry point for the realtime API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/config"
	"github.com/socialink/realtime-platform/internal/handler"
	"github.com/socialink/realtime-platform/internal/middleware"
	natsclient "github.com/socialink/realtime-platform/internal/nats"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/internal/ws"
	"github.com/socialink/realtime-platform/pkg/logger"
	"github.com/socialink/realtime-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting realtime API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "realtime-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS for the feed-event bridge
	nc, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	// Storage collaborator. The in-memory store stands in for the
	// transactional relational store in development.
	mem := store.NewMemory()

	// Initialize services
	conversationSvc := service.NewConversationService(mem, mem, mem, log)
	notificationSvc := service.NewNotificationService(mem, log)

	// Initialize gateways
	chatGateway := ws.NewChatGateway(ws.ChatGatewayConfig{
		JWTSecret:  cfg.JWTSecret,
		SendBuffer: cfg.SendBuffer,
		TypingIdle: cfg.TypingIdle,
	}, conversationSvc, log)
	notificationGateway := ws.NewNotificationGateway(ws.NotificationGatewayConfig{
		JWTSecret:     cfg.JWTSecret,
		SendBuffer:    cfg.SendBuffer,
		RecentLimit:   cfg.NotifyRecentLimit,
		CatchupWindow: cfg.NotifyCatchupWindow,
		CatchupMax:    cfg.NotifyCatchupMax,
		CatchupDelay:  cfg.NotifyCatchupDelay,
	}, notificationSvc, log)

	// Bridge feed-side actions into live notifications
	feedBridge := natsclient.NewFeedBridge(nc, notificationSvc, notificationGateway, log)
	if err := feedBridge.Start(ctx); err != nil {
		log.Error("failed to start feed bridge", zap.Error(err))
		os.Exit(1)
	}
	defer feedBridge.Stop()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	chatHandler := handler.NewChatHandler(conversationSvc, chatGateway, log)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Websocket namespaces; the gateways verify the credential themselves.
	r.Get("/ws/chat", chatGateway.HandleConnection)
	r.Get("/ws/notifications", notificationGateway.HandleConnection)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/conversations", chatHandler.CreateConversation)
			r.Get("/conversations", chatHandler.ListConversations)
			r.Get("/conversations/{id}", chatHandler.GetConversation)
			r.Get("/conversations/{id}/messages", chatHandler.GetMessages)
			r.Post("/conversations/{id}/read-all", chatHandler.MarkAllRead)
			r.Post("/messages", chatHandler.SendMessage)
			r.Post("/messages/{id}/read", chatHandler.MarkMessageRead)
			r.Delete("/messages/{id}", chatHandler.DeleteMessage)
			r.Get("/direct/{userId}", chatHandler.GetOrCreateDirectConversation)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Post("/{id}/read", notificationHandler.MarkRead)
			r.Post("/read-all", notificationHandler.MarkAllRead)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
