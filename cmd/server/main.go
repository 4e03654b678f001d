package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/mesworks/be-hr-approvals/internal/client"
	"github.com/mesworks/be-hr-approvals/internal/handler"
	"github.com/mesworks/be-hr-approvals/internal/platform/config"
	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
	"github.com/mesworks/be-hr-approvals/internal/platform/middleware"
	"github.com/mesworks/be-hr-approvals/internal/repository"
	"github.com/mesworks/be-hr-approvals/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting HR Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// NATS is optional: without it, notification publishing is a no-op.
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notification events disabled")
	}

	// Repositories
	requestRepo := repository.NewRequestRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// External collaborators
	directory := client.NewDirectoryClient(cfg.DirectoryBaseURL)
	publisher := client.NewNotificationPublisher(natsConn, log.Logger)
	clock := service.SystemClock{}

	// Services
	delegationService := service.NewDelegationService(delegationRepo, settingsRepo, clock, log)
	requestService := service.NewRequestService(
		requestRepo, settingsRepo, auditRepo, directory, delegationService, publisher, clock, log)
	escalationService := service.NewEscalationService(
		requestRepo, settingsRepo, auditRepo, publisher, clock, log)

	// HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, delegationService, escalationService, settingsRepo, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.CreateRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/requests/approve", httpHandler.ApproveRequest)
	mux.HandleFunc("/api/v1/requests/reject", httpHandler.RejectRequest)
	mux.HandleFunc("/api/v1/requests/cancel", httpHandler.CancelRequest)
	mux.HandleFunc("/api/v1/requests/override", httpHandler.OverrideRequest)
	mux.HandleFunc("/api/v1/requests/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/requests/audit", httpHandler.AuditTrail)
	mux.HandleFunc("/api/v1/requests/escalated", httpHandler.EscalatedRequests)

	mux.HandleFunc("/api/v1/delegations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDelegations(w, r)
		case http.MethodPost:
			httpHandler.CreateDelegation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/delegations/deactivate", httpHandler.DeactivateDelegation)

	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.GetSettings(w, r)
		case http.MethodPut:
			httpHandler.UpdateSettings(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
