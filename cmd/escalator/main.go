// Command escalator runs one escalation batch and exits. It is meant to be
// invoked by an external scheduler (cron, Kubernetes CronJob); repeated runs
// are safe because escalation is idempotent per request.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mesworks/be-hr-approvals/internal/client"
	"github.com/mesworks/be-hr-approvals/internal/platform/config"
	"github.com/mesworks/be-hr-approvals/internal/platform/database"
	"github.com/mesworks/be-hr-approvals/internal/platform/logger"
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
		ServiceName: cfg.Service.Name + "-escalator",
		Version:     cfg.Service.Version,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name+"-escalator"))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; escalation notifications disabled")
		} else {
			defer natsConn.Close()
		}
	}

	requestRepo := repository.NewRequestRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	publisher := client.NewNotificationPublisher(natsConn, log.Logger)

	escalations := service.NewEscalationService(
		requestRepo, settingsRepo, auditRepo, publisher, service.SystemClock{}, log)

	result, err := escalations.ProcessEscalations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Escalation batch failed")
	}

	for _, msg := range result.Errors {
		log.Error().Str("error", msg).Msg("Escalation failed for request")
	}

	log.Info().
		Int("processed", result.Processed).
		Int("escalated", result.Escalated).
		Int("errors", len(result.Errors)).
		Msg("Escalation run finished")

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
