package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolhub/internal/database"
	"github.com/hugh/schoolhub/internal/mail"
	"github.com/hugh/schoolhub/internal/tasks"
	"github.com/hugh/schoolhub/pkg/config"
	"github.com/hugh/schoolhub/pkg/queue"
	"github.com/hugh/schoolhub/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting SchoolHub worker")

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var mailer mail.Sender = mail.LogSender{Logger: logger}
	if cfg.Email.Configured() {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	} else {
		logger.Warn("no SMTP server configured, emails will only be logged")
	}

	// Create task handler
	handler := tasks.NewHandler(db, logger, mailer)

	// Register handlers
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	// Periodic tasks
	scheduler := queue.NewScheduler(&cfg.Redis)
	nextPurge, err := tasks.RegisterSchedules(scheduler, cfg.Worker.PurgeSchedule, time.Now())
	if err != nil {
		logger.Error("failed to register schedules", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Create Asynq server
	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency)
	if err := srv.Start(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...",
		"purge_schedule", cfg.Worker.PurgeSchedule,
		"next_purge", nextPurge.Format(time.RFC3339))

	// Handle shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
