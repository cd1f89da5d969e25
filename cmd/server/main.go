package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolhub/internal/api"
	"github.com/hugh/schoolhub/internal/api/handlers"
	"github.com/hugh/schoolhub/internal/api/middleware"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database"
	"github.com/hugh/schoolhub/internal/mail"
	"github.com/hugh/schoolhub/internal/tasks"
	"github.com/hugh/schoolhub/pkg/config"
	"github.com/hugh/schoolhub/pkg/crypto"
	"github.com/hugh/schoolhub/pkg/queue"
	"github.com/hugh/schoolhub/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	logger.Info("starting SchoolHub server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		if err := database.Seed(context.Background(), db); err != nil {
			logger.Error("failed to seed reference data", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Emails go through the worker when Redis is up, otherwise they are
	// delivered in-process
	var (
		asynqClient *asynq.Client
		inspector   *asynq.Inspector
		mailer      mail.Sender
	)
	switch {
	case redisClient != nil:
		asynqClient = queue.NewClient(&cfg.Redis)
		inspector = queue.NewInspector(&cfg.Redis)
		mailer = tasks.NewEmailQueue(asynqClient)
	case cfg.Email.Configured():
		logger.Warn("Redis unavailable, sending email synchronously")
		mailer = mail.NewSMTPSender(smtpConfig(cfg))
	default:
		logger.Warn("no Redis and no SMTP server configured, emails will only be logged")
		mailer = mail.LogSender{Logger: logger}
	}

	// Sealing identity for the pending account carried by signup tokens
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		os.Exit(1)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - pending signups will not survive a restart")
	}
	logger.Info("sealing identity loaded", "recipient", encryptor.PublicKey())

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(), auth.WithSealer(encryptor))
	authService := auth.NewService(db, jwtService, mailer, auth.Config{
		BaseURL:   cfg.Server.BaseURL,
		ResetURL:  cfg.Email.ResetURL,
		VerifyTTL: cfg.JWT.EmailVerifyTTL,
		ResetTTL:  cfg.JWT.PasswordResetTTL,
	})

	var queueInspector handlers.QueueInspector
	if inspector != nil {
		queueInspector = inspector
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:                db,
		Redis:             redisClient,
		Inspector:         queueInspector,
		Logger:            logger,
		Metrics:           middleware.NewMetrics(),
		JWTService:        jwtService,
		AuthService:       authService,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitReqs:     cfg.RateLimit.Requests,
		RateLimitSecs:     cfg.RateLimit.WindowSeconds,
		AuthRateLimitReqs: cfg.RateLimit.AuthRequests,
		UserRateLimitReqs: cfg.RateLimit.UserRequests,
		CookieMaxAge:      cfg.JWT.CookieMaxAge(),
		Development:       cfg.Server.IsDevelopment(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if inspector != nil {
		inspector.Close()
	}
	if asynqClient != nil {
		asynqClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}

func smtpConfig(cfg *config.Config) mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}
}
