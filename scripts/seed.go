//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"

	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database"
	"github.com/hugh/schoolhub/internal/mail"
	"github.com/hugh/schoolhub/pkg/config"
	"github.com/hugh/schoolhub/pkg/crypto"
	"github.com/hugh/schoolhub/pkg/util"
	"github.com/joho/godotenv"
)

var verifyLinkRe = regexp.MustCompile(`/users/verifyEmail/([A-Za-z0-9_-]+)\?token=`)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ctx := context.Background()

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	if err := database.Seed(ctx, db); err != nil {
		log.Fatalf("failed to seed reference data: %v", err)
	}

	// Create admin user. The verification email is captured instead of sent
	// and followed straight away.
	enc, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("failed to create encryptor: %v", err)
	}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(), auth.WithSealer(enc))
	recorder := &mail.Recorder{}
	authService := auth.NewService(db, jwtService, recorder, auth.Config{
		BaseURL:   cfg.Server.BaseURL,
		ResetURL:  cfg.Email.ResetURL,
		VerifyTTL: cfg.JWT.EmailVerifyTTL,
		ResetTTL:  cfg.JWT.PasswordResetTTL,
	})

	email := envOr("ADMIN_EMAIL", "admin@example.com")
	password := envOr("ADMIN_PASSWORD", "admin123!")

	token, err := authService.Signup(ctx, nil, auth.AccountInput{
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
		FirstName:       envOr("ADMIN_FIRST_NAME", "School"),
		LastName:        envOr("ADMIN_LAST_NAME", "Admin"),
		DOB:             envOr("ADMIN_DOB", "1980-01-01"),
	}, auth.AdminRegistration{
		SchoolName: envOr("SCHOOL_NAME", "Default School"),
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	msg, ok := recorder.Last()
	if !ok {
		log.Fatal("no verification email was produced")
	}
	m := verifyLinkRe.FindStringSubmatch(msg.Text)
	if m == nil {
		log.Fatal("verification email carries no link")
	}

	user, err := authService.VerifyEmail(ctx, m[1], token)
	if err != nil {
		log.Fatalf("failed to verify admin user: %v", err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", user.Email)
	fmt.Printf("ID: %s\n", user.ID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
