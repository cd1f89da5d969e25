package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/mail"
	"github.com/hugh/schoolhub/pkg/util"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
	mailer mail.Sender
	now    func() time.Time
}

func NewHandler(db *gorm.DB, logger *slog.Logger, mailer mail.Sender) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
		mailer: mailer,
		now:    time.Now,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSendEmail, h.HandleSendEmail)
	mux.HandleFunc(TypePurgeResetTokens, h.HandlePurgeResetTokens)
}

// HandleSendEmail delivers one queued message. Malformed payloads are not
// retried; delivery failures are, up to the task's retry limit.
func (h *Handler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email has no recipient: %w", asynq.SkipRetry)
	}

	if err := h.mailer.Send(ctx, payload); err != nil {
		h.logger.Error("email delivery failed",
			"to", payload.To,
			"subject", payload.Subject,
			"error", err,
		)
		return err
	}

	h.logger.Info("email delivered", "to", payload.To, "subject", payload.Subject)
	return nil
}

func (h *Handler) HandlePurgeResetTokens(ctx context.Context, t *asynq.Task) error {
	n, err := auth.PurgeExpiredResetTokens(ctx, h.db, h.now())
	if err != nil {
		return fmt.Errorf("purging reset tokens: %w", err)
	}
	if n > 0 {
		h.logger.Info("purged expired password reset tokens", "count", n)
	}
	return nil
}

// Registrar is the part of *asynq.Scheduler used to install periodic tasks.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedules installs the periodic tasks and returns the first purge
// run after now. A bad PURGE_SCHEDULE fails here, at startup.
func RegisterSchedules(s Registrar, purgeSchedule string, now time.Time) (time.Time, error) {
	next, err := util.NextCronTime(purgeSchedule, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("PURGE_SCHEDULE: %w", err)
	}
	if _, err := s.Register(purgeSchedule, NewPurgeResetTokensTask()); err != nil {
		return time.Time{}, fmt.Errorf("registering purge task: %w", err)
	}
	return next, nil
}
