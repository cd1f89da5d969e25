package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolhub/internal/mail"
)

// Task type names
const (
	TypeSendEmail        = "email:send"
	TypePurgeResetTokens = "users:purge_reset_tokens"
)

// Queue names, matching the weights in pkg/queue.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// SendEmailPayload is a fully rendered message.
type SendEmailPayload = mail.Message

func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, data, asynq.MaxRetry(5), asynq.Queue(QueueCritical)), nil
}

// NewPurgeResetTokensTask has no payload; it clears every expired token.
func NewPurgeResetTokensTask() *asynq.Task {
	return asynq.NewTask(TypePurgeResetTokens, nil, asynq.Queue(QueueLow))
}
