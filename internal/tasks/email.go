package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/schoolhub/internal/mail"
)

// Enqueuer is the part of *asynq.Client the API process uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailQueue is a mail.Sender that hands messages to the worker, so a slow
// SMTP server never holds up a request.
type EmailQueue struct {
	client Enqueuer
}

func NewEmailQueue(client Enqueuer) *EmailQueue {
	return &EmailQueue{client: client}
}

func (q *EmailQueue) Send(ctx context.Context, msg mail.Message) error {
	task, err := NewSendEmailTask(msg)
	if err != nil {
		return fmt.Errorf("creating email task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing email: %w", err)
	}
	return nil
}

var _ mail.Sender = (*EmailQueue)(nil)
