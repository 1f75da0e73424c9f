// Package jobs wires background processing: the asynq worker, task
// definitions and the enqueue client used by the HTTP layer.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mizanbank/mizan/internal/authn"
	jobmetrics "github.com/mizanbank/mizan/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeResetMail is the task type for password-reset mail delivery.
	TaskTypeResetMail = "auth:reset_mail"
	// TaskTypeSessionPurge removes expired provider sessions.
	TaskTypeSessionPurge = "auth:session_purge"
)

// ResetMailPayload describes a password-reset notification.
type ResetMailPayload struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// NewResetMailTask constructs an Asynq task.
func NewResetMailTask(payload ResetMailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeResetMail, data), nil
}

// NewSessionPurgeTask constructs the periodic purge task.
func NewSessionPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionPurge, nil)
}

// HandleResetMailTask processes TaskTypeResetMail tasks.
func HandleResetMailTask(ctx context.Context, t *asynq.Task) error {
	var payload ResetMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP/Mailpit once the mail template is
	// finalised.
	fmt.Printf("[jobs] send reset mail to %s\n", payload.Email)
	return nil
}

// NewSessionPurgeHandler builds the handler for TaskTypeSessionPurge.
func NewSessionPurgeHandler(repo authn.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("session_purge")
		removed, err := repo.PurgeExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil && removed > 0 {
			logger.Info("purged expired sessions", slog.Int64("count", removed))
		}
		return tracker.End(nil)
	}
}
