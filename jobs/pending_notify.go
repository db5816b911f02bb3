package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/rollcall-app/rollcall/internal/jobs"
)

// PendingNotifyJob mails administrators when a new account awaits approval.
type PendingNotifyJob struct {
	pool    *pgxpool.Pool
	mailer  Mailer
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPendingNotifyJob constructs the job.
func NewPendingNotifyJob(pool *pgxpool.Pool, mailer Mailer, logger *slog.Logger) *PendingNotifyJob {
	return &PendingNotifyJob{pool: pool, mailer: mailer, logger: logger, metrics: jobmetrics.NewMetrics(nil)}
}

// Handle processes TaskAccountPendingNotify tasks.
func (j *PendingNotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	tracker := j.metrics.Track(TaskAccountPendingNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload PendingNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	admins, err := j.adminEmails(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		if j.logger != nil {
			j.logger.Warn("no active admins to notify", slog.String("account", payload.Email))
		}
		return nil
	}

	subject := "Account waiting for approval: " + payload.Email
	body := fmt.Sprintf("%s (%s) signed up and is waiting for approval.\n\nOpen /accounts to review.", payload.Name, payload.Email)
	return j.mailer.Send(admins, subject, body)
}

// HandleDigest processes the nightly TaskAccountPendingDigest reminder.
func (j *PendingNotifyJob) HandleDigest(ctx context.Context, t *asynq.Task) (resultErr error) {
	tracker := j.metrics.Track(TaskAccountPendingDigest)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rows, err := j.pool.Query(ctx, `SELECT email, name FROM accounts WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var email, name string
		if err := rows.Scan(&email, &name); err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", name, email))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	admins, err := j.adminEmails(ctx)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%d account(s) still waiting for approval", len(lines))
	body := "These accounts are waiting for approval:\n\n" + strings.Join(lines, "\n") + "\n\nOpen /accounts to review."
	return j.mailer.Send(admins, subject, body)
}

func (j *PendingNotifyJob) adminEmails(ctx context.Context) ([]string, error) {
	rows, err := j.pool.Query(ctx, `SELECT email FROM accounts WHERE role = 'admin' AND status = 'active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
