// Package jobs carries the asynq task definitions and worker wiring for
// background work: notifying administrators about accounts waiting for
// approval.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccountPendingNotify fires when a self-registered account is created.
	TaskAccountPendingNotify = "account:pending_notify"
	// TaskAccountPendingDigest is the nightly reminder about unapproved accounts.
	TaskAccountPendingDigest = "account:pending_digest"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// PendingNotifyPayload describes a newly created pending account.
type PendingNotifyPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewPendingNotifyTask constructs the notify task.
func NewPendingNotifyTask(payload PendingNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccountPendingNotify, data), nil
}

// NewPendingDigestTask constructs the digest task.
func NewPendingDigestTask() *asynq.Task {
	return asynq.NewTask(TaskAccountPendingDigest, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueAccountPendingNotify enqueues a pending-account notification.
func (c *Client) EnqueueAccountPendingNotify(ctx context.Context, email, name string) error {
	task, err := NewPendingNotifyTask(PendingNotifyPayload{Email: email, Name: name})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
