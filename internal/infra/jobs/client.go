package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/taskforge/api/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	client := asynq.NewClient(redisOpt)

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueInvitationEmail enqueues an invitation email job.
func (c *Client) EnqueueInvitationEmail(ctx context.Context, payload InvitationEmailPayload) error {
	task, err := NewInvitationEmailTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue invitation email",
			"email", payload.RecipientEmail,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("invitation email queued",
		"task_id", info.ID,
		"email", payload.RecipientEmail,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueInvitationAccepted enqueues an invitation accepted notice job.
func (c *Client) EnqueueInvitationAccepted(ctx context.Context, payload InvitationAcceptedPayload) error {
	task, err := NewInvitationAcceptedTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue invitation accepted notice",
			"email", payload.InviterEmail,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("invitation accepted notice queued",
		"task_id", info.ID,
		"email", payload.InviterEmail,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueInvitationCleanup enqueues an invitation cleanup job.
func (c *Client) EnqueueInvitationCleanup(ctx context.Context) error {
	info, err := c.client.EnqueueContext(ctx, NewInvitationCleanupTask())
	if err != nil {
		c.logger.Error("failed to enqueue invitation cleanup", "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("invitation cleanup queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}

// EnqueueAuditArchive enqueues an audit archive job.
func (c *Client) EnqueueAuditArchive(ctx context.Context) error {
	info, err := c.client.EnqueueContext(ctx, NewAuditArchiveTask())
	if err != nil {
		c.logger.Error("failed to enqueue audit archive", "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("audit archive queued",
		"task_id", info.ID,
		"queue", info.Queue,
	)
	return nil
}
