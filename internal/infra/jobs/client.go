package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/depsentry/api/pkg/logger"
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

// EnqueueScanPoll enqueues a poll attempt, delivered after delay. The delay
// lives in the queue; no worker ever sleeps for it.
func (c *Client) EnqueueScanPoll(ctx context.Context, payload ScanPollPayload, delay time.Duration) error {
	task, err := NewScanPollTask(payload, delay)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue scan poll",
			"scan_id", payload.ScanID,
			"attempt", payload.Attempt,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("scan poll queued",
		"task_id", info.ID,
		"scan_id", payload.ScanID,
		"attempt", payload.Attempt,
		"delay", delay.String(),
	)
	return nil
}

// EnqueueStatusChanged enqueues a status-changed event for the rule engine.
func (c *Client) EnqueueStatusChanged(ctx context.Context, payload StatusChangedPayload) error {
	task, err := NewStatusChangedTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue status-changed event",
			"scan_id", payload.ScanID,
			"to", payload.To,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("status-changed event queued",
		"task_id", info.ID,
		"scan_id", payload.ScanID,
		"from", payload.From,
		"to", payload.To,
	)
	return nil
}
