package jobs

import (
	"context"
	"time"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/pkg/domain/shared"
)

// PollSchedulerAdapter wraps the job Client to implement app.PollScheduler.
type PollSchedulerAdapter struct {
	client *Client
}

// NewPollSchedulerAdapter creates a new adapter.
func NewPollSchedulerAdapter(client *Client) *PollSchedulerAdapter {
	return &PollSchedulerAdapter{client: client}
}

// SchedulePoll converts app parameters to a job payload and enqueues.
func (a *PollSchedulerAdapter) SchedulePoll(ctx context.Context, scanID shared.ID, attempt int, delay time.Duration) error {
	return a.client.EnqueueScanPoll(ctx, ScanPollPayload{
		ScanID:  scanID.String(),
		Attempt: attempt,
	}, delay)
}

// EventPublisherAdapter wraps the job Client to implement app.EventPublisher.
type EventPublisherAdapter struct {
	client *Client
}

// NewEventPublisherAdapter creates a new adapter.
func NewEventPublisherAdapter(client *Client) *EventPublisherAdapter {
	return &EventPublisherAdapter{client: client}
}

// PublishStatusChanged converts the app event to a job payload and enqueues.
func (a *EventPublisherAdapter) PublishStatusChanged(ctx context.Context, event app.StatusChangedEvent) error {
	return a.client.EnqueueStatusChanged(ctx, StatusChangedPayload{
		ScanID: event.ScanID.String(),
		From:   string(event.From),
		To:     string(event.To),
	})
}

// Ensure adapters implement the interfaces
var _ app.PollScheduler = (*PollSchedulerAdapter)(nil)
var _ app.EventPublisher = (*EventPublisherAdapter)(nil)
