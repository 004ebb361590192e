// Package app contains the orchestration services gluing the scan domain,
// the provider adapters and the background job queue together.
package app

import (
	"context"
	"time"

	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

// StatusChangedEvent describes one committed scan status transition.
type StatusChangedEvent struct {
	ScanID shared.ID
	From   scan.Status
	To     scan.Status
}

// EventPublisher publishes status-changed events for asynchronous
// consumption by the rule engine. Implemented by the jobs client.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

// PollScheduler enqueues a poll attempt for a scan after a delay. The delay
// is enforced by the queue, not by sleeping workers. Implemented by the jobs
// client.
type PollScheduler interface {
	SchedulePoll(ctx context.Context, scanID shared.ID, attempt int, delay time.Duration) error
}

// PollProgress is the display-only provider state recorded after every poll.
type PollProgress struct {
	Attempt    int
	Progress   int
	DetailsURL string
	PolledAt   time.Time
}

// PollProgressRecorder stores the latest poll progress per scan. Recording
// is best-effort; failures are logged and never fail the poll.
type PollProgressRecorder interface {
	RecordPollProgress(ctx context.Context, scanID shared.ID, progress PollProgress) error
}

// BatchWriter persists a completed scan's vulnerabilities and per-file
// results in a single transaction. Implemented by the postgres ingestion
// repository.
type BatchWriter interface {
	WriteBatch(ctx context.Context, vulns []*vulnerability.Vulnerability, results []*scanfile.Result) error
}
