package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
)

// =============================================================================
// Task Types
// =============================================================================

const (
	// TypeScanPoll is the task type for one provider poll attempt.
	TypeScanPoll = "scan:poll"

	// TypeScanStatusChanged is the task type for a committed scan status
	// transition.
	TypeScanStatusChanged = "scan:status_changed"
)

// =============================================================================
// Task Payloads
// =============================================================================

// ScanPollPayload carries one poll attempt. Attempt is 1-based and owned by
// the poll service; the queue never increments it.
type ScanPollPayload struct {
	ScanID  string `json:"scan_id"`
	Attempt int    `json:"attempt"`
}

// StatusChangedPayload carries one committed status transition.
type StatusChangedPayload struct {
	ScanID string `json:"scan_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// =============================================================================
// Task Creators
// =============================================================================

// NewScanPollTask creates a poll task. MaxRetry is zero on purpose: the poll
// service classifies every failure itself and requeues with an incremented
// attempt number, so the payload's attempt counter stays the only retry
// counter.
func NewScanPollTask(payload ScanPollPayload, delay time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan poll payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(2 * time.Minute),
		asynq.Queue("polling"),
	}

	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	return asynq.NewTask(TypeScanPoll, data, opts...), nil
}

// NewStatusChangedTask creates a status-changed event task.
func NewStatusChangedTask(payload StatusChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal status-changed payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(1 * time.Minute),
		asynq.Queue("notifications"),
	}

	return asynq.NewTask(TypeScanStatusChanged, data, opts...), nil
}

// =============================================================================
// Task Handler Interfaces
// =============================================================================

// ScanPollProcessor runs one poll attempt. Implemented by app.PollService.
type ScanPollProcessor interface {
	Poll(ctx context.Context, scanID shared.ID, attempt int) error
}

// StatusChangedProcessor consumes one status-changed event. Implemented by
// app.RuleService.
type StatusChangedProcessor interface {
	HandleStatusChanged(ctx context.Context, event app.StatusChangedEvent) error
}

// =============================================================================
// Task Handlers
// =============================================================================

// ScanTaskHandler handles scan poll and status-changed tasks.
type ScanTaskHandler struct {
	pollProcessor   ScanPollProcessor
	statusProcessor StatusChangedProcessor
	log             *slog.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(pollProcessor ScanPollProcessor, statusProcessor StatusChangedProcessor, log *slog.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		pollProcessor:   pollProcessor,
		statusProcessor: statusProcessor,
		log:             log,
	}
}

// RegisterHandlers registers the scan task handlers on the mux.
func (h *ScanTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScanPoll, h.HandlePoll)
	mux.HandleFunc(TypeScanStatusChanged, h.HandleStatusChanged)
}

// HandlePoll handles one poll attempt task.
func (h *ScanTaskHandler) HandlePoll(ctx context.Context, t *asynq.Task) error {
	var payload ScanPollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error("failed to unmarshal scan poll payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	scanID, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		h.log.Error("invalid scan_id in poll payload", "error", err, "scan_id", payload.ScanID)
		return fmt.Errorf("invalid scan_id: %w", err)
	}

	return h.pollProcessor.Poll(ctx, scanID, payload.Attempt)
}

// HandleStatusChanged handles one status-changed event task.
func (h *ScanTaskHandler) HandleStatusChanged(ctx context.Context, t *asynq.Task) error {
	var payload StatusChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error("failed to unmarshal status-changed payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	scanID, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		h.log.Error("invalid scan_id in status-changed payload", "error", err, "scan_id", payload.ScanID)
		return fmt.Errorf("invalid scan_id: %w", err)
	}

	return h.statusProcessor.HandleStatusChanged(ctx, app.StatusChangedEvent{
		ScanID: scanID,
		From:   scan.Status(payload.From),
		To:     scan.Status(payload.To),
	})
}
