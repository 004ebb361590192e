package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/depsentry/api/internal/metrics"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

// LifecycleService owns every scan status change. All writers go through
// Transition so the state machine and the optimistic status check cannot be
// bypassed.
type LifecycleService struct {
	scanRepo  scan.Repository
	publisher EventPublisher
	logger    *logger.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(scanRepo scan.Repository, publisher EventPublisher, log *logger.Logger) *LifecycleService {
	return &LifecycleService{
		scanRepo:  scanRepo,
		publisher: publisher,
		logger:    log.With("service", "lifecycle"),
	}
}

// Transition moves a scan to a new status. Transitioning to the current
// status is a logged no-op. An illegal transition returns
// scan.InvalidTransitionError without touching storage. The persisted update
// is conditional on the status still being the one we read; losing that race
// returns shared.ErrConflict and the caller must assume another worker
// already advanced the scan.
//
// The status-changed event is published only after the update committed.
func (s *LifecycleService) Transition(ctx context.Context, sc *scan.Scan, to scan.Status, reason string) error {
	from := sc.Status

	if from == to {
		s.logger.Debug("transition is a no-op",
			"scan_id", sc.ID.String(),
			"status", string(from),
			"reason", reason,
		)
		return nil
	}

	if !from.CanTransition(to) {
		return &scan.InvalidTransitionError{From: from, To: to}
	}

	if err := s.scanRepo.UpdateStatus(ctx, sc.ID, from, to); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			metrics.ScanTransitionConflictsTotal.Inc()
			s.logger.Warn("transition lost to concurrent update",
				"scan_id", sc.ID.String(),
				"from", string(from),
				"to", string(to),
				"reason", reason,
			)
		}
		return fmt.Errorf("update scan status: %w", err)
	}

	sc.Status = to
	metrics.ScanTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info("scan status changed",
		"scan_id", sc.ID.String(),
		"from", string(from),
		"to", string(to),
		"reason", reason,
	)

	if err := s.publisher.PublishStatusChanged(ctx, StatusChangedEvent{
		ScanID: sc.ID,
		From:   from,
		To:     to,
	}); err != nil {
		// The transition is already committed. Dropping the event loses a
		// notification, not scan state.
		s.logger.WithError(err).Error("failed to publish status-changed event",
			"scan_id", sc.ID.String(),
			"to", string(to),
		)
	}

	return nil
}
