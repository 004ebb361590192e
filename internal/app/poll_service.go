package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/internal/metrics"
	"github.com/depsentry/api/pkg/domain/mapping"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

// PollService drives the self-requeuing provider poll loop. Each poll task
// carries the attempt number in its payload; the queue enforces the delay
// between attempts, the service owns the counter and every terminal
// decision. The handler classifies every failure itself, so the queue's own
// retry counter never becomes a second source of truth.
type PollService struct {
	scanRepo    scan.Repository
	mappingRepo mapping.Repository
	registry    *provider.Registry
	lifecycle   *LifecycleService
	ingest      *IngestService
	scheduler   PollScheduler
	progress    PollProgressRecorder
	cfg         config.PollerConfig
	logger      *logger.Logger
}

// NewPollService creates a new PollService.
func NewPollService(
	scanRepo scan.Repository,
	mappingRepo mapping.Repository,
	registry *provider.Registry,
	lifecycle *LifecycleService,
	ingest *IngestService,
	scheduler PollScheduler,
	progress PollProgressRecorder,
	cfg config.PollerConfig,
	log *logger.Logger,
) *PollService {
	return &PollService{
		scanRepo:    scanRepo,
		mappingRepo: mappingRepo,
		registry:    registry,
		lifecycle:   lifecycle,
		ingest:      ingest,
		scheduler:   scheduler,
		progress:    progress,
		cfg:         cfg,
		logger:      log.With("service", "poller"),
	}
}

// Poll runs one poll attempt for a scan. It returns an error only when an
// internal write fails in a way worth surfacing to the worker log; provider
// outcomes (completed, still running, transient failure, exhausted) are all
// absorbed into scan state and requeues.
func (s *PollService) Poll(ctx context.Context, scanID shared.ID, attempt int) error {
	log := s.logger.With("scan_id", scanID.String(), "attempt", attempt)

	sc, err := s.scanRepo.GetByID(ctx, scanID)
	if err != nil {
		if shared.IsNotFound(err) {
			// The scan can never reappear, so retrying is pointless.
			log.Warn("scan not found, discarding poll task")
			metrics.PollAttemptsTotal.WithLabelValues("unknown", metrics.PollOutcomeDiscarded).Inc()
			return nil
		}
		return fmt.Errorf("load scan: %w", err)
	}

	if sc.Status.IsTerminal() {
		// Stale message from before the scan finished.
		log.Debug("scan already terminal, discarding poll task", "status", string(sc.Status))
		metrics.PollAttemptsTotal.WithLabelValues(sc.Provider, metrics.PollOutcomeDiscarded).Inc()
		return nil
	}

	adapter, err := s.registry.Get(sc.Provider)
	if err != nil {
		log.WithError(err).Error("no adapter for scan provider", "provider", sc.Provider)
		return s.failScan(ctx, sc, "unknown provider")
	}

	m, err := s.mappingRepo.FindByLinkedEntity(ctx, adapter.Code(), mapping.TypeCIUpload, mapping.LinkedScan, sc.ID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Without a remote upload id there is nothing to poll, now or
			// ever.
			log.Error("scan has no upload mapping", "provider", adapter.Code())
			return s.failScan(ctx, sc, "missing upload mapping")
		}
		return fmt.Errorf("find upload mapping: %w", err)
	}

	start := time.Now()
	status, err := adapter.PollScanStatus(ctx, m.ExternalID)
	metrics.PollDuration.WithLabelValues(adapter.Code()).Observe(time.Since(start).Seconds())
	if err != nil {
		return s.handlePollError(ctx, sc, attempt, err, log)
	}

	s.recordProgress(ctx, sc.ID, attempt, status, log)

	if !status.ScanCompleted {
		return s.requeueOrTimeout(ctx, sc, attempt, log)
	}

	result, err := adapter.NormalizeScanResult(status.Raw)
	if err != nil {
		log.WithError(err).Error("provider returned an unparseable result")
		return s.failScan(ctx, sc, "unparseable provider result")
	}

	if err := s.ingest.Ingest(ctx, sc, status.Raw, result); err != nil {
		return fmt.Errorf("ingest result: %w", err)
	}

	if err := s.lifecycle.Transition(ctx, sc, scan.StatusCompleted, "provider reported completion"); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Another worker finished this scan between our terminal check
			// and the transition.
			metrics.PollAttemptsTotal.WithLabelValues(adapter.Code(), metrics.PollOutcomeDiscarded).Inc()
			return nil
		}
		return err
	}

	metrics.PollAttemptsTotal.WithLabelValues(adapter.Code(), metrics.PollOutcomeCompleted).Inc()
	log.Info("scan completed", "vulnerabilities", result.VulnerabilityCount)
	return nil
}

// ResumeActive reschedules polling for every non-terminal scan. Called once
// at worker startup so scans in flight across a restart are not orphaned;
// stale duplicates are harmless because terminal scans discard their tasks.
func (s *PollService) ResumeActive(ctx context.Context) error {
	scans, err := s.scanRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active scans: %w", err)
	}

	resumed := 0
	for _, sc := range scans {
		if sc.Status != scan.StatusRunning && sc.Status != scan.StatusQueued {
			continue
		}
		if err := s.schedule(ctx, sc.ID, 1); err != nil {
			s.logger.WithError(err).Error("failed to resume polling", "scan_id", sc.ID.String())
			continue
		}
		resumed++
	}

	if resumed > 0 {
		s.logger.Info("resumed polling for active scans", "count", resumed)
	}
	return nil
}

// handlePollError classifies a provider error: transient errors requeue
// while attempts remain, anything else fails the scan.
func (s *PollService) handlePollError(ctx context.Context, sc *scan.Scan, attempt int, pollErr error, log *logger.Logger) error {
	if provider.IsRetryable(pollErr) && attempt < s.cfg.MaxAttempts {
		log.WithError(pollErr).Warn("poll failed, requeuing")
		metrics.PollAttemptsTotal.WithLabelValues(sc.Provider, metrics.PollOutcomeRequeued).Inc()
		return s.schedule(ctx, sc.ID, attempt+1)
	}

	log.WithError(pollErr).Error("poll failed permanently")
	return s.failScan(ctx, sc, "provider poll failed")
}

// requeueOrTimeout continues the loop for an unfinished scan, or times it
// out once the attempt budget is spent.
func (s *PollService) requeueOrTimeout(ctx context.Context, sc *scan.Scan, attempt int, log *logger.Logger) error {
	if attempt >= s.cfg.MaxAttempts {
		log.Warn("poll attempts exhausted, timing out scan")
		metrics.PollAttemptsTotal.WithLabelValues(sc.Provider, metrics.PollOutcomeTimeout).Inc()
		return s.transitionTerminal(ctx, sc, scan.StatusTimeout, "poll attempts exhausted")
	}

	metrics.PollAttemptsTotal.WithLabelValues(sc.Provider, metrics.PollOutcomeRequeued).Inc()
	return s.schedule(ctx, sc.ID, attempt+1)
}

func (s *PollService) schedule(ctx context.Context, scanID shared.ID, attempt int) error {
	if err := s.scheduler.SchedulePoll(ctx, scanID, attempt, s.cfg.Interval); err != nil {
		return fmt.Errorf("schedule poll attempt %d: %w", attempt, err)
	}
	return nil
}

func (s *PollService) failScan(ctx context.Context, sc *scan.Scan, reason string) error {
	metrics.PollAttemptsTotal.WithLabelValues(sc.Provider, metrics.PollOutcomeFailed).Inc()
	return s.transitionTerminal(ctx, sc, scan.StatusFailed, reason)
}

// transitionTerminal moves a scan to a terminal status, swallowing the
// conflict raised when a concurrent worker got there first.
func (s *PollService) transitionTerminal(ctx context.Context, sc *scan.Scan, to scan.Status, reason string) error {
	err := s.lifecycle.Transition(ctx, sc, to, reason)
	if err != nil && errors.Is(err, shared.ErrConflict) {
		return nil
	}
	return err
}

// recordProgress caches the provider-reported progress for display.
func (s *PollService) recordProgress(ctx context.Context, scanID shared.ID, attempt int, status *provider.StatusResult, log *logger.Logger) {
	err := s.progress.RecordPollProgress(ctx, scanID, PollProgress{
		Attempt:    attempt,
		Progress:   status.Progress,
		DetailsURL: status.DetailsURL,
		PolledAt:   time.Now(),
	})
	if err != nil {
		log.WithError(err).Warn("failed to cache poll progress")
	}
}
