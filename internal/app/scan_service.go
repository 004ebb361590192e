package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/internal/metrics"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

// StartScanInput carries the parameters for submitting a scan to its
// provider.
type StartScanInput struct {
	ScanID         string `validate:"required,uuid"`
	Provider       string `validate:"omitempty,alphanum"`
	RepositoryName string `validate:"omitempty,max=255"`
	CommitSHA      string `validate:"omitempty,max=64"`
}

// ScanService submits scans to a provider and hands them to the poll loop.
type ScanService struct {
	scanRepo  scan.Repository
	fileRepo  scanfile.Repository
	registry  *provider.Registry
	lifecycle *LifecycleService
	scheduler PollScheduler
	interval  time.Duration
	validate  *validator.Validate
	logger    *logger.Logger
}

// NewScanService creates a new ScanService. interval is the delay before the
// first poll attempt.
func NewScanService(
	scanRepo scan.Repository,
	fileRepo scanfile.Repository,
	registry *provider.Registry,
	lifecycle *LifecycleService,
	scheduler PollScheduler,
	interval time.Duration,
	log *logger.Logger,
) *ScanService {
	return &ScanService{
		scanRepo:  scanRepo,
		fileRepo:  fileRepo,
		registry:  registry,
		lifecycle: lifecycle,
		scheduler: scheduler,
		interval:  interval,
		validate:  validator.New(),
		logger:    log.With("service", "scan"),
	}
}

// StartScan uploads a pending scan's files to the provider and starts the
// poll loop. The adapter resolves a previously stored upload mapping when
// the provider call is a retry, so calling StartScan again after a partial
// failure does not duplicate remote uploads. Upload failure moves the scan
// to failed.
func (s *ScanService) StartScan(ctx context.Context, input StartScanInput) error {
	if err := s.validate.Struct(input); err != nil {
		return shared.NewDomainError("VALIDATION", err.Error(), shared.ErrValidation)
	}

	scanID, err := shared.IDFromString(input.ScanID)
	if err != nil {
		return err
	}

	sc, err := s.scanRepo.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan: %w", err)
	}

	if sc.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT",
			fmt.Sprintf("scan %s already finished with status %s", sc.ID, sc.Status), shared.ErrConflict)
	}

	adapter, err := s.registry.Get(input.Provider)
	if err != nil {
		return err
	}
	if sc.Provider != adapter.Code() {
		sc.SetProvider(adapter.Code())
		if err := s.scanRepo.Update(ctx, sc); err != nil {
			return fmt.Errorf("record scan provider: %w", err)
		}
	}

	files, err := s.fileRepo.ListByScan(ctx, sc.ID)
	if err != nil {
		return fmt.Errorf("list scan files: %w", err)
	}
	if len(files) == 0 {
		if ferr := s.lifecycle.Transition(ctx, sc, scan.StatusFailed, "no files to upload"); ferr != nil {
			s.logger.WithError(ferr).Error("failed to fail scan without files", "scan_id", sc.ID.String())
		}
		return shared.NewDomainError("VALIDATION", "scan has no uploaded files", shared.ErrValidation)
	}

	// The upload handler usually moved the scan to uploaded already; a scan
	// started straight from pending is moved here.
	if sc.Status == scan.StatusPending {
		if err := s.lifecycle.Transition(ctx, sc, scan.StatusUploaded, "files received"); err != nil {
			return err
		}
	}

	opts := provider.UploadOptions{
		RepositoryName: input.RepositoryName,
		CommitSHA:      input.CommitSHA,
		Branch:         sc.Branch,
	}
	result, err := adapter.UploadAndCreateScan(ctx, sc, files, opts)
	if err != nil {
		s.logger.WithError(err).Error("provider upload failed",
			"scan_id", sc.ID.String(),
			"provider", adapter.Code(),
		)
		if ferr := s.lifecycle.Transition(ctx, sc, scan.StatusFailed, "provider upload failed"); ferr != nil {
			s.logger.WithError(ferr).Error("failed to fail scan after upload error", "scan_id", sc.ID.String())
		}
		return fmt.Errorf("upload to %s: %w", adapter.Code(), err)
	}

	sc.MarkStarted()
	if err := s.scanRepo.Update(ctx, sc); err != nil {
		return fmt.Errorf("record scan start: %w", err)
	}

	if err := s.lifecycle.Transition(ctx, sc, scan.StatusRunning, "provider scan created"); err != nil {
		return err
	}

	if err := s.scheduler.SchedulePoll(ctx, sc.ID, 1, s.interval); err != nil {
		return fmt.Errorf("schedule first poll: %w", err)
	}

	metrics.ScansStartedTotal.WithLabelValues(adapter.Code()).Inc()
	s.logger.Info("scan started",
		"scan_id", sc.ID.String(),
		"provider", adapter.Code(),
		"remote_upload_id", result.RemoteUploadID,
		"files", len(files),
	)
	return nil
}
