package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

type startFixture struct {
	svc       *app.ScanService
	scanRepo  *fakeScanRepo
	fileRepo  *fakeFileRepo
	scheduler *fakeScheduler
	publisher *fakePublisher
	adapter   *fakeAdapter
	sc        *scan.Scan
}

func newStartFixture(t *testing.T, adapter *fakeAdapter) *startFixture {
	t.Helper()

	sc, err := scan.NewScan(shared.NewID(), "main")
	require.NoError(t, err)

	scanRepo := newFakeScanRepo(sc)
	fileRepo := &fakeFileRepo{files: []*scanfile.File{
		{ID: shared.NewID(), ScanID: sc.ID, Filename: "package-lock.json", Path: "/tmp/package-lock.json"},
	}}

	registry := provider.NewRegistry(testProvider)
	registry.Register(adapter)

	publisher := &fakePublisher{}
	scheduler := &fakeScheduler{}
	log := logger.NewNop()
	lifecycle := app.NewLifecycleService(scanRepo, publisher, log)

	svc := app.NewScanService(scanRepo, fileRepo, registry, lifecycle, scheduler, 30*time.Second, log)

	return &startFixture{
		svc:       svc,
		scanRepo:  scanRepo,
		fileRepo:  fileRepo,
		scheduler: scheduler,
		publisher: publisher,
		adapter:   adapter,
		sc:        sc,
	}
}

func uploadOKAdapter() *fakeAdapter {
	return &fakeAdapter{
		code: testProvider,
		uploadResult: &provider.UploadResult{
			RemoteUploadID: "12345",
			RemoteFileIDs:  []string{"f-1"},
		},
	}
}

func TestScanService_StartScan(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path runs the scan and schedules the first poll", func(t *testing.T) {
		f := newStartFixture(t, uploadOKAdapter())

		err := f.svc.StartScan(ctx, app.StartScanInput{
			ScanID:         f.sc.ID.String(),
			RepositoryName: "acme/payments-api",
		})
		require.NoError(t, err)

		assert.Equal(t, scan.StatusRunning, f.scanRepo.status(f.sc.ID))

		stored, err := f.scanRepo.GetByID(ctx, f.sc.ID)
		require.NoError(t, err)
		assert.Equal(t, testProvider, stored.Provider)
		assert.NotNil(t, stored.StartedAt)

		require.Len(t, f.scheduler.polls, 1)
		assert.Equal(t, 1, f.scheduler.polls[0].Attempt)
		assert.Equal(t, 30*time.Second, f.scheduler.polls[0].Delay)

		// pending -> uploaded -> running
		require.Len(t, f.publisher.events, 2)
		assert.Equal(t, scan.StatusUploaded, f.publisher.events[0].To)
		assert.Equal(t, scan.StatusRunning, f.publisher.events[1].To)
	})

	t.Run("upload failure fails the scan", func(t *testing.T) {
		adapter := uploadOKAdapter()
		adapter.uploadErr = provider.NewError(testProvider, "upload", errors.New("502"))
		f := newStartFixture(t, adapter)

		err := f.svc.StartScan(ctx, app.StartScanInput{ScanID: f.sc.ID.String()})
		require.Error(t, err)

		assert.Equal(t, scan.StatusFailed, f.scanRepo.status(f.sc.ID))
		assert.Empty(t, f.scheduler.polls)
	})

	t.Run("scan without files fails validation", func(t *testing.T) {
		f := newStartFixture(t, uploadOKAdapter())
		f.fileRepo.files = nil

		err := f.svc.StartScan(ctx, app.StartScanInput{ScanID: f.sc.ID.String()})
		assert.True(t, errors.Is(err, shared.ErrValidation))
		assert.Equal(t, scan.StatusFailed, f.scanRepo.status(f.sc.ID))
	})

	t.Run("finished scan is rejected", func(t *testing.T) {
		f := newStartFixture(t, uploadOKAdapter())
		require.NoError(t, f.scanRepo.UpdateStatus(ctx, f.sc.ID, scan.StatusPending, scan.StatusFailed))

		err := f.svc.StartScan(ctx, app.StartScanInput{ScanID: f.sc.ID.String()})
		assert.True(t, errors.Is(err, shared.ErrConflict))
	})

	t.Run("invalid input is rejected", func(t *testing.T) {
		f := newStartFixture(t, uploadOKAdapter())

		err := f.svc.StartScan(ctx, app.StartScanInput{ScanID: "not-a-uuid"})
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})
}
