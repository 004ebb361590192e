package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/pkg/domain/mapping"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/domain/vulnerability"
	"github.com/depsentry/api/pkg/logger"
)

const testProvider = "fakeprov"

type pollFixture struct {
	svc         *app.PollService
	scanRepo    *fakeScanRepo
	mappingRepo *fakeMappingRepo
	scheduler   *fakeScheduler
	writer      *fakeBatchWriter
	publisher   *fakePublisher
	progress    *fakeProgressRecorder
	adapter     *fakeAdapter
	sc          *scan.Scan
}

// newPollFixture builds a poll service around one running scan with two
// uploaded files and a stored ci_upload mapping.
func newPollFixture(t *testing.T, adapter *fakeAdapter) *pollFixture {
	t.Helper()

	sc, err := scan.NewScan(shared.NewID(), "main")
	require.NoError(t, err)
	sc.Provider = testProvider
	sc.Status = scan.StatusRunning

	scanRepo := newFakeScanRepo(sc)

	mappingRepo := &fakeMappingRepo{}
	m, err := mapping.New(testProvider, mapping.TypeCIUpload, "12345", mapping.LinkedScan, sc.ID, nil)
	require.NoError(t, err)
	require.NoError(t, mappingRepo.Create(context.Background(), m))

	fileRepo := &fakeFileRepo{files: []*scanfile.File{
		{ID: shared.NewID(), ScanID: sc.ID, Filename: "package-lock.json"},
		{ID: shared.NewID(), ScanID: sc.ID, Filename: "go.sum"},
	}}

	registry := provider.NewRegistry(testProvider)
	registry.Register(adapter)

	publisher := &fakePublisher{}
	scheduler := &fakeScheduler{}
	writer := &fakeBatchWriter{}
	progress := &fakeProgressRecorder{}

	log := logger.NewNop()
	lifecycle := app.NewLifecycleService(scanRepo, publisher, log)
	ingest := app.NewIngestService(scanRepo, fileRepo, writer, log)

	svc := app.NewPollService(
		scanRepo, mappingRepo, registry, lifecycle, ingest, scheduler, progress,
		config.PollerConfig{
			MaxAttempts:     30,
			Interval:        30 * time.Second,
			DefaultProvider: testProvider,
		},
		log,
	)

	return &pollFixture{
		svc:         svc,
		scanRepo:    scanRepo,
		mappingRepo: mappingRepo,
		scheduler:   scheduler,
		writer:      writer,
		publisher:   publisher,
		progress:    progress,
		adapter:     adapter,
		sc:          sc,
	}
}

func inProgressAdapter(progress int) *fakeAdapter {
	return &fakeAdapter{
		code: testProvider,
		pollResult: &provider.StatusResult{
			Progress:      progress,
			ScanCompleted: false,
		},
	}
}

func TestPollService_Poll(t *testing.T) {
	ctx := context.Background()

	t.Run("incomplete scan requeues with incremented attempt", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(40))

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 29))

		require.Len(t, f.scheduler.polls, 1)
		assert.Equal(t, 30, f.scheduler.polls[0].Attempt)
		assert.Equal(t, 30*time.Second, f.scheduler.polls[0].Delay)
		assert.Equal(t, scan.StatusRunning, f.scanRepo.status(f.sc.ID))
	})

	t.Run("exhausted attempts time the scan out", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(40))

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 30))

		assert.Empty(t, f.scheduler.polls)
		assert.Equal(t, scan.StatusTimeout, f.scanRepo.status(f.sc.ID))
	})

	t.Run("progress is cached on every poll", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(40))

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 3))

		require.Len(t, f.progress.records, 1)
		assert.Equal(t, 40, f.progress.records[0].Progress)
		assert.Equal(t, 3, f.progress.records[0].Attempt)
	})

	t.Run("terminal scan discards the task without polling", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(40))
		require.NoError(t, f.scanRepo.UpdateStatus(ctx, f.sc.ID, scan.StatusRunning, scan.StatusCompleted))

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 5))

		assert.Zero(t, f.adapter.pollCalls)
		assert.Empty(t, f.scheduler.polls)
	})

	t.Run("missing scan discards the task", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(40))

		require.NoError(t, f.svc.Poll(ctx, shared.NewID(), 1))

		assert.Zero(t, f.adapter.pollCalls)
	})

	t.Run("missing upload mapping fails the scan", func(t *testing.T) {
		f := newPollFixture(t, inProgressAdapter(0))
		f.mappingRepo.mappings = nil

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 1))

		assert.Zero(t, f.adapter.pollCalls)
		assert.Equal(t, scan.StatusFailed, f.scanRepo.status(f.sc.ID))
		assert.Empty(t, f.scheduler.polls)
	})

	t.Run("transient provider error requeues", func(t *testing.T) {
		adapter := &fakeAdapter{
			code:    testProvider,
			pollErr: provider.NewError(testProvider, "poll", errors.New("503")),
		}
		f := newPollFixture(t, adapter)

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 5))

		require.Len(t, f.scheduler.polls, 1)
		assert.Equal(t, 6, f.scheduler.polls[0].Attempt)
		assert.Equal(t, scan.StatusRunning, f.scanRepo.status(f.sc.ID))
	})

	t.Run("transient error on the last attempt fails the scan", func(t *testing.T) {
		adapter := &fakeAdapter{
			code:    testProvider,
			pollErr: provider.NewError(testProvider, "poll", errors.New("503")),
		}
		f := newPollFixture(t, adapter)

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 30))

		assert.Empty(t, f.scheduler.polls)
		assert.Equal(t, scan.StatusFailed, f.scanRepo.status(f.sc.ID))
	})

	t.Run("permanent provider error fails the scan immediately", func(t *testing.T) {
		adapter := &fakeAdapter{
			code:    testProvider,
			pollErr: provider.NewPermanentError(testProvider, "poll", errors.New("401")),
		}
		f := newPollFixture(t, adapter)

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 1))

		assert.Empty(t, f.scheduler.polls)
		assert.Equal(t, scan.StatusFailed, f.scanRepo.status(f.sc.ID))
	})

	t.Run("completion ingests and completes the scan", func(t *testing.T) {
		raw := json.RawMessage(`{"progress":100,"scanCompleted":true}`)
		adapter := &fakeAdapter{
			code: testProvider,
			pollResult: &provider.StatusResult{
				Progress:      100,
				ScanCompleted: true,
				Raw:           raw,
			},
			normalized: &provider.NormalizedResult{
				Status: scan.StatusCompleted,
				Vulnerabilities: []provider.NormalizedVulnerability{
					{Title: "A", CVE: "CVE-1", Score: 9.5, PackageName: "lodash", Ecosystem: "npm"},
					{Title: "B", CVE: "CVE-2", Score: 4.2, PackageName: "requests", Ecosystem: "pip"},
				},
				VulnerabilityCount: 2,
			},
		}
		f := newPollFixture(t, adapter)

		require.NoError(t, f.svc.Poll(ctx, f.sc.ID, 7))

		// One batch write with a vulnerability per CVE event and a result
		// per uploaded file.
		assert.Equal(t, 1, f.writer.calls)
		require.Len(t, f.writer.vulns, 2)
		assert.Equal(t, vulnerability.SeverityCritical, f.writer.vulns[0].Severity)
		assert.Len(t, f.writer.results, 2)

		assert.Equal(t, scan.StatusCompleted, f.scanRepo.status(f.sc.ID))

		stored, err := f.scanRepo.GetByID(ctx, f.sc.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.VulnerabilityCount)
		assert.JSONEq(t, string(raw), string(stored.Summary))

		require.Len(t, f.publisher.events, 1)
		assert.Equal(t, scan.StatusCompleted, f.publisher.events[0].To)
		assert.Empty(t, f.scheduler.polls)
	})
}

func TestPollService_ResumeActive(t *testing.T) {
	ctx := context.Background()
	f := newPollFixture(t, inProgressAdapter(10))

	// A pending scan has no poll loop yet and must not be resumed.
	pending, err := scan.NewScan(shared.NewID(), "")
	require.NoError(t, err)
	require.NoError(t, f.scanRepo.Create(ctx, pending))

	require.NoError(t, f.svc.ResumeActive(ctx))

	require.Len(t, f.scheduler.polls, 1)
	assert.True(t, f.scheduler.polls[0].ScanID.Equals(f.sc.ID))
	assert.Equal(t, 1, f.scheduler.polls[0].Attempt)
}
