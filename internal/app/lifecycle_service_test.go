package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

func newTestScan(t *testing.T, status scan.Status) *scan.Scan {
	t.Helper()
	sc, err := scan.NewScan(shared.NewID(), "main")
	require.NoError(t, err)
	sc.Status = status
	return sc
}

func TestLifecycleService_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("legal transition persists and publishes", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusRunning)
		repo := newFakeScanRepo(sc)
		pub := &fakePublisher{}
		svc := app.NewLifecycleService(repo, pub, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusCompleted, "test")
		require.NoError(t, err)

		assert.Equal(t, scan.StatusCompleted, sc.Status)
		assert.Equal(t, scan.StatusCompleted, repo.status(sc.ID))
		require.Len(t, pub.events, 1)
		assert.Equal(t, scan.StatusRunning, pub.events[0].From)
		assert.Equal(t, scan.StatusCompleted, pub.events[0].To)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusRunning)
		repo := newFakeScanRepo(sc)
		pub := &fakePublisher{}
		svc := app.NewLifecycleService(repo, pub, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusRunning, "test")
		require.NoError(t, err)
		assert.Empty(t, pub.events)
	})

	t.Run("illegal transition does not touch storage", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusPending)
		repo := newFakeScanRepo(sc)
		pub := &fakePublisher{}
		svc := app.NewLifecycleService(repo, pub, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusCompleted, "test")

		var invalidErr *scan.InvalidTransitionError
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, scan.StatusPending, repo.status(sc.ID))
		assert.Empty(t, pub.events)
	})

	t.Run("transition from terminal status is rejected", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusCompleted)
		repo := newFakeScanRepo(sc)
		svc := app.NewLifecycleService(repo, &fakePublisher{}, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusRunning, "test")
		assert.True(t, errors.Is(err, shared.ErrConflict))
	})

	t.Run("lost race surfaces as conflict without publishing", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusRunning)
		repo := newFakeScanRepo(sc)
		// Another worker completed the scan after we loaded it.
		require.NoError(t, repo.UpdateStatus(ctx, sc.ID, scan.StatusRunning, scan.StatusFailed))

		pub := &fakePublisher{}
		svc := app.NewLifecycleService(repo, pub, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusCompleted, "test")
		assert.True(t, errors.Is(err, shared.ErrConflict))
		assert.Empty(t, pub.events)
		assert.Equal(t, scan.StatusFailed, repo.status(sc.ID))
	})

	t.Run("publish failure does not fail the transition", func(t *testing.T) {
		sc := newTestScan(t, scan.StatusRunning)
		repo := newFakeScanRepo(sc)
		pub := &fakePublisher{err: errors.New("queue down")}
		svc := app.NewLifecycleService(repo, pub, logger.NewNop())

		err := svc.Transition(ctx, sc, scan.StatusCompleted, "test")
		require.NoError(t, err)
		assert.Equal(t, scan.StatusCompleted, repo.status(sc.ID))
	})
}
