package redis

import (
	"context"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/pkg/domain/shared"
)

// ProgressRecorderAdapter wraps the PollProgressCache to implement
// app.PollProgressRecorder.
type ProgressRecorderAdapter struct {
	cache *PollProgressCache
}

// NewProgressRecorderAdapter creates a new adapter.
func NewProgressRecorderAdapter(cache *PollProgressCache) *ProgressRecorderAdapter {
	return &ProgressRecorderAdapter{cache: cache}
}

// RecordPollProgress converts the app progress shape and stores it.
func (a *ProgressRecorderAdapter) RecordPollProgress(ctx context.Context, scanID shared.ID, progress app.PollProgress) error {
	return a.cache.Set(ctx, scanID, PollProgress{
		ScanID:     scanID.String(),
		Attempt:    progress.Attempt,
		Progress:   progress.Progress,
		DetailsURL: progress.DetailsURL,
		PolledAt:   progress.PolledAt,
	})
}

var _ app.PollProgressRecorder = (*ProgressRecorderAdapter)(nil)
