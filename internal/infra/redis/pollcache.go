package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/depsentry/api/pkg/domain/shared"
)

// pollProgressTTL bounds how long stale progress entries linger after a scan
// stops being polled.
const pollProgressTTL = 24 * time.Hour

// PollProgress is the latest provider-reported state of an active scan.
// It is display data only; the scan record stays the source of truth.
type PollProgress struct {
	ScanID     string    `json:"scan_id"`
	Attempt    int       `json:"attempt"`
	Progress   int       `json:"progress"`
	DetailsURL string    `json:"details_url,omitempty"`
	PolledAt   time.Time `json:"polled_at"`
}

// PollProgressCache stores the latest poll progress per scan in Redis.
type PollProgressCache struct {
	client *Client
}

// NewPollProgressCache creates a new PollProgressCache.
func NewPollProgressCache(client *Client) *PollProgressCache {
	return &PollProgressCache{client: client}
}

func pollProgressKey(scanID shared.ID) string {
	return "scan:poll_progress:" + scanID.String()
}

// Set records the latest progress for a scan.
func (c *PollProgressCache) Set(ctx context.Context, scanID shared.ID, progress PollProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal poll progress: %w", err)
	}

	if err := c.client.client.Set(ctx, pollProgressKey(scanID), data, pollProgressTTL).Err(); err != nil {
		return fmt.Errorf("cache poll progress: %w", err)
	}
	return nil
}

// Get retrieves the latest progress for a scan. Returns shared.ErrNotFound
// when no progress has been cached.
func (c *PollProgressCache) Get(ctx context.Context, scanID shared.ID) (*PollProgress, error) {
	data, err := c.client.client.Get(ctx, pollProgressKey(scanID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("read poll progress: %w", err)
	}

	var progress PollProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal poll progress: %w", err)
	}

	return &progress, nil
}
