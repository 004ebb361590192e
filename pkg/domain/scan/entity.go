// Package scan contains the scan entity and its lifecycle state machine.
package scan

import (
	"encoding/json"
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Scan represents one dependency-vulnerability scan request against a
// project snapshot. Its status is mutated only through the lifecycle
// service's Transition call and by result ingestion.
type Scan struct {
	ID        shared.ID
	ProjectID shared.ID
	Branch    string // Optional branch under scan

	// Provider is the provider code resolved at scan start. Empty until the
	// scan is submitted; the poller falls back to the default provider.
	Provider string

	Status Status

	// VulnerabilityCount is recomputed from the provider result at ingestion
	// time, never incremented.
	VulnerabilityCount int

	// Summary is the opaque raw summary blob returned by the provider on
	// completion.
	Summary json.RawMessage

	StartedAt   *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScan creates a new scan in pending status.
func NewScan(projectID shared.ID, branch string) (*Scan, error) {
	if projectID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "project_id is required", shared.ErrValidation)
	}

	now := time.Now()
	return &Scan{
		ID:        shared.NewID(),
		ProjectID: projectID,
		Branch:    branch,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetProvider records the provider code resolved at scan start.
func (s *Scan) SetProvider(code string) {
	s.Provider = code
	s.UpdatedAt = time.Now()
}

// MarkStarted records the time the provider scan began.
func (s *Scan) MarkStarted() {
	now := time.Now()
	s.StartedAt = &now
	s.UpdatedAt = now
}

// SetResult records the completed provider result summary and the recomputed
// vulnerability count.
func (s *Scan) SetResult(summary json.RawMessage, vulnerabilityCount int) {
	now := time.Now()
	s.Summary = summary
	s.VulnerabilityCount = vulnerabilityCount
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// IsFinished returns true if the scan reached a terminal status.
func (s *Scan) IsFinished() bool {
	return s.Status.IsTerminal()
}
