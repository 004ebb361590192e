package scan

import (
	"fmt"
	"strings"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Status represents the scan lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"   // Scan created, waiting for file upload
	StatusUploaded  Status = "uploaded"  // Files uploaded, waiting for provider submission
	StatusQueued    Status = "queued"    // Accepted by the provider, not yet running
	StatusRunning   Status = "running"   // Provider scan in progress, being polled
	StatusCompleted Status = "completed" // Provider scan finished, results ingested
	StatusFailed    Status = "failed"    // Upload or polling failed permanently
	StatusTimeout   Status = "timeout"   // Poll attempts exhausted before completion
)

// AllStatuses returns all valid statuses.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusUploaded,
		StatusQueued,
		StatusRunning,
		StatusCompleted,
		StatusFailed,
		StatusTimeout,
	}
}

// transitions is the closed transition table. Statuses with no entry are
// terminal. Built once, never mutated.
var transitions = map[Status][]Status{
	StatusPending:  {StatusUploaded, StatusFailed},
	StatusUploaded: {StatusRunning, StatusFailed},
	StatusQueued:   {StatusRunning, StatusFailed},
	StatusRunning:  {StatusCompleted, StatusFailed, StatusTimeout},
}

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUploaded, StatusQueued, StatusRunning,
		StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// IsTerminal returns true if the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the transition to another status is allowed
// by the transition table.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AvailableTransitions returns the statuses reachable from this status.
// Terminal statuses return an empty slice.
func (s Status) AvailableTransitions() []Status {
	allowed := transitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// InvalidTransitionError is returned when a status change is not permitted by
// the transition table. It always indicates a bug in the caller and must not
// be retried.
type InvalidTransitionError struct {
	From Status
	To   Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	allowed := e.From.AvailableTransitions()
	if len(allowed) == 0 {
		return fmt.Sprintf("cannot transition scan from terminal status %q to %q", e.From, e.To)
	}

	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot transition scan from %q to %q (allowed: %s)",
		e.From, e.To, strings.Join(names, ", "))
}

// Unwrap marks the error as a conflict for errors.Is checks.
func (e *InvalidTransitionError) Unwrap() error {
	return shared.ErrConflict
}
