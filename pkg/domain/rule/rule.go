// Package rule contains notification rule configuration and trigger
// evaluation. Rules are read-only from the orchestration core's perspective;
// their lifecycle is managed by configuration tooling.
package rule

import (
	"encoding/json"
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// TriggerType is the closed set of predicates a rule can use.
type TriggerType string

const (
	TriggerScanCompleted          TriggerType = "scan_completed"
	TriggerVulnerabilityThreshold TriggerType = "vulnerability_threshold"
	TriggerUploadInProgress       TriggerType = "upload_in_progress"
	TriggerUploadFailed           TriggerType = "upload_failed"
)

// IsValid checks if the trigger type is a known value. Unknown types are not
// an error at configuration time; they simply never match.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerScanCompleted, TriggerVulnerabilityThreshold,
		TriggerUploadInProgress, TriggerUploadFailed:
		return true
	}
	return false
}

// ActionType is the closed set of side effects a matched rule can run.
type ActionType string

const (
	ActionEmail   ActionType = "email"
	ActionChat    ActionType = "chat"
	ActionWebhook ActionType = "webhook"
)

// Rule binds a trigger predicate to a list of actions within a scope.
type Rule struct {
	ID      shared.ID
	Name    string
	Enabled bool

	TriggerType    TriggerType
	TriggerPayload json.RawMessage // Free-form trigger parameters

	Scope Scope

	Actions []Action

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Action is one side effect executed when the owning rule matches.
type Action struct {
	ID      shared.ID
	RuleID  shared.ID
	Type    ActionType
	Payload json.RawMessage // Free-form action parameters
}

// ThresholdPayload is the payload shape of vulnerability_threshold triggers
// and the threshold parameter of email actions.
type ThresholdPayload struct {
	Threshold int `json:"threshold"`
}

// StatusesPayload is the payload shape of upload_in_progress and
// upload_failed triggers.
type StatusesPayload struct {
	Statuses []string `json:"statuses"`
}
