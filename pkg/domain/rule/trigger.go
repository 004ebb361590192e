package rule

import (
	"encoding/json"

	"github.com/depsentry/api/pkg/domain/scan"
)

// ScanState is the slice of scan state trigger predicates evaluate against.
type ScanState struct {
	Status             scan.Status
	VulnerabilityCount int
}

// evaluator decides whether a trigger payload matches a scan state.
type evaluator func(payload json.RawMessage, state ScanState) bool

// evaluators is the closed dispatch table, one evaluator per trigger type.
// Types without an entry never match.
var evaluators = map[TriggerType]evaluator{
	TriggerScanCompleted:          evalScanCompleted,
	TriggerVulnerabilityThreshold: evalVulnerabilityThreshold,
	TriggerUploadInProgress:       evalUploadInProgress,
	TriggerUploadFailed:           evalUploadFailed,
}

// Default status sets for the status-membership triggers.
var (
	defaultInProgressStatuses = []string{
		string(scan.StatusUploaded),
		string(scan.StatusQueued),
		string(scan.StatusRunning),
	}
	defaultFailedStatuses = []string{
		string(scan.StatusFailed),
		string(scan.StatusTimeout),
	}
)

// Matches evaluates the rule's trigger against the scan state. Disabled
// rules and unknown trigger types never match.
func (r *Rule) Matches(state ScanState) bool {
	if !r.Enabled {
		return false
	}
	eval, ok := evaluators[r.TriggerType]
	if !ok {
		return false
	}
	return eval(r.TriggerPayload, state)
}

func evalScanCompleted(_ json.RawMessage, state ScanState) bool {
	return state.Status == scan.StatusCompleted
}

func evalVulnerabilityThreshold(payload json.RawMessage, state ScanState) bool {
	if state.Status != scan.StatusCompleted {
		return false
	}
	var p ThresholdPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return false
		}
	}
	return state.VulnerabilityCount > p.Threshold
}

func evalUploadInProgress(payload json.RawMessage, state ScanState) bool {
	return statusIn(payload, state.Status, defaultInProgressStatuses)
}

func evalUploadFailed(payload json.RawMessage, state ScanState) bool {
	return statusIn(payload, state.Status, defaultFailedStatuses)
}

// statusIn checks membership of the current status in the payload's statuses
// list, falling back to defaults when the payload omits them.
func statusIn(payload json.RawMessage, status scan.Status, defaults []string) bool {
	statuses := defaults
	if len(payload) > 0 {
		var p StatusesPayload
		if err := json.Unmarshal(payload, &p); err == nil && len(p.Statuses) > 0 {
			statuses = p.Statuses
		}
	}
	for _, s := range statuses {
		if s == string(status) {
			return true
		}
	}
	return false
}
