package rule_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depsentry/api/pkg/domain/rule"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
)

func enabledRule(trigger rule.TriggerType, payload string) *rule.Rule {
	r := &rule.Rule{
		ID:          shared.NewID(),
		Name:        "test rule",
		Enabled:     true,
		TriggerType: trigger,
	}
	if payload != "" {
		r.TriggerPayload = json.RawMessage(payload)
	}
	return r
}

func TestRule_Matches_ScanCompleted(t *testing.T) {
	r := enabledRule(rule.TriggerScanCompleted, "")

	assert.True(t, r.Matches(rule.ScanState{Status: scan.StatusCompleted}))
	assert.False(t, r.Matches(rule.ScanState{Status: scan.StatusRunning}))
	assert.False(t, r.Matches(rule.ScanState{Status: scan.StatusFailed}))
}

func TestRule_Matches_VulnerabilityThreshold(t *testing.T) {
	r := enabledRule(rule.TriggerVulnerabilityThreshold, `{"threshold":10}`)

	t.Run("above threshold fires", func(t *testing.T) {
		assert.True(t, r.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 15,
		}))
	})

	t.Run("below threshold does not fire", func(t *testing.T) {
		assert.False(t, r.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 5,
		}))
	})

	t.Run("threshold is strict greater-than", func(t *testing.T) {
		assert.False(t, r.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 10,
		}))
	})

	t.Run("never fires before completion", func(t *testing.T) {
		assert.False(t, r.Matches(rule.ScanState{
			Status:             scan.StatusRunning,
			VulnerabilityCount: 100,
		}))
	})

	t.Run("missing payload defaults to zero", func(t *testing.T) {
		bare := enabledRule(rule.TriggerVulnerabilityThreshold, "")
		assert.True(t, bare.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 1,
		}))
		assert.False(t, bare.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 0,
		}))
	})
}

func TestRule_Matches_UploadInProgress(t *testing.T) {
	r := enabledRule(rule.TriggerUploadInProgress, "")

	for _, s := range []scan.Status{scan.StatusUploaded, scan.StatusQueued, scan.StatusRunning} {
		assert.True(t, r.Matches(rule.ScanState{Status: s}), "status %s", s)
	}
	for _, s := range []scan.Status{scan.StatusPending, scan.StatusCompleted, scan.StatusFailed} {
		assert.False(t, r.Matches(rule.ScanState{Status: s}), "status %s", s)
	}

	t.Run("payload overrides the status set", func(t *testing.T) {
		narrow := enabledRule(rule.TriggerUploadInProgress, `{"statuses":["running"]}`)
		assert.True(t, narrow.Matches(rule.ScanState{Status: scan.StatusRunning}))
		assert.False(t, narrow.Matches(rule.ScanState{Status: scan.StatusUploaded}))
	})
}

func TestRule_Matches_UploadFailed(t *testing.T) {
	r := enabledRule(rule.TriggerUploadFailed, "")

	assert.True(t, r.Matches(rule.ScanState{Status: scan.StatusFailed}))
	assert.True(t, r.Matches(rule.ScanState{Status: scan.StatusTimeout}))
	assert.False(t, r.Matches(rule.ScanState{Status: scan.StatusCompleted}))
}

func TestRule_Matches_Guards(t *testing.T) {
	t.Run("disabled rule never matches", func(t *testing.T) {
		r := enabledRule(rule.TriggerScanCompleted, "")
		r.Enabled = false
		assert.False(t, r.Matches(rule.ScanState{Status: scan.StatusCompleted}))
	})

	t.Run("unknown trigger type never matches", func(t *testing.T) {
		r := enabledRule(rule.TriggerType("on_full_moon"), "")
		for _, s := range []scan.Status{scan.StatusCompleted, scan.StatusFailed, scan.StatusRunning} {
			assert.False(t, r.Matches(rule.ScanState{Status: s}))
		}
	})

	t.Run("malformed payload never matches", func(t *testing.T) {
		r := enabledRule(rule.TriggerVulnerabilityThreshold, `{"threshold":`)
		assert.False(t, r.Matches(rule.ScanState{
			Status:             scan.StatusCompleted,
			VulnerabilityCount: 100,
		}))
	})
}

func TestScope(t *testing.T) {
	t.Run("global", func(t *testing.T) {
		assert.True(t, rule.GlobalScope().IsGlobal())
		_, err := rule.GlobalScope().ProjectID()
		assert.Error(t, err)
	})

	t.Run("project round-trip", func(t *testing.T) {
		id := shared.NewID()
		scope := rule.ProjectScope(id)
		assert.False(t, scope.IsGlobal())

		parsed, err := scope.ProjectID()
		require.NoError(t, err)
		assert.True(t, id.Equals(parsed))
	})

	t.Run("malformed project scope", func(t *testing.T) {
		_, err := rule.Scope("project:not-a-uuid").ProjectID()
		assert.Error(t, err)
	})
}

func TestTriggerType_IsValid(t *testing.T) {
	assert.True(t, rule.TriggerScanCompleted.IsValid())
	assert.True(t, rule.TriggerVulnerabilityThreshold.IsValid())
	assert.False(t, rule.TriggerType("on_full_moon").IsValid())
}
