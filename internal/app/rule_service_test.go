package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/pkg/domain/project"
	"github.com/depsentry/api/pkg/domain/rule"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

type ruleFixture struct {
	svc      *app.RuleService
	scanRepo *fakeScanRepo
	ruleRepo *fakeRuleRepo
	chat     *fakeChatSender
	email    *fakeEmailSender
	sc       *scan.Scan
	proj     *project.Project
}

func newRuleFixture(t *testing.T, status scan.Status, vulnCount int) *ruleFixture {
	t.Helper()

	proj := &project.Project{
		ID:                 shared.NewID(),
		Name:               "payments-api",
		NotificationEmails: []string{"team@example.com", "lead@example.com"},
	}

	sc, err := scan.NewScan(proj.ID, "main")
	require.NoError(t, err)
	sc.Status = status
	sc.VulnerabilityCount = vulnCount

	scanRepo := newFakeScanRepo(sc)
	ruleRepo := &fakeRuleRepo{byScope: make(map[rule.Scope][]*rule.Rule)}
	projectRepo := &fakeProjectRepo{projects: map[string]*project.Project{
		proj.ID.String(): proj,
	}}

	chat := &fakeChatSender{}
	email := &fakeEmailSender{}

	svc := app.NewRuleService(
		scanRepo, projectRepo, ruleRepo, chat, email,
		config.NotifyConfig{
			AdminEmails:    []string{"admin@example.com"},
			DetailsBaseURL: "https://depsentry.example.com",
		},
		logger.NewNop(),
	)

	return &ruleFixture{
		svc:      svc,
		scanRepo: scanRepo,
		ruleRepo: ruleRepo,
		chat:     chat,
		email:    email,
		sc:       sc,
		proj:     proj,
	}
}

func thresholdRule(scope rule.Scope, threshold int, actions ...rule.ActionType) *rule.Rule {
	r := &rule.Rule{
		ID:             shared.NewID(),
		Name:           "threshold rule",
		Enabled:        true,
		TriggerType:    rule.TriggerVulnerabilityThreshold,
		TriggerPayload: json.RawMessage(fmt.Sprintf(`{"threshold":%d}`, threshold)),
		Scope:          scope,
	}
	for _, a := range actions {
		r.Actions = append(r.Actions, rule.Action{
			ID:     shared.NewID(),
			RuleID: r.ID,
			Type:   a,
		})
	}
	return r
}

func completedEvent(sc *scan.Scan) app.StatusChangedEvent {
	return app.StatusChangedEvent{
		ScanID: sc.ID,
		From:   scan.StatusRunning,
		To:     sc.Status,
	}
}

func TestRuleService_HandleStatusChanged(t *testing.T) {
	ctx := context.Background()

	t.Run("count above threshold fires email and chat", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionEmail, rule.ActionChat),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		// One email per configured recipient.
		require.Len(t, f.email.sent, 2)
		assert.Equal(t, "team@example.com", f.email.sent[0].To)
		assert.Contains(t, f.email.sent[0].Subject, "15 vulnerabilities")

		require.Len(t, f.chat.sent, 1)
		assert.Contains(t, f.chat.sent[0].Title, "payments-api")
		assert.Contains(t, f.chat.sent[0].URL, f.sc.ID.String())
	})

	t.Run("count below threshold fires nothing", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 5)
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionEmail, rule.ActionChat),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		assert.Empty(t, f.email.sent)
		assert.Empty(t, f.chat.sent)
	})

	t.Run("project rules fully replace global rules", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)

		// The project rule never matches the current state; the matching
		// global rule must still be ignored.
		projectRule := &rule.Rule{
			ID:          shared.NewID(),
			Name:        "project failure rule",
			Enabled:     true,
			TriggerType: rule.TriggerUploadFailed,
			Scope:       rule.ProjectScope(f.proj.ID),
			Actions:     []rule.Action{{ID: shared.NewID(), Type: rule.ActionChat}},
		}
		f.ruleRepo.byScope[rule.ProjectScope(f.proj.ID)] = []*rule.Rule{projectRule}
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionChat),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		assert.Empty(t, f.chat.sent)
		assert.Empty(t, f.email.sent)
	})

	t.Run("stale event is discarded", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionChat),
		}

		stale := app.StatusChangedEvent{
			ScanID: f.sc.ID,
			From:   scan.StatusUploaded,
			To:     scan.StatusRunning,
		}
		require.NoError(t, f.svc.HandleStatusChanged(ctx, stale))

		assert.Empty(t, f.chat.sent)
	})

	t.Run("missing scan is discarded", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)

		err := f.svc.HandleStatusChanged(ctx, app.StatusChangedEvent{
			ScanID: shared.NewID(),
			To:     scan.StatusCompleted,
		})
		assert.NoError(t, err)
	})

	t.Run("chat action never routes to email", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionChat),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		assert.Len(t, f.chat.sent, 1)
		assert.Empty(t, f.email.sent)
	})

	t.Run("email falls back to the admin list", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)
		f.proj.NotificationEmails = nil
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionEmail),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		require.Len(t, f.email.sent, 1)
		assert.Equal(t, "admin@example.com", f.email.sent[0].To)
	})

	t.Run("one failing action does not block the rest", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusCompleted, 15)
		f.chat.err = errors.New("webhook down")
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{
			thresholdRule(rule.GlobalScope(), 10, rule.ActionChat, rule.ActionEmail),
		}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, completedEvent(f.sc)))

		assert.Len(t, f.email.sent, 2)
	})

	t.Run("failure notice on timeout", func(t *testing.T) {
		f := newRuleFixture(t, scan.StatusTimeout, 0)
		failRule := &rule.Rule{
			ID:          shared.NewID(),
			Name:        "failure rule",
			Enabled:     true,
			TriggerType: rule.TriggerUploadFailed,
			Scope:       rule.GlobalScope(),
			Actions:     []rule.Action{{ID: shared.NewID(), Type: rule.ActionChat}},
		}
		f.ruleRepo.byScope[rule.GlobalScope()] = []*rule.Rule{failRule}

		require.NoError(t, f.svc.HandleStatusChanged(ctx, app.StatusChangedEvent{
			ScanID: f.sc.ID,
			From:   scan.StatusRunning,
			To:     scan.StatusTimeout,
		}))

		require.Len(t, f.chat.sent, 1)
		assert.Contains(t, f.chat.sent[0].Title, "timeout")
	})
}
