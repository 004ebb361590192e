package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/notification"
	"github.com/depsentry/api/internal/metrics"
	"github.com/depsentry/api/pkg/domain/project"
	"github.com/depsentry/api/pkg/domain/rule"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/logger"
)

// defaultEmailThreshold is the vulnerability threshold used in email
// subjects and bodies when the action payload omits one.
const defaultEmailThreshold = 10

// RuleService consumes scan status-changed events, resolves the applicable
// rule set and executes the actions of every matching rule. One failing
// action never blocks the others, and a delivery failure is never a failure
// of the scan itself.
type RuleService struct {
	scanRepo    scan.Repository
	projectRepo project.Repository
	ruleRepo    rule.Repository
	chat        notification.ChatSender
	email       notification.EmailSender
	cfg         config.NotifyConfig
	logger      *logger.Logger
}

// NewRuleService creates a new RuleService. chat and email may be nil when
// the corresponding channel is not configured; actions targeting them are
// then logged and skipped.
func NewRuleService(
	scanRepo scan.Repository,
	projectRepo project.Repository,
	ruleRepo rule.Repository,
	chat notification.ChatSender,
	email notification.EmailSender,
	cfg config.NotifyConfig,
	log *logger.Logger,
) *RuleService {
	return &RuleService{
		scanRepo:    scanRepo,
		projectRepo: projectRepo,
		ruleRepo:    ruleRepo,
		chat:        chat,
		email:       email,
		cfg:         cfg,
		logger:      log.With("service", "rules"),
	}
}

// HandleStatusChanged evaluates the rules applicable to a scan after a
// status transition. The scan is re-read first; when its current status no
// longer matches the event the event is stale and gets discarded.
func (s *RuleService) HandleStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	log := s.logger.With("scan_id", event.ScanID.String(), "status", string(event.To))

	sc, err := s.scanRepo.GetByID(ctx, event.ScanID)
	if err != nil {
		if shared.IsNotFound(err) {
			log.Warn("scan not found, discarding event")
			return nil
		}
		return fmt.Errorf("load scan: %w", err)
	}
	if sc.Status != event.To {
		log.Debug("scan moved on, discarding stale event", "current_status", string(sc.Status))
		return nil
	}

	rules, err := s.resolveRules(ctx, sc.ProjectID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	proj, err := s.projectRepo.GetByID(ctx, sc.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	state := rule.ScanState{
		Status:             sc.Status,
		VulnerabilityCount: sc.VulnerabilityCount,
	}

	for _, r := range rules {
		if !r.Matches(state) {
			continue
		}
		metrics.RuleMatchesTotal.WithLabelValues(string(r.TriggerType)).Inc()
		log.Info("rule matched", "rule", r.Name, "trigger", string(r.TriggerType))
		s.executeActions(ctx, r, sc, proj, log)
	}

	return nil
}

// resolveRules returns the project's own enabled rules when any exist,
// otherwise the global set. Project rules fully replace the global set even
// when none of them end up matching.
func (s *RuleService) resolveRules(ctx context.Context, projectID shared.ID) ([]*rule.Rule, error) {
	scoped, err := s.ruleRepo.ListEnabledByScope(ctx, rule.ProjectScope(projectID))
	if err != nil {
		return nil, fmt.Errorf("list project rules: %w", err)
	}
	if len(scoped) > 0 {
		return scoped, nil
	}

	global, err := s.ruleRepo.ListEnabledByScope(ctx, rule.GlobalScope())
	if err != nil {
		return nil, fmt.Errorf("list global rules: %w", err)
	}
	return global, nil
}

// executeActions runs every action of a matched rule. Failures are counted
// and logged per action; the remaining actions still run.
func (s *RuleService) executeActions(ctx context.Context, r *rule.Rule, sc *scan.Scan, proj *project.Project, log *logger.Logger) {
	for _, action := range r.Actions {
		err := s.executeAction(ctx, action, sc, proj)
		outcome := metrics.NotifyOutcomeSuccess
		if err != nil {
			outcome = metrics.NotifyOutcomeFailure
			log.WithError(err).Error("notification action failed",
				"rule", r.Name,
				"action", string(action.Type),
			)
		}
		metrics.NotificationsSentTotal.WithLabelValues(string(action.Type), outcome).Inc()
	}
}

func (s *RuleService) executeAction(ctx context.Context, action rule.Action, sc *scan.Scan, proj *project.Project) error {
	switch action.Type {
	case rule.ActionEmail:
		return s.executeEmail(ctx, action, sc, proj)
	case rule.ActionChat:
		// Chat actions route to the chat channel only. Email delivery for
		// the same rule needs an explicit email action, so configuring both
		// never double-sends.
		return s.executeChat(ctx, action, sc, proj)
	case rule.ActionWebhook:
		s.logger.Info("webhook action triggered, delivery not implemented",
			"scan_id", sc.ID.String(),
			"status", string(sc.Status),
		)
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// executeEmail sends one message per recipient. Recipients come from the
// project's notification emails, falling back to the configured admin list.
func (s *RuleService) executeEmail(ctx context.Context, action rule.Action, sc *scan.Scan, proj *project.Project) error {
	if s.email == nil {
		s.logger.Warn("email action skipped, no email sender configured", "scan_id", sc.ID.String())
		return nil
	}

	recipients := proj.NotificationEmails
	if len(recipients) == 0 {
		recipients = s.cfg.AdminEmails
	}
	if len(recipients) == 0 {
		s.logger.Warn("email action skipped, no recipients", "scan_id", sc.ID.String())
		return nil
	}

	threshold := actionThreshold(action)
	subject, body := s.buildEmail(sc, proj, threshold)

	var firstErr error
	for _, to := range recipients {
		if err := s.email.SendEmail(ctx, to, subject, body); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to %s: %w", to, err)
		}
	}
	return firstErr
}

func (s *RuleService) buildEmail(sc *scan.Scan, proj *project.Project, threshold int) (subject, body string) {
	url := s.detailsURL(sc)

	switch {
	case sc.Status == scan.StatusFailed || sc.Status == scan.StatusTimeout:
		subject = fmt.Sprintf("Dependency scan of %s %s", proj.Name, sc.Status)
		body = fmt.Sprintf("The dependency scan of %s did not finish (status: %s).", proj.Name, sc.Status)
	case sc.Status == scan.StatusCompleted && sc.VulnerabilityCount > threshold:
		subject = fmt.Sprintf("%d vulnerabilities found in %s", sc.VulnerabilityCount, proj.Name)
		body = fmt.Sprintf("The dependency scan of %s finished with %d vulnerabilities, above the configured threshold of %d.",
			proj.Name, sc.VulnerabilityCount, threshold)
	case sc.Status == scan.StatusCompleted:
		subject = fmt.Sprintf("Dependency scan of %s completed", proj.Name)
		body = fmt.Sprintf("The dependency scan of %s finished with %d vulnerabilities.", proj.Name, sc.VulnerabilityCount)
	default:
		subject = fmt.Sprintf("Dependency scan of %s is %s", proj.Name, sc.Status)
		body = fmt.Sprintf("The dependency scan of %s is currently %s.", proj.Name, sc.Status)
	}

	if url != "" {
		body += "\n\nDetails: " + url
	}
	return subject, body
}

// executeChat builds one status-appropriate message and sends it to the
// chat channel. Statuses outside the mapping produce no message.
func (s *RuleService) executeChat(ctx context.Context, action rule.Action, sc *scan.Scan, proj *project.Project) error {
	if s.chat == nil {
		s.logger.Warn("chat action skipped, no chat sender configured", "scan_id", sc.ID.String())
		return nil
	}

	msg := s.buildChatMessage(sc, proj, actionThreshold(action))
	if msg == nil {
		return nil
	}
	return s.chat.SendChatNotification(ctx, *msg)
}

func (s *RuleService) buildChatMessage(sc *scan.Scan, proj *project.Project, threshold int) *notification.Message {
	fields := map[string]string{
		"Project": proj.Name,
		"Status":  string(sc.Status),
	}
	if sc.Branch != "" {
		fields["Branch"] = sc.Branch
	}
	url := s.detailsURL(sc)

	switch {
	case sc.Status == scan.StatusFailed || sc.Status == scan.StatusTimeout:
		return &notification.Message{
			Title:    fmt.Sprintf("Dependency scan of %s %s", proj.Name, sc.Status),
			Body:     "The scan did not finish. Check the provider status and retry.",
			Severity: notification.SeverityHigh,
			URL:      url,
			Fields:   fields,
		}
	case sc.Status == scan.StatusCompleted && sc.VulnerabilityCount > threshold:
		fields["Vulnerabilities"] = fmt.Sprintf("%d", sc.VulnerabilityCount)
		return &notification.Message{
			Title:    fmt.Sprintf("%d vulnerabilities found in %s", sc.VulnerabilityCount, proj.Name),
			Body:     fmt.Sprintf("The scan finished with %d vulnerabilities, above the threshold of %d.", sc.VulnerabilityCount, threshold),
			Severity: notification.SeverityCritical,
			URL:      url,
			Fields:   fields,
		}
	case sc.Status == scan.StatusCompleted:
		fields["Vulnerabilities"] = fmt.Sprintf("%d", sc.VulnerabilityCount)
		return &notification.Message{
			Title:    fmt.Sprintf("Dependency scan of %s completed", proj.Name),
			Body:     fmt.Sprintf("The scan finished with %d vulnerabilities.", sc.VulnerabilityCount),
			Severity: notification.SeverityInfo,
			URL:      url,
			Fields:   fields,
		}
	case sc.Status == scan.StatusUploaded || sc.Status == scan.StatusQueued || sc.Status == scan.StatusRunning:
		return &notification.Message{
			Title:    fmt.Sprintf("Dependency scan of %s in progress", proj.Name),
			Body:     fmt.Sprintf("The scan is currently %s.", sc.Status),
			Severity: notification.SeverityInfo,
			URL:      url,
			Fields:   fields,
		}
	default:
		return nil
	}
}

func (s *RuleService) detailsURL(sc *scan.Scan) string {
	if s.cfg.DetailsBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/scans/%s", s.cfg.DetailsBaseURL, sc.ID)
}

// actionThreshold reads the vulnerability threshold from an action payload,
// defaulting when absent or unparseable.
func actionThreshold(action rule.Action) int {
	if len(action.Payload) == 0 {
		return defaultEmailThreshold
	}
	var p rule.ThresholdPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil || p.Threshold <= 0 {
		return defaultEmailThreshold
	}
	return p.Threshold
}
