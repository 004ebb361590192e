package main

import (
	"fmt"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/jobs"
	"github.com/depsentry/api/internal/infra/notification"
	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/internal/infra/provider/debricked"
	"github.com/depsentry/api/internal/infra/redis"
	"github.com/depsentry/api/pkg/logger"
)

// Services holds all application service instances.
type Services struct {
	Lifecycle *app.LifecycleService
	Ingest    *app.IngestService
	Poll      *app.PollService
	Scan      *app.ScanService
	Rule      *app.RuleService

	Providers *provider.Registry
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	JobClient   *jobs.Client
}

// NewServices initializes all application services.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	registry, err := newProviderRegistry(cfg, repos, log)
	if err != nil {
		return nil, err
	}

	publisher := jobs.NewEventPublisherAdapter(deps.JobClient)
	scheduler := jobs.NewPollSchedulerAdapter(deps.JobClient)
	progress := redis.NewProgressRecorderAdapter(
		redis.NewPollProgressCache(deps.RedisClient),
	)

	lifecycle := app.NewLifecycleService(repos.Scan, publisher, log)
	ingest := app.NewIngestService(repos.Scan, repos.ScanFile, repos.Ingestion, log)

	poll := app.NewPollService(
		repos.Scan,
		repos.Mapping,
		registry,
		lifecycle,
		ingest,
		scheduler,
		progress,
		cfg.Poller,
		log,
	)

	scanSvc := app.NewScanService(
		repos.Scan,
		repos.ScanFile,
		registry,
		lifecycle,
		scheduler,
		cfg.Poller.Interval,
		log,
	)

	ruleSvc, err := newRuleService(cfg, repos, log)
	if err != nil {
		return nil, err
	}

	return &Services{
		Lifecycle: lifecycle,
		Ingest:    ingest,
		Poll:      poll,
		Scan:      scanSvc,
		Rule:      ruleSvc,
		Providers: registry,
	}, nil
}

// newProviderRegistry constructs every configured provider adapter. The
// default provider must end up registered or scans cannot start.
func newProviderRegistry(cfg *config.Config, repos *Repositories, log *logger.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry(cfg.Poller.DefaultProvider)

	if cfg.Debricked.Enabled() {
		client, err := debricked.New(debricked.Config{
			BaseURL: cfg.Debricked.BaseURL,
			Token:   cfg.Debricked.Token,
			Timeout: cfg.Debricked.Timeout,
		}, repos.Mapping, log)
		if err != nil {
			return nil, fmt.Errorf("init debricked adapter: %w", err)
		}
		registry.Register(client)
		log.Info("provider adapter registered", "provider", debricked.ProviderCode)
	}

	if _, err := registry.Get(cfg.Poller.DefaultProvider); err != nil {
		return nil, fmt.Errorf("default provider %q is not configured: %w", cfg.Poller.DefaultProvider, err)
	}

	return registry, nil
}

// newRuleService wires the notification channels that are configured;
// actions targeting an unconfigured channel are logged and skipped.
func newRuleService(cfg *config.Config, repos *Repositories, log *logger.Logger) (*app.RuleService, error) {
	var chat notification.ChatSender
	if cfg.Notify.ChatWebhookURL != "" {
		slack, err := notification.NewSlackClient(cfg.Notify.ChatWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("init slack client: %w", err)
		}
		chat = slack
		log.Info("chat notifications enabled")
	}

	var email notification.EmailSender
	if cfg.SMTP.Enabled() {
		smtp, err := notification.NewSMTPClient(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("init smtp client: %w", err)
		}
		email = smtp
		log.Info("email notifications enabled", "host", cfg.SMTP.Host)
	}

	return app.NewRuleService(
		repos.Scan,
		repos.Project,
		repos.Rule,
		chat,
		email,
		cfg.Notify,
		log,
	), nil
}
