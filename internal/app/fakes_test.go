package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/depsentry/api/internal/app"
	"github.com/depsentry/api/internal/infra/notification"
	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/pkg/domain/mapping"
	"github.com/depsentry/api/pkg/domain/project"
	"github.com/depsentry/api/pkg/domain/rule"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

// =============================================================================
// Repository fakes
// =============================================================================

type fakeScanRepo struct {
	mu    sync.Mutex
	scans map[string]*scan.Scan

	updateStatusErr error
}

func newFakeScanRepo(scans ...*scan.Scan) *fakeScanRepo {
	r := &fakeScanRepo{scans: make(map[string]*scan.Scan)}
	for _, sc := range scans {
		r.put(sc)
	}
	return r
}

func (r *fakeScanRepo) put(sc *scan.Scan) {
	cp := *sc
	r.scans[sc.ID.String()] = &cp
}

func (r *fakeScanRepo) Create(ctx context.Context, sc *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(sc)
	return nil
}

func (r *fakeScanRepo) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scans[id.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (r *fakeScanRepo) Update(ctx context.Context, sc *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.scans[sc.ID.String()]
	if !ok {
		return shared.ErrNotFound
	}
	status := stored.Status
	cp := *sc
	cp.Status = status
	r.scans[sc.ID.String()] = &cp
	return nil
}

func (r *fakeScanRepo) UpdateStatus(ctx context.Context, id shared.ID, from, to scan.Status) error {
	if r.updateStatusErr != nil {
		return r.updateStatusErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.scans[id.String()]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Status != from {
		return shared.ErrConflict
	}
	stored.Status = to
	return nil
}

func (r *fakeScanRepo) ListByProject(ctx context.Context, projectID shared.ID, limit int) ([]*scan.Scan, error) {
	return nil, nil
}

func (r *fakeScanRepo) ListActive(ctx context.Context) ([]*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Scan
	for _, sc := range r.scans {
		if !sc.Status.IsTerminal() {
			cp := *sc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeScanRepo) status(id shared.ID) scan.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans[id.String()].Status
}

type fakeMappingRepo struct {
	mappings []*mapping.Mapping
}

func (r *fakeMappingRepo) Create(ctx context.Context, m *mapping.Mapping) error {
	r.mappings = append(r.mappings, m)
	return nil
}

func (r *fakeMappingRepo) Find(ctx context.Context, provider string, typ mapping.Type, externalID string) (*mapping.Mapping, error) {
	for _, m := range r.mappings {
		if m.Provider == provider && m.Type == typ && m.ExternalID == externalID {
			return m, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeMappingRepo) FindByLinkedEntity(ctx context.Context, provider string, typ mapping.Type, linkedType mapping.LinkedType, linkedID shared.ID) (*mapping.Mapping, error) {
	for _, m := range r.mappings {
		if m.Provider == provider && m.Type == typ && m.LinkedType == linkedType && m.LinkedID.Equals(linkedID) {
			return m, nil
		}
	}
	return nil, shared.ErrNotFound
}

type fakeFileRepo struct {
	files []*scanfile.File
}

func (r *fakeFileRepo) ListByScan(ctx context.Context, scanID shared.ID) ([]*scanfile.File, error) {
	var out []*scanfile.File
	for _, f := range r.files {
		if f.ScanID.Equals(scanID) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) GetByID(ctx context.Context, id shared.ID) (*scanfile.File, error) {
	for _, f := range r.files {
		if f.ID.Equals(id) {
			return f, nil
		}
	}
	return nil, shared.ErrNotFound
}

type fakeRuleRepo struct {
	byScope map[rule.Scope][]*rule.Rule
}

func (r *fakeRuleRepo) ListEnabledByScope(ctx context.Context, scope rule.Scope) ([]*rule.Rule, error) {
	var out []*rule.Rule
	for _, ru := range r.byScope[scope] {
		if ru.Enabled {
			out = append(out, ru)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) List(ctx context.Context) ([]*rule.Rule, error) {
	var out []*rule.Rule
	for _, rules := range r.byScope {
		out = append(out, rules...)
	}
	return out, nil
}

type fakeProjectRepo struct {
	projects map[string]*project.Project
}

func (r *fakeProjectRepo) GetByID(ctx context.Context, id shared.ID) (*project.Project, error) {
	p, ok := r.projects[id.String()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakeProjectRepo) List(ctx context.Context) ([]*project.Project, error) {
	var out []*project.Project
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// Port fakes
// =============================================================================

type fakePublisher struct {
	events []app.StatusChangedEvent
	err    error
}

func (p *fakePublisher) PublishStatusChanged(ctx context.Context, event app.StatusChangedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type scheduledPoll struct {
	ScanID  shared.ID
	Attempt int
	Delay   time.Duration
}

type fakeScheduler struct {
	polls []scheduledPoll
}

func (s *fakeScheduler) SchedulePoll(ctx context.Context, scanID shared.ID, attempt int, delay time.Duration) error {
	s.polls = append(s.polls, scheduledPoll{ScanID: scanID, Attempt: attempt, Delay: delay})
	return nil
}

type fakeProgressRecorder struct {
	records []app.PollProgress
}

func (f *fakeProgressRecorder) RecordPollProgress(ctx context.Context, scanID shared.ID, progress app.PollProgress) error {
	f.records = append(f.records, progress)
	return nil
}

type fakeBatchWriter struct {
	vulns   []*vulnerability.Vulnerability
	results []*scanfile.Result
	calls   int
}

func (w *fakeBatchWriter) WriteBatch(ctx context.Context, vulns []*vulnerability.Vulnerability, results []*scanfile.Result) error {
	w.calls++
	w.vulns = append(w.vulns, vulns...)
	w.results = append(w.results, results...)
	return nil
}

// =============================================================================
// Notification fakes
// =============================================================================

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmailSender struct {
	sent []sentEmail
	err  error
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

type fakeChatSender struct {
	sent []notification.Message
	err  error
}

func (f *fakeChatSender) SendChatNotification(ctx context.Context, msg notification.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// =============================================================================
// Provider adapter fake
// =============================================================================

type fakeAdapter struct {
	code string

	uploadResult *provider.UploadResult
	uploadErr    error

	pollResult *provider.StatusResult
	pollErr    error
	pollCalls  int

	normalized   *provider.NormalizedResult
	normalizeErr error
}

func (a *fakeAdapter) Code() string { return a.code }

func (a *fakeAdapter) UploadAndCreateScan(ctx context.Context, sc *scan.Scan, files []*scanfile.File, opts provider.UploadOptions) (*provider.UploadResult, error) {
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	return a.uploadResult, nil
}

func (a *fakeAdapter) PollScanStatus(ctx context.Context, remoteUploadID string) (*provider.StatusResult, error) {
	a.pollCalls++
	if a.pollErr != nil {
		return nil, a.pollErr
	}
	return a.pollResult, nil
}

func (a *fakeAdapter) NormalizeScanResult(raw json.RawMessage) (*provider.NormalizedResult, error) {
	if a.normalizeErr != nil {
		return nil, a.normalizeErr
	}
	return a.normalized, nil
}
