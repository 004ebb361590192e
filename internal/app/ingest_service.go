package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/internal/metrics"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
	"github.com/depsentry/api/pkg/domain/vulnerability"
	"github.com/depsentry/api/pkg/logger"
)

// IngestService turns a completed provider result into persisted
// vulnerabilities and per-file results.
type IngestService struct {
	scanRepo scan.Repository
	fileRepo scanfile.Repository
	writer   BatchWriter
	logger   *logger.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(scanRepo scan.Repository, fileRepo scanfile.Repository, writer BatchWriter, log *logger.Logger) *IngestService {
	return &IngestService{
		scanRepo: scanRepo,
		fileRepo: fileRepo,
		writer:   writer,
		logger:   log.With("service", "ingest"),
	}
}

// fileSnapshot is the per-file result snapshot stored at ingestion.
type fileSnapshot struct {
	VulnerabilityCount int    `json:"vulnerability_count"`
	Provider           string `json:"provider,omitempty"`
}

// Ingest persists the normalized result for a scan: the vulnerability batch
// and one result row per uploaded file, written in a single transaction,
// then the scan's summary and recomputed vulnerability count. The scan
// status is left untouched; the caller transitions it afterwards.
func (s *IngestService) Ingest(ctx context.Context, sc *scan.Scan, raw json.RawMessage, result *provider.NormalizedResult) error {
	vulns := make([]*vulnerability.Vulnerability, 0, len(result.Vulnerabilities))
	for _, nv := range result.Vulnerabilities {
		v := vulnerability.New(sc.ID, nv.Title, nv.CVE, nv.Score)
		v.SetPackage(nv.PackageName, nv.PackageVersion, nv.Ecosystem)
		v.SetReferences(nv.References)
		vulns = append(vulns, v)
	}

	files, err := s.fileRepo.ListByScan(ctx, sc.ID)
	if err != nil {
		return fmt.Errorf("list scan files: %w", err)
	}

	snapshot, err := json.Marshal(fileSnapshot{
		VulnerabilityCount: result.VulnerabilityCount,
		Provider:           sc.Provider,
	})
	if err != nil {
		return fmt.Errorf("marshal file snapshot: %w", err)
	}

	results := make([]*scanfile.Result, 0, len(files))
	for _, f := range files {
		results = append(results, scanfile.NewResult(f.ID, sc.ID, scanfile.ResultStatusAnalyzed, snapshot))
	}

	if err := s.writer.WriteBatch(ctx, vulns, results); err != nil {
		return fmt.Errorf("write ingestion batch: %w", err)
	}

	sc.SetResult(raw, result.VulnerabilityCount)
	if err := s.scanRepo.Update(ctx, sc); err != nil {
		return fmt.Errorf("update scan result: %w", err)
	}

	for _, v := range vulns {
		metrics.VulnerabilitiesIngestedTotal.WithLabelValues(v.Severity.String()).Inc()
	}

	s.logger.Info("ingested scan result",
		"scan_id", sc.ID.String(),
		"vulnerabilities", len(vulns),
		"file_results", len(results),
	)
	return nil
}
