// Package provider defines the contract every external scanning provider
// adapter implements, and the registry resolving adapters by code.
package provider

import (
	"context"
	"encoding/json"

	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/scanfile"
)

// UploadOptions carries optional upload metadata forwarded to the provider.
type UploadOptions struct {
	RepositoryName string
	CommitSHA      string
	Branch         string
}

// UploadResult is the outcome of uploading files and creating a remote scan.
type UploadResult struct {
	RemoteUploadID string
	RemoteFileIDs  []string
	Raw            json.RawMessage
}

// StatusResult is one normalized poll response. ScanCompleted is true
// exactly when Progress is 100.
type StatusResult struct {
	Progress             int
	ScanCompleted        bool
	VulnerabilitiesFound int
	DetailsURL           string
	Raw                  json.RawMessage
}

// NormalizedVulnerability is the canonical shape of one CVE event.
type NormalizedVulnerability struct {
	Title          string
	CVE            string
	Score          float64
	PackageName    string
	PackageVersion string
	Ecosystem      string
	References     []string
}

// NormalizedResult is the canonical shape of one completed provider result.
type NormalizedResult struct {
	Status             scan.Status
	Vulnerabilities    []NormalizedVulnerability
	VulnerabilityCount int
}

// Adapter is the per-provider gateway consumed by the orchestration core.
type Adapter interface {
	// Code returns the stable provider identifier used as the mapping
	// namespace.
	Code() string

	// UploadAndCreateScan uploads each file from its local path, persists
	// per-file mappings, resolves a single remote upload id (reusing a
	// previously stored mapping when the provider returns none on a retried
	// call), persists the ci_upload mapping and finishes the upload
	// provider-side. Any upload-stage error aborts the whole call.
	UploadAndCreateScan(ctx context.Context, sc *scan.Scan, files []*scanfile.File, opts UploadOptions) (*UploadResult, error)

	// PollScanStatus asks the provider for the current state of a remote
	// upload.
	PollScanStatus(ctx context.Context, remoteUploadID string) (*StatusResult, error)

	// NormalizeScanResult transforms one provider-specific raw result into
	// the canonical shape. Pure; no I/O.
	NormalizeScanResult(raw json.RawMessage) (*NormalizedResult, error)
}
