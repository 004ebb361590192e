// Package scanfile contains the uploaded-file entities attached to a scan.
package scanfile

import (
	"encoding/json"
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// File represents one uploaded dependency artifact belonging to a scan.
// Files are created by the upload handler; this subsystem only reads them.
type File struct {
	ID       shared.ID
	ScanID   shared.ID
	Filename string
	Path     string // Local path of the stored artifact
	Size     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResultStatus is the per-file outcome recorded at ingestion.
type ResultStatus string

const (
	ResultStatusAnalyzed ResultStatus = "analyzed"
	ResultStatusSkipped  ResultStatus = "skipped"
	ResultStatusErrored  ResultStatus = "errored"
)

// Result represents the per-file outcome of one completed scan result.
// Results are owned and created only by the ingestion step.
type Result struct {
	ID     shared.ID
	FileID shared.ID
	ScanID shared.ID

	Status ResultStatus

	// Snapshot is the provider payload slice relevant to this file at the
	// time the result was ingested.
	Snapshot json.RawMessage

	CreatedAt time.Time
}

// NewResult creates a file result for an ingested scan.
func NewResult(fileID, scanID shared.ID, status ResultStatus, snapshot json.RawMessage) *Result {
	return &Result{
		ID:        shared.NewID(),
		FileID:    fileID,
		ScanID:    scanID,
		Status:    status,
		Snapshot:  snapshot,
		CreatedAt: time.Now(),
	}
}
