// Package vulnerability contains the vulnerability entity extracted from
// completed provider results.
package vulnerability

import (
	"regexp"
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Severity represents the severity bucket derived from a CVSS-like score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// SeverityFromScore derives the severity bucket from a numeric CVSS-like
// score.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 9:
		return SeverityCritical
	case score >= 7:
		return SeverityHigh
	case score >= 4:
		return SeverityMedium
	case score > 0:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Vulnerability represents one distinct CVE event extracted from a completed
// provider result. Created exclusively during result ingestion; after that
// only the Ignored flag may change, by operator action.
type Vulnerability struct {
	ID     shared.ID
	ScanID shared.ID

	Title string
	CVE   string

	Severity Severity
	Score    float64

	PackageName    string
	PackageVersion string
	Ecosystem      string

	References []string

	Ignored bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a vulnerability for a scan, deriving severity from the score.
func New(scanID shared.ID, title, cve string, score float64) *Vulnerability {
	now := time.Now()
	return &Vulnerability{
		ID:        shared.NewID(),
		ScanID:    scanID,
		Title:     title,
		CVE:       cve,
		Severity:  SeverityFromScore(score),
		Score:     score,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetPackage records the affected package, version and ecosystem.
func (v *Vulnerability) SetPackage(name, version, ecosystem string) {
	v.PackageName = name
	v.PackageVersion = version
	v.Ecosystem = ecosystem
	v.UpdatedAt = time.Now()
}

// SetReferences records the reference links.
func (v *Vulnerability) SetReferences(refs []string) {
	v.References = refs
	v.UpdatedAt = time.Now()
}

// packagePattern matches the provider's combined "name (ecosystem)" form.
var packagePattern = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)$`)

// SplitPackage splits a combined "name (ecosystem)" string into package name
// and ecosystem. If the pattern does not match, the whole string is the
// package name and ecosystem is empty.
func SplitPackage(combined string) (name, ecosystem string) {
	m := packagePattern.FindStringSubmatch(combined)
	if m == nil {
		return combined, ""
	}
	return m[1], m[2]
}
