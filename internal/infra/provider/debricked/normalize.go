package debricked

import (
	"encoding/json"

	"github.com/depsentry/api/internal/infra/provider"
	"github.com/depsentry/api/pkg/domain/scan"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

// rawStatus is the provider's upload status payload.
type rawStatus struct {
	Progress             int                 `json:"progress"`
	ScanCompleted        bool                `json:"scanCompleted"`
	VulnerabilitiesFound int                 `json:"vulnerabilitiesFound"`
	DetailsURL           string              `json:"detailsUrl"`
	AutomationRules      []rawAutomationRule `json:"automationRules"`
}

// rawAutomationRule is one provider-side automation rule with the CVE events
// that triggered it.
type rawAutomationRule struct {
	TriggerEvents []rawTriggerEvent `json:"triggerEvents"`
}

// rawTriggerEvent is one CVE event in the provider's shape. Dependency is
// the combined "name (ecosystem)" string.
type rawTriggerEvent struct {
	CVE               string   `json:"cve"`
	Name              string   `json:"name"`
	CVSS              float64  `json:"cvss"`
	Dependency        string   `json:"dependency"`
	DependencyVersion string   `json:"dependencyVersion"`
	Links             []string `json:"links"`
}

// NormalizeScanResult transforms the provider's raw status payload into the
// canonical result shape. CVE events are deduplicated by CVE id across
// rules; a payload without vulnerability fields normalizes to an empty,
// zero-count completed result.
func (c *Client) NormalizeScanResult(raw json.RawMessage) (*provider.NormalizedResult, error) {
	var status rawStatus
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, provider.NewPermanentError(ProviderCode, "decode raw result", err)
		}
	}

	scanStatus := scan.StatusRunning
	if status.ScanCompleted || status.Progress == 100 {
		scanStatus = scan.StatusCompleted
	}

	seen := make(map[string]bool)
	var vulns []provider.NormalizedVulnerability
	for _, r := range status.AutomationRules {
		for _, ev := range r.TriggerEvents {
			if ev.CVE != "" && seen[ev.CVE] {
				continue
			}
			if ev.CVE != "" {
				seen[ev.CVE] = true
			}

			name, ecosystem := vulnerability.SplitPackage(ev.Dependency)
			vulns = append(vulns, provider.NormalizedVulnerability{
				Title:          ev.Name,
				CVE:            ev.CVE,
				Score:          ev.CVSS,
				PackageName:    name,
				PackageVersion: ev.DependencyVersion,
				Ecosystem:      ecosystem,
				References:     ev.Links,
			})
		}
	}

	count := len(vulns)
	if count == 0 && status.VulnerabilitiesFound > 0 {
		count = status.VulnerabilitiesFound
	}

	return &provider.NormalizedResult{
		Status:             scanStatus,
		Vulnerabilities:    vulns,
		VulnerabilityCount: count,
	}, nil
}
