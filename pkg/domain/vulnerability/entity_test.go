package vulnerability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/depsentry/api/pkg/domain/shared"
	"github.com/depsentry/api/pkg/domain/vulnerability"
)

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  vulnerability.Severity
	}{
		{10, vulnerability.SeverityCritical},
		{9.0, vulnerability.SeverityCritical},
		{8.9, vulnerability.SeverityHigh},
		{7.0, vulnerability.SeverityHigh},
		{6.9, vulnerability.SeverityMedium},
		{4.0, vulnerability.SeverityMedium},
		{3.9, vulnerability.SeverityLow},
		{0.1, vulnerability.SeverityLow},
		{0, vulnerability.SeverityInfo},
		{-1, vulnerability.SeverityInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, vulnerability.SeverityFromScore(tt.score),
			"score %v", tt.score)
	}
}

func TestSplitPackage(t *testing.T) {
	t.Run("name and ecosystem", func(t *testing.T) {
		name, eco := vulnerability.SplitPackage("lodash (npm)")
		assert.Equal(t, "lodash", name)
		assert.Equal(t, "npm", eco)
	})

	t.Run("scoped package", func(t *testing.T) {
		name, eco := vulnerability.SplitPackage("@babel/core (npm)")
		assert.Equal(t, "@babel/core", name)
		assert.Equal(t, "npm", eco)
	})

	t.Run("no ecosystem suffix", func(t *testing.T) {
		name, eco := vulnerability.SplitPackage("requests")
		assert.Equal(t, "requests", name)
		assert.Empty(t, eco)
	})

	t.Run("empty string", func(t *testing.T) {
		name, eco := vulnerability.SplitPackage("")
		assert.Empty(t, name)
		assert.Empty(t, eco)
	})
}

func TestNew(t *testing.T) {
	scanID := shared.NewID()
	v := vulnerability.New(scanID, "Prototype Pollution", "CVE-2020-8203", 7.4)

	assert.Equal(t, scanID, v.ScanID)
	assert.Equal(t, vulnerability.SeverityHigh, v.Severity)
	assert.False(t, v.ID.IsZero())

	v.SetPackage("lodash", "4.17.15", "npm")
	assert.Equal(t, "lodash", v.PackageName)
	assert.Equal(t, "npm", v.Ecosystem)
}
