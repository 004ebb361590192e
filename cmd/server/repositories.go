package main

import (
	"github.com/depsentry/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Project        *postgres.ProjectRepository
	Scan           *postgres.ScanRepository
	ScanFile       *postgres.ScanFileRepository
	ScanFileResult *postgres.ScanFileResultRepository
	Vulnerability  *postgres.VulnerabilityRepository
	Mapping        *postgres.MappingRepository
	Rule           *postgres.RuleRepository
	Ingestion      *postgres.IngestionRepository
}

// NewRepositories initializes all repositories.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Project:        postgres.NewProjectRepository(db),
		Scan:           postgres.NewScanRepository(db),
		ScanFile:       postgres.NewScanFileRepository(db),
		ScanFileResult: postgres.NewScanFileResultRepository(db),
		Vulnerability:  postgres.NewVulnerabilityRepository(db),
		Mapping:        postgres.NewMappingRepository(db),
		Rule:           postgres.NewRuleRepository(db),
		Ingestion:      postgres.NewIngestionRepository(db),
	}
}
