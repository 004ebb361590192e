// Package mapping contains the durable association between internal entities
// and provider-side identifiers.
package mapping

import (
	"encoding/json"
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Type is the kind of provider association.
type Type string

const (
	// TypeFile links an uploaded local file to its remote file id.
	TypeFile Type = "file"

	// TypeCIUpload links a scan to the remote upload that drives it. At most
	// one per scan; it makes provider-start idempotent across retries and
	// restarts.
	TypeCIUpload Type = "ci_upload"
)

// IsValid checks if the mapping type is a valid value.
func (t Type) IsValid() bool {
	return t == TypeFile || t == TypeCIUpload
}

// LinkedType identifies the internal entity kind a mapping points at.
type LinkedType string

const (
	LinkedScan LinkedType = "scan"
	LinkedFile LinkedType = "file"
)

// Mapping associates (provider, type, external id) with an internal entity.
// Created by the provider adapter during upload; read by the poller to
// resolve the remote scan id; never deleted by this subsystem.
type Mapping struct {
	ID         shared.ID
	Provider   string
	Type       Type
	ExternalID string

	LinkedType LinkedType
	LinkedID   shared.ID

	RawPayload json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a mapping record.
func New(provider string, typ Type, externalID string, linkedType LinkedType, linkedID shared.ID, raw json.RawMessage) (*Mapping, error) {
	if provider == "" {
		return nil, shared.NewDomainError("VALIDATION", "provider is required", shared.ErrValidation)
	}
	if !typ.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid mapping type", shared.ErrValidation)
	}
	if externalID == "" {
		return nil, shared.NewDomainError("VALIDATION", "external_id is required", shared.ErrValidation)
	}

	now := time.Now()
	return &Mapping{
		ID:         shared.NewID(),
		Provider:   provider,
		Type:       typ,
		ExternalID: externalID,
		LinkedType: linkedType,
		LinkedID:   linkedID,
		RawPayload: raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
