// Package project contains the project (repository-under-scan) entity. The
// orchestration core only reads it, for rule scoping and notification
// recipients.
package project

import (
	"time"

	"github.com/depsentry/api/pkg/domain/shared"
)

// Project represents one repository whose dependency snapshots get scanned.
type Project struct {
	ID            shared.ID
	Name          string
	DefaultBranch string

	// NotificationEmails are the operator-configured recipients for email
	// actions. When empty, the engine falls back to the default admin list.
	NotificationEmails []string

	CreatedAt time.Time
	UpdatedAt time.Time
}
