// Package notification provides clients for delivering notifications to
// external channels. Delivery failures are reported to the caller and
// logged; they never propagate as failures of the triggering scan.
package notification

import (
	"context"
)

// Message represents one chat notification message.
type Message struct {
	Title    string            // Message title
	Body     string            // Main message body
	Severity string            // critical, high, medium, low, info
	URL      string            // Optional link to scan details
	Fields   map[string]string // Additional fields to display
}

// ChatSender delivers chat notifications.
type ChatSender interface {
	// SendChatNotification delivers one chat message.
	SendChatNotification(ctx context.Context, msg Message) error
}

// EmailSender delivers plain emails.
type EmailSender interface {
	// SendEmail delivers one email to a single recipient.
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Severity constants.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// SeverityColor returns a hex color for the given severity.
func SeverityColor(severity string) string {
	switch severity {
	case SeverityCritical:
		return "#dc2626"
	case SeverityHigh:
		return "#ea580c"
	case SeverityMedium:
		return "#ca8a04"
	case SeverityLow:
		return "#2563eb"
	default:
		return "#6b7280"
	}
}
