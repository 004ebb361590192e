package rule

import (
	"context"
)

// Repository defines the read-only interface for rule configuration.
type Repository interface {
	// ListEnabledByScope lists enabled rules with the exact scope, actions
	// included.
	ListEnabledByScope(ctx context.Context, scope Scope) ([]*Rule, error)

	// List lists all rules, actions included.
	List(ctx context.Context) ([]*Rule, error)
}
