package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/depsentry/api/pkg/domain/rule"
	"github.com/depsentry/api/pkg/domain/shared"
)

// RuleRepository implements rule.Repository using PostgreSQL.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `
	id, name, enabled, trigger_type, trigger_payload, scope, created_at, updated_at
`

// ListEnabledByScope lists enabled rules with the exact scope, actions
// included.
func (r *RuleRepository) ListEnabledByScope(ctx context.Context, scope rule.Scope) ([]*rule.Rule, error) {
	query := `
		SELECT ` + ruleColumns + ` FROM notification_rules
		WHERE enabled = TRUE AND scope = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, scope.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules, err := r.rulesFromRows(rows)
	if err != nil {
		return nil, err
	}

	return r.attachActions(ctx, rules)
}

// List lists all rules, actions included.
func (r *RuleRepository) List(ctx context.Context) ([]*rule.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM notification_rules ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules, err := r.rulesFromRows(rows)
	if err != nil {
		return nil, err
	}

	return r.attachActions(ctx, rules)
}

func (r *RuleRepository) rulesFromRows(rows *sql.Rows) ([]*rule.Rule, error) {
	var rules []*rule.Rule
	for rows.Next() {
		var (
			ru          rule.Rule
			triggerType string
			payload     []byte
			scope       string
		)
		if err := rows.Scan(&ru.ID, &ru.Name, &ru.Enabled, &triggerType, &payload, &scope, &ru.CreatedAt, &ru.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ru.TriggerType = rule.TriggerType(triggerType)
		ru.TriggerPayload = payload
		ru.Scope = rule.Scope(scope)
		rules = append(rules, &ru)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return rules, nil
}

// attachActions loads the actions of every rule in the set.
func (r *RuleRepository) attachActions(ctx context.Context, rules []*rule.Rule) ([]*rule.Rule, error) {
	if len(rules) == 0 {
		return rules, nil
	}

	byID := make(map[string]*rule.Rule, len(rules))
	ids := make([]string, 0, len(rules))
	for _, ru := range rules {
		byID[ru.ID.String()] = ru
		ids = append(ids, ru.ID.String())
	}

	query := `
		SELECT id, rule_id, action_type, action_payload
		FROM notification_rule_actions
		WHERE rule_id = ANY($1)
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pqStringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list rule actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			action     rule.Action
			ruleID     shared.ID
			actionType string
			payload    []byte
		)
		if err := rows.Scan(&action.ID, &ruleID, &actionType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		action.RuleID = ruleID
		action.Type = rule.ActionType(actionType)
		action.Payload = payload

		if ru, ok := byID[ruleID.String()]; ok {
			ru.Actions = append(ru.Actions, action)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return rules, nil
}
