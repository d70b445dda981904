// Package repository implements the persistence layer for the approval
// workflow engine on PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RuleRepository handles approval rule database operations.
type RuleRepository struct {
	db database.PGXDB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db database.PGXDB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create adds a new approval rule. Rules are never hard-deleted; disable them
// via IsActive instead so requests can keep referencing them.
func (r *RuleRepository) Create(ctx context.Context, rule *models.ApprovalRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule actions: %w", err)
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO approval_rules (id, company_id, name, priority, is_active, conditions, actions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, rule.ID, rule.CompanyID, rule.Name, rule.Priority, rule.IsActive,
		conditionsJSON, actionsJSON,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval rule: %w", err)
	}
	return nil
}

// Update modifies an existing rule.
func (r *RuleRepository) Update(ctx context.Context, rule *models.ApprovalRule) error {
	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal rule actions: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		UPDATE approval_rules SET
			name = $3,
			priority = $4,
			is_active = $5,
			conditions = $6,
			actions = $7,
			updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at
	`, rule.ID, rule.CompanyID, rule.Name, rule.Priority, rule.IsActive,
		conditionsJSON, actionsJSON,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update approval rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by ID within a company.
func (r *RuleRepository) GetByID(ctx context.Context, id string, companyID int64) (*models.ApprovalRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx, `
		SELECT id, company_id, name, priority, is_active, conditions, actions, created_at, updated_at
		FROM approval_rules
		WHERE id = $1 AND company_id = $2
	`, id, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval rule: %w", err)
	}
	return rule, nil
}

// ListActive returns a company's active rules ordered by ascending priority,
// ties broken by creation time. This is the matcher's evaluation order.
func (r *RuleRepository) ListActive(ctx context.Context, companyID int64) ([]models.ApprovalRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, name, priority, is_active, conditions, actions, created_at, updated_at
		FROM approval_rules
		WHERE company_id = $1 AND is_active = TRUE
		ORDER BY priority ASC, created_at ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval rules: %w", err)
	}
	defer rows.Close()

	var rules []models.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval rules: %w", err)
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.ApprovalRule, error) {
	var rule models.ApprovalRule
	var conditionsJSON, actionsJSON []byte

	if err := row.Scan(
		&rule.ID, &rule.CompanyID, &rule.Name, &rule.Priority, &rule.IsActive,
		&conditionsJSON, &actionsJSON, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule conditions: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule actions: %w", err)
	}
	return &rule, nil
}
