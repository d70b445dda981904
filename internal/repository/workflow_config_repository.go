package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// WorkflowConfigRepository handles per-tenant workflow config rows.
type WorkflowConfigRepository struct {
	db database.PGXDB
}

// NewWorkflowConfigRepository creates a new WorkflowConfigRepository.
func NewWorkflowConfigRepository(db database.PGXDB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

// Get retrieves a company's workflow config.
func (r *WorkflowConfigRepository) Get(ctx context.Context, companyID int64) (*models.WorkflowConfig, error) {
	cfg, err := scanWorkflowConfig(r.db.QueryRow(ctx, `
		SELECT company_id, auto_approval_threshold, require_approval_above,
		       default_approvers, approval_levels, notifications, created_at, updated_at
		FROM workflow_configs WHERE company_id = $1
	`, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow config: %w", err)
	}
	return cfg, nil
}

// CreateIfAbsent inserts a config row unless one already exists. The primary
// key on company_id makes concurrent first-access materialization safe: the
// losing writer's insert is a no-op and both callers re-read the same row.
func (r *WorkflowConfigRepository) CreateIfAbsent(ctx context.Context, cfg *models.WorkflowConfig) error {
	levelsJSON, err := json.Marshal(cfg.ApprovalLevels)
	if err != nil {
		return fmt.Errorf("failed to marshal approval levels: %w", err)
	}
	notificationsJSON, err := json.Marshal(cfg.Notifications)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_configs (
			company_id, auto_approval_threshold, require_approval_above,
			default_approvers, approval_levels, notifications
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id) DO NOTHING
	`, cfg.CompanyID, cfg.AutoApprovalThreshold, cfg.RequireApprovalAbove,
		cfg.DefaultApprovers, levelsJSON, notificationsJSON)
	if err != nil {
		return fmt.Errorf("failed to create workflow config: %w", err)
	}
	return nil
}

// Update persists the full merged config in one statement; it either fully
// lands or the previous row stays authoritative.
func (r *WorkflowConfigRepository) Update(ctx context.Context, cfg *models.WorkflowConfig) error {
	levelsJSON, err := json.Marshal(cfg.ApprovalLevels)
	if err != nil {
		return fmt.Errorf("failed to marshal approval levels: %w", err)
	}
	notificationsJSON, err := json.Marshal(cfg.Notifications)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		UPDATE workflow_configs SET
			auto_approval_threshold = $2,
			require_approval_above = $3,
			default_approvers = $4,
			approval_levels = $5,
			notifications = $6,
			updated_at = NOW()
		WHERE company_id = $1
		RETURNING updated_at
	`, cfg.CompanyID, cfg.AutoApprovalThreshold, cfg.RequireApprovalAbove,
		cfg.DefaultApprovers, levelsJSON, notificationsJSON,
	).Scan(&cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update workflow config: %w", err)
	}
	return nil
}

func scanWorkflowConfig(row rowScanner) (*models.WorkflowConfig, error) {
	var cfg models.WorkflowConfig
	var levelsJSON, notificationsJSON []byte

	if err := row.Scan(
		&cfg.CompanyID, &cfg.AutoApprovalThreshold, &cfg.RequireApprovalAbove,
		&cfg.DefaultApprovers, &levelsJSON, &notificationsJSON,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(levelsJSON, &cfg.ApprovalLevels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval levels: %w", err)
	}
	if err := json.Unmarshal(notificationsJSON, &cfg.Notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}
	return &cfg, nil
}
