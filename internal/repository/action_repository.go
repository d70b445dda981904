package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// ActionRepository appends and reads the immutable approval audit trail.
// Append is the only mutation: records are never updated or deleted.
type ActionRepository struct {
	db database.PGXDB
}

// NewActionRepository creates a new ActionRepository.
func NewActionRepository(db database.PGXDB) *ActionRepository {
	return &ActionRepository{db: db}
}

// Append inserts one audit record.
func (r *ActionRepository) Append(ctx context.Context, action *models.ApprovalAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO approval_actions (id, request_id, actor_id, action, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, action.ID, action.RequestID, action.ActorID, action.Action, action.Comment,
	).Scan(&action.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append approval action: %w", err)
	}
	return nil
}

// ListByRequest returns a request's audit trail oldest-first.
func (r *ActionRepository) ListByRequest(ctx context.Context, requestID string) ([]models.ApprovalAction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, actor_id, action, comment, created_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval actions: %w", err)
	}
	defer rows.Close()

	var actions []models.ApprovalAction
	for rows.Next() {
		var a models.ApprovalAction
		if err := rows.Scan(&a.ID, &a.RequestID, &a.ActorID, &a.Action, &a.Comment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval actions: %w", err)
	}
	return actions, nil
}
