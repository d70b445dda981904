package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// DelegationRepository handles delegation database operations.
type DelegationRepository struct {
	db database.PGXDB
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db database.PGXDB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// Create adds a new delegation.
func (r *DelegationRepository) Create(ctx context.Context, d *models.Delegation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = models.DelegationStatusActive
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO delegations (
			id, delegator_id, delegate_to_id, company_id,
			start_date, end_date, max_amount, categories, reason, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, d.ID, d.DelegatorID, d.DelegateToID, d.CompanyID,
		d.StartDate, d.EndDate, d.MaxAmount, d.Categories, d.Reason, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create delegation: %w", err)
	}
	return nil
}

// GetByID retrieves a delegation by ID.
func (r *DelegationRepository) GetByID(ctx context.Context, id string) (*models.Delegation, error) {
	d, err := scanDelegation(r.db.QueryRow(ctx, `
		SELECT id, delegator_id, delegate_to_id, company_id,
		       start_date, end_date, max_amount, categories, reason, status,
		       created_at, updated_at
		FROM delegations WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delegation: %w", err)
	}
	return d, nil
}

// ListActiveForDelegate returns the active delegations granting authority to
// a user at the given instant. Constraint checks (amount, category, who the
// delegator is) happen in the engine against the concrete request.
func (r *DelegationRepository) ListActiveForDelegate(ctx context.Context, companyID, delegateToID int64, at time.Time) ([]models.Delegation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, delegator_id, delegate_to_id, company_id,
		       start_date, end_date, max_amount, categories, reason, status,
		       created_at, updated_at
		FROM delegations
		WHERE company_id = $1 AND delegate_to_id = $2 AND status = 'active'
		  AND start_date <= $3 AND end_date >= $3
		ORDER BY created_at ASC
	`, companyID, delegateToID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list delegations: %w", err)
	}
	defer rows.Close()

	var delegations []models.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		delegations = append(delegations, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delegations: %w", err)
	}
	return delegations, nil
}

// Revoke flips an active delegation to revoked. Only the delegator may revoke.
func (r *DelegationRepository) Revoke(ctx context.Context, id string, delegatorID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE delegations SET status = 'revoked', updated_at = NOW()
		WHERE id = $1 AND delegator_id = $2 AND status = 'active'
	`, id, delegatorID)
	if err != nil {
		return fmt.Errorf("failed to revoke delegation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOutdated marks delegations whose end date has passed as expired.
// Returns the number of rows updated. Run from the periodic sweep; the
// authorization path also checks dates, so this is bookkeeping, not a guard.
func (r *DelegationRepository) ExpireOutdated(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE delegations SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND end_date < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire delegations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanDelegation(row rowScanner) (*models.Delegation, error) {
	var d models.Delegation
	if err := row.Scan(
		&d.ID, &d.DelegatorID, &d.DelegateToID, &d.CompanyID,
		&d.StartDate, &d.EndDate, &d.MaxAmount, &d.Categories, &d.Reason, &d.Status,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
