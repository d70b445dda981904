package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
	"gitlab.com/yelinaung/approval-engine/internal/repository"
)

// CreateDelegation records a time-bounded handover of approval authority.
func (e *Engine) CreateDelegation(ctx context.Context, d *models.Delegation) error {
	if err := validateDelegation(d); err != nil {
		return err
	}
	if err := e.delegations.Create(ctx, d); err != nil {
		return err
	}
	logger.Log.Info().
		Str("delegation_id", d.ID).
		Str("delegator_hash", logger.HashActorID(d.DelegatorID)).
		Str("delegate_hash", logger.HashActorID(d.DelegateToID)).
		Time("start", d.StartDate).
		Time("end", d.EndDate).
		Msg("Delegation created")
	return nil
}

// RevokeDelegation ends a delegation early. Only the delegator may revoke;
// a mismatched caller gets ErrNotFound rather than confirmation the
// delegation exists.
func (e *Engine) RevokeDelegation(ctx context.Context, id string, delegatorID int64) error {
	err := e.delegations.Revoke(ctx, id, delegatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	logger.Log.Info().
		Str("delegation_id", id).
		Str("delegator_hash", logger.HashActorID(delegatorID)).
		Msg("Delegation revoked")
	return nil
}

// ListDelegationsForDelegate returns the delegations currently usable by a
// delegate.
func (e *Engine) ListDelegationsForDelegate(ctx context.Context, companyID, delegateToID int64) ([]models.Delegation, error) {
	return e.delegations.ListActiveForDelegate(ctx, companyID, delegateToID, time.Now())
}

func validateDelegation(d *models.Delegation) error {
	if d.DelegatorID == 0 || d.DelegateToID == 0 {
		return fmt.Errorf("%w: delegator and delegate are required", ErrValidation)
	}
	if d.DelegatorID == d.DelegateToID {
		return fmt.Errorf("%w: cannot delegate to yourself", ErrValidation)
	}
	if d.CompanyID == 0 {
		return fmt.Errorf("%w: company is required", ErrValidation)
	}
	if d.StartDate.IsZero() || d.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrValidation)
	}
	if !d.EndDate.After(d.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}
	if d.MaxAmount != nil && d.MaxAmount.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: max amount must not be negative", ErrValidation)
	}
	return nil
}
