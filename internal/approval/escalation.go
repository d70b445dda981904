package approval

import (
	"context"
	"errors"
	"time"

	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
	"gitlab.com/yelinaung/approval-engine/internal/repository"
)

// systemActorID marks actions taken by the overdue sweep rather than a user.
const systemActorID int64 = 0

// Escalate moves a request one tier up its rule's escalation chain on behalf
// of a current approver. The level bump is a compare-and-swap on the level
// the caller observed, so two racing escalations apply exactly once.
func (e *Engine) Escalate(ctx context.Context, requestID string, actorID int64, comments string) (*models.ApprovalRequest, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if models.IsTerminalStatus(req.Status) {
		return nil, ErrNotPending
	}
	if err := e.authorize(ctx, req, actorID); err != nil {
		return nil, err
	}
	return e.escalate(ctx, req, actorID, comments)
}

// escalate performs the level bump against the state in req. Callers have
// already checked liveness and (for user-initiated calls) authorization.
func (e *Engine) escalate(ctx context.Context, req *models.ApprovalRequest, actorID int64, comments string) (*models.ApprovalRequest, error) {
	chain, err := e.escalationChain(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNoEscalationChain
	}
	newLevel := req.EscalationLevel + 1
	if newLevel > len(chain) {
		return nil, ErrMaxEscalationReached
	}

	updated, err := e.requests.Escalate(ctx, req.ID, req.EscalationLevel, []int64{chain[newLevel-1]})
	if errors.Is(err, repository.ErrStale) {
		return nil, e.classifyStale(ctx, req.ID)
	}
	if err != nil {
		return nil, err
	}

	e.appendAction(ctx, &models.ApprovalAction{
		RequestID: req.ID,
		ActorID:   actorID,
		Action:    models.ActionEscalate,
		Comment:   comments,
	})
	e.notify(ctx, updated.CurrentApprovers, EventEscalation, summarize(updated))

	logger.Log.Info().
		Str("request_id", req.ID).
		Int("escalation_level", updated.EscalationLevel).
		Msg("Request escalated")
	return updated, nil
}

// escalationChain returns the owning rule's escalation chain, or nil when the
// request has no rule or the rule carries no chain.
func (e *Engine) escalationChain(ctx context.Context, req *models.ApprovalRequest) ([]int64, error) {
	if req.RuleID == "" {
		return nil, nil
	}
	rule, err := e.rules.GetByID(ctx, req.RuleID, req.CompanyID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule.Actions.EscalationChain, nil
}

// RunOverdueSweep runs the periodic sweep until ctx is cancelled. Each pass
// gets its own timeout so one slow tenant cannot wedge the loop.
func (e *Engine) RunOverdueSweep(ctx context.Context, interval, timeout time.Duration) {
	logger.Log.Info().
		Dur("interval", interval).
		Msg("Starting overdue request sweep")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sweepCtx, cancel := context.WithTimeout(ctx, timeout)
		e.sweepOnce(sweepCtx)
		cancel()

		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Overdue sweep stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweepOnce expires stale delegations, then escalates or reminds about every
// overdue request. Per-request failures are logged and the sweep moves on.
func (e *Engine) sweepOnce(ctx context.Context) {
	now := time.Now()

	expired, err := e.delegations.ExpireOutdated(ctx, now)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to expire outdated delegations")
	} else if expired > 0 {
		logger.Log.Info().Int("count", expired).Msg("Expired outdated delegations")
	}

	overdue, err := e.requests.ListOverdue(ctx, now)
	if err != nil {
		logger.Log.Error().Err(err).Msg("Failed to list overdue requests")
		return
	}
	if len(overdue) == 0 {
		return
	}
	logger.Log.Info().Int("count", len(overdue)).Msg("Sweeping overdue requests")

	for i := range overdue {
		req := &overdue[i]
		e.remind(ctx, req, now)

		_, err := e.escalate(ctx, req, systemActorID, "overdue")
		switch {
		case err == nil:
		case errors.Is(err, ErrNoEscalationChain), errors.Is(err, ErrMaxEscalationReached):
			// No tier left; the reminder above is all we can do.
		case errors.Is(err, ErrNotPending), errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
			// Decided or moved since the listing; nothing to do.
		default:
			logger.Log.Error().Err(err).
				Str("request_id", req.ID).
				Msg("Failed to escalate overdue request")
		}
	}
}

// remind nudges an overdue request's current approvers, throttled by the
// rule's reminder interval.
func (e *Engine) remind(ctx context.Context, req *models.ApprovalRequest, now time.Time) {
	settings := e.notificationSettings(ctx, req)
	if settings.ReminderIntervalHours <= 0 {
		return
	}
	interval := time.Duration(settings.ReminderIntervalHours) * time.Hour
	if req.LastReminderAt != nil && now.Sub(*req.LastReminderAt) < interval {
		return
	}

	e.notify(ctx, req.CurrentApprovers, EventReminder, summarize(req))
	if err := e.requests.SetLastReminder(ctx, req.ID, now); err != nil {
		logger.Log.Error().Err(err).
			Str("request_id", req.ID).
			Msg("Failed to record reminder timestamp")
	}
}
