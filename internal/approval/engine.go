package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/cache"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
	"gitlab.com/yelinaung/approval-engine/internal/repository"
)

// Submission is the receipt snapshot handed to the engine once OCR and
// categorization have finished. Amount, category and vendor are frozen here;
// later receipt edits do not affect an open request.
type Submission struct {
	ReceiptID     int64
	UserID        int64
	CompanyID     int64
	Amount        decimal.Decimal
	Category      string
	Vendor        string
	SubmitterRole string
	Reason        string
}

// Deps wires the engine's collaborators. DB and Cache are required; nil
// Receipts/Directory/Notifier degrade to no-ops (with logging where it
// matters).
type Deps struct {
	DB              database.PGXDB
	Cache           cache.Cache
	Receipts        ReceiptStore
	Directory       UserDirectory
	Notifier        Notifier
	RuleCacheTTL    time.Duration
	ConfigCacheTTL  time.Duration
	BulkConcurrency int
}

// Engine owns the approval request lifecycle: creation, decisions,
// escalation, delegation checks and bulk processing.
type Engine struct {
	requests    *repository.RequestRepository
	actions     *repository.ActionRepository
	delegations *repository.DelegationRepository
	rules       *RuleService
	config      *ConfigService
	receipts    ReceiptStore
	directory   UserDirectory
	notifier    Notifier

	bulkConcurrency int
}

// NewEngine builds an Engine and its repositories from the shared pool.
func NewEngine(d Deps) *Engine {
	notifier := d.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	concurrency := d.BulkConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		requests:        repository.NewRequestRepository(d.DB),
		actions:         repository.NewActionRepository(d.DB),
		delegations:     repository.NewDelegationRepository(d.DB),
		rules:           NewRuleService(repository.NewRuleRepository(d.DB), d.Cache, d.RuleCacheTTL),
		config:          NewConfigService(repository.NewWorkflowConfigRepository(d.DB), d.Cache, d.ConfigCacheTTL),
		receipts:        d.Receipts,
		directory:       d.Directory,
		notifier:        notifier,
		bulkConcurrency: concurrency,
	}
}

// Rules exposes the rule service for the API layer.
func (e *Engine) Rules() *RuleService { return e.rules }

// Config exposes the workflow config service for the API layer.
func (e *Engine) Config() *ConfigService { return e.config }

// Submit evaluates the tenant's workflow config and rules against the
// submission. It returns the created request, or nil when no approval is
// required (amount below the auto-approval threshold, no rule matched, or
// the matched rule does not require approval).
func (e *Engine) Submit(ctx context.Context, sub Submission) (*models.ApprovalRequest, error) {
	cfg, err := e.config.Get(ctx, sub.CompanyID)
	if err != nil {
		return nil, err
	}

	// The tenant threshold wins over rules: anything strictly below it is
	// approved without a request. The threshold amount itself goes through
	// rule matching.
	if sub.Amount.LessThan(cfg.AutoApprovalThreshold) {
		e.writeBackReceipt(ctx, sub.ReceiptID, models.ReceiptStatusApproved)
		return nil, nil
	}

	rule, err := e.rules.Match(ctx, sub.CompanyID, sub.Amount, sub.Category, sub.Vendor, sub.SubmitterRole)
	if err != nil {
		return nil, err
	}

	if rule == nil || !rule.Actions.RequiresApproval {
		e.writeBackReceipt(ctx, sub.ReceiptID, models.ReceiptStatusApproved)
		return nil, nil
	}

	req := &models.ApprovalRequest{
		ReceiptID:       sub.ReceiptID,
		UserID:          sub.UserID,
		CompanyID:       sub.CompanyID,
		RuleID:          rule.ID,
		RequestedAmount: sub.Amount,
		Category:        sub.Category,
		Vendor:          sub.Vendor,
		Reason:          sub.Reason,
	}

	if rule.Actions.AutoApprove {
		now := time.Now()
		req.Status = models.RequestStatusAutoApproved
		req.ApprovedAt = &now
		if err := e.requests.Create(ctx, req); err != nil {
			return nil, err
		}
		e.writeBackReceipt(ctx, sub.ReceiptID, models.ReceiptStatusApproved)
		return req, nil
	}

	approvers, err := e.resolveApprovers(ctx, cfg, rule, sub)
	if err != nil {
		return nil, err
	}
	req.Status = models.RequestStatusPending
	req.CurrentApprovers = approvers
	if hours := rule.Conditions.TimeWindowHours; hours != nil {
		due := time.Now().Add(time.Duration(*hours) * time.Hour)
		req.DueDate = &due
	}

	if err := e.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	e.writeBackReceipt(ctx, sub.ReceiptID, models.ReceiptStatusPendingApproval)

	if rule.Actions.Notifications.OnSubmission {
		e.notify(ctx, req.CurrentApprovers, EventSubmission, summarize(req))
	}
	return req, nil
}

// resolveApprovers returns the tier-0 approver set: the rule's explicit
// approvers, else the tenant's approval level for the amount (roles resolved
// through the directory), else the tenant's default approvers.
func (e *Engine) resolveApprovers(ctx context.Context, cfg *models.WorkflowConfig, rule *models.ApprovalRule, sub Submission) ([]int64, error) {
	if len(rule.Actions.Approvers) > 0 {
		return rule.Actions.Approvers, nil
	}

	level := pickApprovalLevel(cfg.ApprovalLevels, sub.Amount)
	if level != nil && e.directory != nil {
		var approvers []int64
		seen := make(map[int64]bool)
		for _, role := range level.ApproverRoles {
			users, err := e.directory.UsersWithRole(ctx, sub.CompanyID, role)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve role %q: %w", role, err)
			}
			for _, id := range users {
				if !seen[id] {
					seen[id] = true
					approvers = append(approvers, id)
				}
			}
		}
		if len(approvers) >= level.RequiredApprovers {
			return approvers, nil
		}
		logger.Log.Warn().
			Int64("company_id", sub.CompanyID).
			Int("resolved", len(approvers)).
			Int("required", level.RequiredApprovers).
			Msg("Approval level under-staffed, falling back to default approvers")
	}

	if len(cfg.DefaultApprovers) > 0 {
		return cfg.DefaultApprovers, nil
	}
	return nil, fmt.Errorf("%w: no approvers resolvable for company %d", ErrValidation, sub.CompanyID)
}

// pickApprovalLevel returns the highest level whose threshold the amount
// reaches, or the first level when the amount is below every threshold.
// Levels are ordered by ascending threshold.
func pickApprovalLevel(levels []models.ApprovalLevel, amount decimal.Decimal) *models.ApprovalLevel {
	if len(levels) == 0 {
		return nil
	}
	chosen := &levels[0]
	for i := range levels {
		if amount.GreaterThanOrEqual(levels[i].Threshold) {
			chosen = &levels[i]
		}
	}
	return chosen
}

// Decide applies one approver action to a request. Authorization is checked
// against the current approver set plus active delegations; the transition
// itself is a compare-and-swap so a concurrent decision or escalation makes
// this call fail cleanly instead of double-applying.
func (e *Engine) Decide(ctx context.Context, requestID string, actorID int64, action, comments string) (*models.ApprovalRequest, error) {
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

	// The write is conditioned on the escalation level the authorization saw,
	// so an escalation landing between the check and the update makes the
	// ousted approver's write miss instead of committing.
	var updated *models.ApprovalRequest
	switch action {
	case models.ActionApprove:
		updated, err = e.requests.Approve(ctx, requestID, req.EscalationLevel, actorID, comments)
	case models.ActionReject:
		updated, err = e.requests.Reject(ctx, requestID, req.EscalationLevel, actorID, comments)
	case models.ActionRequestInfo:
		updated, err = e.requests.UpdateComments(ctx, requestID, req.EscalationLevel, comments)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	if errors.Is(err, repository.ErrStale) {
		// Lost the race against another approver or the escalation sweep.
		return nil, e.classifyStale(ctx, requestID)
	}
	if err != nil {
		return nil, err
	}

	e.appendAction(ctx, &models.ApprovalAction{
		RequestID: requestID,
		ActorID:   actorID,
		Action:    action,
		Comment:   comments,
	})

	switch action {
	case models.ActionApprove:
		e.writeBackReceipt(ctx, updated.ReceiptID, models.ReceiptStatusApproved)
		e.notifyDecision(ctx, updated, EventApproval)
	case models.ActionReject:
		e.writeBackReceipt(ctx, updated.ReceiptID, models.ReceiptStatusRejected)
		e.notifyDecision(ctx, updated, EventRejection)
	}

	logger.Log.Info().
		Str("request_id", requestID).
		Str("actor_hash", logger.HashActorID(actorID)).
		Str("action", action).
		Str("status", updated.Status).
		Str("comment", logger.SanitizeComment(comments)).
		Msg("Decision applied")
	return updated, nil
}

// classifyStale re-reads a request after a failed compare-and-swap to report
// the precise business error.
func (e *Engine) classifyStale(ctx context.Context, requestID string) error {
	req, err := e.requests.GetByID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(req.Status) {
		return ErrNotPending
	}
	// Still live: the approver set or level changed underneath the caller.
	return ErrUnauthorized
}

// authorize succeeds when the actor is in the current approver set, or an
// active delegation from a current approver covers the request's amount and
// category right now. Delegation only ever adds authority.
func (e *Engine) authorize(ctx context.Context, req *models.ApprovalRequest, actorID int64) error {
	if req.HasApprover(actorID) {
		return nil
	}

	now := time.Now()
	delegations, err := e.delegations.ListActiveForDelegate(ctx, req.CompanyID, actorID, now)
	if err != nil {
		return err
	}
	for i := range delegations {
		d := &delegations[i]
		if req.HasApprover(d.DelegatorID) && d.Covers(req.RequestedAmount, req.Category, now) {
			return nil
		}
	}
	return ErrUnauthorized
}

// GetRequest returns one request.
func (e *Engine) GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	req, err := e.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return req, nil
}

// ListPendingForApprover returns the live requests a user can act on.
func (e *Engine) ListPendingForApprover(ctx context.Context, companyID, approverID int64) ([]models.ApprovalRequest, error) {
	return e.requests.ListPendingForApprover(ctx, companyID, approverID)
}

// History returns a request's append-only audit trail, oldest first.
func (e *Engine) History(ctx context.Context, requestID string) ([]models.ApprovalAction, error) {
	if _, err := e.requests.GetByID(ctx, requestID); err != nil {
		return nil, mapRepoErr(err)
	}
	return e.actions.ListByRequest(ctx, requestID)
}

// appendAction writes an audit record, logging (never failing) on error so
// an audit hiccup cannot undo a committed transition.
func (e *Engine) appendAction(ctx context.Context, action *models.ApprovalAction) {
	if err := e.actions.Append(ctx, action); err != nil {
		logger.Log.Error().Err(err).
			Str("request_id", action.RequestID).
			Str("action", action.Action).
			Msg("Failed to append audit record")
	}
}

// writeBackReceipt projects the request outcome onto the receipt store.
// The projection is best-effort; workflow state is already committed.
func (e *Engine) writeBackReceipt(ctx context.Context, receiptID int64, status string) {
	if e.receipts == nil {
		return
	}
	if err := e.receipts.SetApprovalStatus(ctx, receiptID, status); err != nil {
		logger.Log.Error().Err(err).
			Int64("receipt_id", receiptID).
			Str("status", status).
			Msg("Receipt status write-back failed")
	}
}

// notifyDecision fires the approve/reject notification when the owning
// rule's flags (or the tenant defaults, for rule-less requests) ask for it.
func (e *Engine) notifyDecision(ctx context.Context, req *models.ApprovalRequest, event EventType) {
	settings := e.notificationSettings(ctx, req)
	if event == EventApproval && !settings.OnApproval {
		return
	}
	if event == EventRejection && !settings.OnRejection {
		return
	}
	e.notify(ctx, []int64{req.UserID}, event, summarize(req))
}

func (e *Engine) notificationSettings(ctx context.Context, req *models.ApprovalRequest) models.NotificationSettings {
	if req.RuleID != "" {
		if rule, err := e.rules.GetByID(ctx, req.RuleID, req.CompanyID); err == nil {
			return rule.Actions.Notifications
		}
	}
	if cfg, err := e.config.Get(ctx, req.CompanyID); err == nil {
		return cfg.Notifications
	}
	return models.NotificationSettings{}
}

// notify dispatches fire-and-forget; failures are logged and swallowed and
// never roll back a workflow transition.
func (e *Engine) notify(ctx context.Context, recipients []int64, event EventType, summary RequestSummary) {
	if len(recipients) == 0 {
		return
	}
	if err := e.notifier.Notify(ctx, recipients, event, summary); err != nil {
		logger.Log.Warn().Err(err).
			Str("event", string(event)).
			Str("request_id", summary.RequestID).
			Msg("Notification dispatch failed")
	}
}

func summarize(req *models.ApprovalRequest) RequestSummary {
	return RequestSummary{
		RequestID:       req.ID,
		ReceiptID:       req.ReceiptID,
		CompanyID:       req.CompanyID,
		SubmitterID:     req.UserID,
		Amount:          req.RequestedAmount,
		Category:        req.Category,
		Vendor:          req.Vendor,
		Status:          req.Status,
		EscalationLevel: req.EscalationLevel,
	}
}
