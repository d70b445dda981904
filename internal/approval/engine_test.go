package approval

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/approval-engine/internal/cache"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

func TestMain(m *testing.M) {
	logger.InitHashSaltForTesting("test-salt-0123456789abcdef0123456789")
	os.Exit(m.Run())
}

type recordingReceipts struct {
	mu       sync.Mutex
	statuses map[int64]string
}

func newRecordingReceipts() *recordingReceipts {
	return &recordingReceipts{statuses: make(map[int64]string)}
}

func (r *recordingReceipts) SetApprovalStatus(_ context.Context, receiptID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[receiptID] = status
	return nil
}

func (r *recordingReceipts) status(receiptID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[receiptID]
}

type recordedEvent struct {
	event      EventType
	recipients []int64
	summary    RequestSummary
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []int64, event EventType, summary RequestSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{event: event, recipients: recipients, summary: summary})
	return nil
}

func (n *recordingNotifier) byEvent(event EventType) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type staticDirectory map[string][]int64

func (d staticDirectory) UsersWithRole(_ context.Context, _ int64, role string) ([]int64, error) {
	return d[role], nil
}

type engineFixture struct {
	engine    *Engine
	receipts  *recordingReceipts
	notifier  *recordingNotifier
	directory staticDirectory
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	pool := database.TestDB(t)
	ctx := context.Background()
	require.NoError(t, database.RunMigrations(ctx, pool))
	database.CleanupTables(t, pool)

	receipts := newRecordingReceipts()
	notifier := &recordingNotifier{}
	directory := staticDirectory{
		"manager": {201, 202},
		"finance": {301},
	}
	eng := NewEngine(Deps{
		DB:              pool,
		Cache:           cache.NewMemoryCache(),
		Receipts:        receipts,
		Directory:       directory,
		Notifier:        notifier,
		RuleCacheTTL:    time.Minute,
		ConfigCacheTTL:  time.Minute,
		BulkConcurrency: 4,
	})
	return &engineFixture{engine: eng, receipts: receipts, notifier: notifier, directory: directory}
}

func mustCreateRule(t *testing.T, eng *Engine, rule *models.ApprovalRule) {
	t.Helper()
	require.NoError(t, eng.Rules().Create(context.Background(), rule))
}

func submission(receiptID int64, amount string) Submission {
	return Submission{
		ReceiptID:     receiptID,
		UserID:        100,
		CompanyID:     1,
		Amount:        decimal.RequireFromString(amount),
		Category:      "travel",
		Vendor:        "Acme Corp",
		SubmitterRole: "employee",
	}
}

func TestSubmitNoMatchingRule(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	req, err := fx.engine.Submit(ctx, submission(10, "75"))
	require.NoError(t, err)
	require.Nil(t, req)
	require.Equal(t, models.ReceiptStatusApproved, fx.receipts.status(10))
	require.Empty(t, fx.notifier.byEvent(EventSubmission))
}

func TestSubmitAutoApprove(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "small expenses auto-approve",
		Actions: models.RuleActions{
			RequiresApproval: true,
			AutoApprove:      true,
		},
	})

	req, err := fx.engine.Submit(ctx, submission(11, "75"))
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, models.RequestStatusAutoApproved, req.Status)
	require.NotNil(t, req.ApprovedAt)
	require.Equal(t, models.ReceiptStatusApproved, fx.receipts.status(11))

	// Auto-approved requests never reach an approver inbox.
	require.Empty(t, fx.notifier.byEvent(EventSubmission))
	pending, err := fx.engine.ListPendingForApprover(ctx, 1, 201)
	require.NoError(t, err)
	require.Empty(t, pending)

	// And they are terminal: no later decision may touch them.
	_, err = fx.engine.Decide(ctx, req.ID, 201, models.ActionReject, "too late")
	require.ErrorIs(t, err, ErrNotPending)
}

func TestSubmitBelowThresholdSkipsRules(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	// A rule that would catch everything; the tenant threshold outranks it.
	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "everything needs review",
		Actions: models.RuleActions{
			RequiresApproval: true,
			Approvers:        []int64{201},
			Notifications:    models.NotificationSettings{OnSubmission: true},
		},
	})

	// $25 sits below the default $50 threshold: approved without a request.
	req, err := fx.engine.Submit(ctx, submission(60, "25"))
	require.NoError(t, err)
	require.Nil(t, req)
	require.Equal(t, models.ReceiptStatusApproved, fx.receipts.status(60))
	require.Empty(t, fx.notifier.byEvent(EventSubmission))

	// The threshold amount itself is not below it and goes through the rule.
	req, err = fx.engine.Submit(ctx, submission(61, "50"))
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, models.RequestStatusPending, req.Status)
	require.Equal(t, models.ReceiptStatusPendingApproval, fx.receipts.status(61))
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	hours := 48
	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel over 100",
		Conditions: models.RuleConditions{
			MinAmount:       decimalPtr("100"),
			Categories:      []string{"travel"},
			TimeWindowHours: &hours,
		},
		Actions: models.RuleActions{
			RequiresApproval: true,
			Approvers:        []int64{201, 202},
			Notifications:    models.NotificationSettings{OnSubmission: true, OnApproval: true, OnRejection: true},
		},
	})

	req, err := fx.engine.Submit(ctx, submission(12, "250"))
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, models.RequestStatusPending, req.Status)
	require.Equal(t, []int64{201, 202}, req.CurrentApprovers)
	require.NotNil(t, req.DueDate)
	require.WithinDuration(t, time.Now().Add(48*time.Hour), *req.DueDate, time.Minute)
	require.Equal(t, models.ReceiptStatusPendingApproval, fx.receipts.status(12))

	events := fx.notifier.byEvent(EventSubmission)
	require.Len(t, events, 1)
	require.Equal(t, []int64{201, 202}, events[0].recipients)

	pending, err := fx.engine.ListPendingForApprover(ctx, 1, 201)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, req.ID, pending[0].ID)
}

func TestSubmitResolvesApproversFromConfigLevels(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	// Rule requires approval but names nobody; routing falls to the tenant's
	// approval levels, resolved through the directory.
	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "catch-all",
		Actions:   models.RuleActions{RequiresApproval: true},
	})

	req, err := fx.engine.Submit(ctx, submission(13, "250"))
	require.NoError(t, err)
	require.NotNil(t, req)
	// 250 reaches the first default tier (threshold 100, manager role).
	require.Equal(t, []int64{201, 202}, req.CurrentApprovers)

	req2, err := fx.engine.Submit(ctx, submission(14, "5000"))
	require.NoError(t, err)
	require.NotNil(t, req2)
	// 5000 reaches the finance tier.
	require.Equal(t, []int64{301}, req2.CurrentApprovers)
}

func TestDecideApprove(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions: models.RuleActions{
			RequiresApproval: true,
			Approvers:        []int64{201},
			Notifications:    models.NotificationSettings{OnApproval: true},
		},
	})
	req, err := fx.engine.Submit(ctx, submission(20, "300"))
	require.NoError(t, err)

	updated, err := fx.engine.Decide(ctx, req.ID, 201, models.ActionApprove, "looks fine")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedBy)
	require.Equal(t, int64(201), *updated.ApprovedBy)
	require.Equal(t, models.ReceiptStatusApproved, fx.receipts.status(20))

	approvals := fx.notifier.byEvent(EventApproval)
	require.Len(t, approvals, 1)
	require.Equal(t, []int64{100}, approvals[0].recipients)

	history, err := fx.engine.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, models.ActionApprove, history[0].Action)
	require.Equal(t, int64(201), history[0].ActorID)
}

func TestDecideUnauthorized(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})
	req, err := fx.engine.Submit(ctx, submission(21, "300"))
	require.NoError(t, err)

	_, err = fx.engine.Decide(ctx, req.ID, 999, models.ActionApprove, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	// The failed attempt must leave no trace in state or history.
	got, err := fx.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, got.Status)
	history, err := fx.engine.History(ctx, req.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestDecideTerminalImmutable(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201, 202}},
	})
	req, err := fx.engine.Submit(ctx, submission(22, "300"))
	require.NoError(t, err)

	first, err := fx.engine.Decide(ctx, req.ID, 201, models.ActionReject, "missing receipt")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, first.Status)

	_, err = fx.engine.Decide(ctx, req.ID, 202, models.ActionApprove, "")
	require.ErrorIs(t, err, ErrNotPending)

	got, err := fx.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, got.Status)
	require.Nil(t, got.ApprovedBy)
}

func TestDecideRequestInfoKeepsRequestLive(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})
	req, err := fx.engine.Submit(ctx, submission(23, "300"))
	require.NoError(t, err)

	updated, err := fx.engine.Decide(ctx, req.ID, 201, models.ActionRequestInfo, "need the itinerary")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, updated.Status)
	require.Equal(t, "need the itinerary", updated.Comments)

	// Still decidable afterwards.
	final, err := fx.engine.Decide(ctx, req.ID, 201, models.ActionApprove, "")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, final.Status)

	history, err := fx.engine.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, models.ActionRequestInfo, history[0].Action)
	require.Equal(t, models.ActionApprove, history[1].Action)
}

func TestEscalateWalksChain(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions: models.RuleActions{
			RequiresApproval: true,
			Approvers:        []int64{201},
			EscalationChain:  []int64{301, 401},
		},
	})
	req, err := fx.engine.Submit(ctx, submission(30, "300"))
	require.NoError(t, err)

	up1, err := fx.engine.Escalate(ctx, req.ID, 201, "no response")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusEscalated, up1.Status)
	require.Equal(t, 1, up1.EscalationLevel)
	require.Equal(t, []int64{301}, up1.CurrentApprovers)

	// The previous approver lost authority with the handover.
	_, err = fx.engine.Decide(ctx, req.ID, 201, models.ActionApprove, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	up2, err := fx.engine.Escalate(ctx, req.ID, 301, "")
	require.NoError(t, err)
	require.Equal(t, 2, up2.EscalationLevel)
	require.Equal(t, []int64{401}, up2.CurrentApprovers)

	// Chain exhausted.
	_, err = fx.engine.Escalate(ctx, req.ID, 401, "")
	require.ErrorIs(t, err, ErrMaxEscalationReached)

	// An escalated request is still decidable by the current tier.
	final, err := fx.engine.Decide(ctx, req.ID, 401, models.ActionApprove, "")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, final.Status)

	escalations := fx.notifier.byEvent(EventEscalation)
	require.Len(t, escalations, 2)
	require.Equal(t, []int64{301}, escalations[0].recipients)
	require.Equal(t, []int64{401}, escalations[1].recipients)
}

func TestEscalateWithoutChain(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})
	req, err := fx.engine.Submit(ctx, submission(31, "300"))
	require.NoError(t, err)

	_, err = fx.engine.Escalate(ctx, req.ID, 201, "")
	require.ErrorIs(t, err, ErrNoEscalationChain)
}

func TestBulkDecideIsolatesFailures(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})

	reqA, err := fx.engine.Submit(ctx, submission(40, "300"))
	require.NoError(t, err)
	reqB, err := fx.engine.Submit(ctx, submission(41, "300"))
	require.NoError(t, err)
	reqC, err := fx.engine.Submit(ctx, submission(42, "300"))
	require.NoError(t, err)

	// Pre-decide one so it fails with not_pending inside the batch.
	_, err = fx.engine.Decide(ctx, reqB.ID, 201, models.ActionReject, "")
	require.NoError(t, err)

	result, err := fx.engine.BulkDecide(ctx,
		[]string{reqA.ID, reqB.ID, reqC.ID, "00000000-0000-0000-0000-000000000000"},
		201, models.ActionApprove, "batch")
	require.NoError(t, err)

	require.ElementsMatch(t, []string{reqA.ID, reqC.ID}, result.Successful)
	require.Len(t, result.Failed, 2)
	kinds := map[string]string{}
	for _, f := range result.Failed {
		kinds[f.RequestID] = f.Kind
	}
	require.Equal(t, FailureNotPending, kinds[reqB.ID])
	require.Equal(t, FailureNotFound, kinds["00000000-0000-0000-0000-000000000000"])

	gotA, err := fx.engine.GetRequest(ctx, reqA.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, gotA.Status)
	gotB, err := fx.engine.GetRequest(ctx, reqB.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, gotB.Status)
}

func TestDelegationAuthorizesWithinBounds(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})

	maxAmount := decimal.RequireFromString("500")
	delegation := &models.Delegation{
		DelegatorID:  201,
		DelegateToID: 555,
		CompanyID:    1,
		StartDate:    time.Now().Add(-time.Hour),
		EndDate:      time.Now().Add(24 * time.Hour),
		MaxAmount:    &maxAmount,
	}
	require.NoError(t, fx.engine.CreateDelegation(ctx, delegation))

	over, err := fx.engine.Submit(ctx, submission(50, "600"))
	require.NoError(t, err)
	within, err := fx.engine.Submit(ctx, submission(51, "450"))
	require.NoError(t, err)

	// $600 exceeds the delegation ceiling.
	_, err = fx.engine.Decide(ctx, over.ID, 555, models.ActionApprove, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	// $450 is within bounds; the audit trail names the delegate.
	updated, err := fx.engine.Decide(ctx, within.ID, 555, models.ActionApprove, "")
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, updated.Status)
	require.Equal(t, int64(555), *updated.ApprovedBy)

	history, err := fx.engine.History(ctx, within.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, int64(555), history[0].ActorID)
}

func TestRevokedDelegationStopsAuthorizing(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	})
	delegation := &models.Delegation{
		DelegatorID:  201,
		DelegateToID: 555,
		CompanyID:    1,
		StartDate:    time.Now().Add(-time.Hour),
		EndDate:      time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, fx.engine.CreateDelegation(ctx, delegation))

	// Only the delegator may revoke.
	require.ErrorIs(t, fx.engine.RevokeDelegation(ctx, delegation.ID, 555), ErrNotFound)
	require.NoError(t, fx.engine.RevokeDelegation(ctx, delegation.ID, 201))

	req, err := fx.engine.Submit(ctx, submission(52, "100"))
	require.NoError(t, err)
	_, err = fx.engine.Decide(ctx, req.ID, 555, models.ActionApprove, "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateDelegationValidation(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	base := models.Delegation{
		DelegatorID:  201,
		DelegateToID: 555,
		CompanyID:    1,
		StartDate:    time.Now(),
		EndDate:      time.Now().Add(time.Hour),
	}

	self := base
	self.DelegateToID = 201
	require.ErrorIs(t, fx.engine.CreateDelegation(ctx, &self), ErrValidation)

	backwards := base
	backwards.EndDate = base.StartDate.Add(-time.Hour)
	require.ErrorIs(t, fx.engine.CreateDelegation(ctx, &backwards), ErrValidation)

	negative := base
	ceiling := decimal.RequireFromString("-1")
	negative.MaxAmount = &ceiling
	require.ErrorIs(t, fx.engine.CreateDelegation(ctx, &negative), ErrValidation)
}

func TestSweepEscalatesOverdueAndReminds(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	hours := 1
	mustCreateRule(t, fx.engine, &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel with chain",
		Conditions: models.RuleConditions{
			Categories:      []string{"travel"},
			TimeWindowHours: &hours,
		},
		Actions: models.RuleActions{
			RequiresApproval: true,
			Approvers:        []int64{201},
			EscalationChain:  []int64{301},
			Notifications:    models.NotificationSettings{ReminderIntervalHours: 1},
		},
	})

	req, err := fx.engine.Submit(ctx, submission(60, "300"))
	require.NoError(t, err)

	// Force the deadline into the past.
	pool := database.TestDB(t)
	_, err = pool.Exec(ctx,
		`UPDATE approval_requests SET due_date = NOW() - INTERVAL '2 hours' WHERE id = $1`, req.ID)
	require.NoError(t, err)

	fx.engine.sweepOnce(ctx)

	got, err := fx.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusEscalated, got.Status)
	require.Equal(t, 1, got.EscalationLevel)
	require.Equal(t, []int64{301}, got.CurrentApprovers)

	// The pass also reminded the then-current approvers.
	reminders := fx.notifier.byEvent(EventReminder)
	require.Len(t, reminders, 1)
	require.Equal(t, []int64{201}, reminders[0].recipients)

	// The chain is exhausted and the reminder interval has not elapsed, so
	// further passes change nothing.
	fx.engine.sweepOnce(ctx)
	require.Len(t, fx.notifier.byEvent(EventReminder), 1)

	after, err := fx.engine.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, after.LastReminderAt)
}

func TestRuleUpdateInvalidatesCache(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	rule := &models.ApprovalRule{
		CompanyID: 1,
		IsActive:  true,
		Name:      "travel",
		Actions:   models.RuleActions{RequiresApproval: true, Approvers: []int64{201}},
	}
	mustCreateRule(t, fx.engine, rule)

	// Warm the cache.
	active, err := fx.engine.Rules().ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)

	rule.IsActive = false
	require.NoError(t, fx.engine.Rules().Update(ctx, rule))

	active, err = fx.engine.Rules().ListActive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, active)

	// With the only rule disabled, new submissions need no approval.
	req, err := fx.engine.Submit(ctx, submission(70, "300"))
	require.NoError(t, err)
	require.Nil(t, req)
}
