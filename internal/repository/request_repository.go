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

// ErrStale is returned when a conditional update matched no row because the
// request is no longer in a live state (or, for escalation, the observed
// escalation level moved underneath the caller).
var ErrStale = errors.New("request state changed")

const requestColumns = `
	id, receipt_id, user_id, company_id, rule_id, status, current_approvers,
	requested_amount, category, vendor, reason, escalation_level,
	due_date, last_reminder_at, submitted_at,
	approved_at, approved_by, rejected_at, rejected_by, comments, updated_at`

// RequestRepository handles approval request database operations. All state
// transitions are compare-and-swap updates conditioned on a live status so
// two concurrent approvers can never both succeed on the same request.
type RequestRepository struct {
	db database.PGXDB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db database.PGXDB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new approval request. The caller decides the initial
// status (pending, or auto_approved with ApprovedAt already set).
func (r *RequestRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO approval_requests (
			id, receipt_id, user_id, company_id, rule_id, status, current_approvers,
			requested_amount, category, vendor, reason, escalation_level,
			due_date, approved_at, approved_by, comments
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING submitted_at, updated_at
	`, req.ID, req.ReceiptID, req.UserID, req.CompanyID, nullableID(req.RuleID),
		req.Status, req.CurrentApprovers, req.RequestedAmount, req.Category,
		req.Vendor, req.Reason, req.EscalationLevel, req.DueDate,
		req.ApprovedAt, req.ApprovedBy, req.Comments,
	).Scan(&req.SubmittedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

// ListPendingForApprover returns the live requests a user is currently
// authorized to act on, oldest first.
func (r *RequestRepository) ListPendingForApprover(ctx context.Context, companyID, approverID int64) ([]models.ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE company_id = $1 AND status IN ('pending', 'escalated') AND $2 = ANY(current_approvers)
		ORDER BY submitted_at ASC, id ASC
	`, companyID, approverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// ListOverdue returns live requests whose due date has passed, oldest first.
func (r *RequestRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE status IN ('pending', 'escalated') AND due_date IS NOT NULL AND due_date < $1
		ORDER BY due_date ASC, id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// Approve transitions a live request to approved. The WHERE clause is the
// optimistic concurrency guard: it is conditioned on a live status AND the
// escalation level the caller authorized against, so a concurrent escalation
// (which re-routes approval authority) invalidates the write even though the
// row stays live. Zero rows is reported as ErrStale for the caller to
// classify.
func (r *RequestRepository) Approve(ctx context.Context, id string, observedLevel int, actorID int64, comments string) (*models.ApprovalRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `
		UPDATE approval_requests SET
			status = 'approved',
			approved_at = NOW(),
			approved_by = $3,
			comments = CASE WHEN $4 = '' THEN comments ELSE $4 END,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escalated') AND escalation_level = $2
		RETURNING `+requestColumns, id, observedLevel, actorID, comments))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to approve request: %w", err)
	}
	return req, nil
}

// Reject transitions a live request to rejected under the same guard as
// Approve.
func (r *RequestRepository) Reject(ctx context.Context, id string, observedLevel int, actorID int64, comments string) (*models.ApprovalRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `
		UPDATE approval_requests SET
			status = 'rejected',
			rejected_at = NOW(),
			rejected_by = $3,
			comments = CASE WHEN $4 = '' THEN comments ELSE $4 END,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escalated') AND escalation_level = $2
		RETURNING `+requestColumns, id, observedLevel, actorID, comments))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reject request: %w", err)
	}
	return req, nil
}

// UpdateComments records a request_info exchange on a live request without
// changing its status, under the same level guard as Approve.
func (r *RequestRepository) UpdateComments(ctx context.Context, id string, observedLevel int, comments string) (*models.ApprovalRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `
		UPDATE approval_requests SET
			comments = $3,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escalated') AND escalation_level = $2
		RETURNING `+requestColumns, id, observedLevel, comments))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update request comments: %w", err)
	}
	return req, nil
}

// Escalate advances a live request to the next tier. The update is
// conditioned on the escalation level the caller observed, so levels only
// ever increase and concurrent sweeps cannot double-escalate.
func (r *RequestRepository) Escalate(ctx context.Context, id string, observedLevel int, newApprovers []int64) (*models.ApprovalRequest, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `
		UPDATE approval_requests SET
			status = 'escalated',
			escalation_level = escalation_level + 1,
			current_approvers = $3,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'escalated') AND escalation_level = $2
		RETURNING `+requestColumns, id, observedLevel, newApprovers))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("failed to escalate request: %w", err)
	}
	return req, nil
}

// SetLastReminder records when the overdue reminder was last dispatched.
func (r *RequestRepository) SetLastReminder(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE approval_requests SET last_reminder_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to set last reminder: %w", err)
	}
	return nil
}

func scanRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var ruleID *string

	if err := row.Scan(
		&req.ID, &req.ReceiptID, &req.UserID, &req.CompanyID, &ruleID,
		&req.Status, &req.CurrentApprovers, &req.RequestedAmount, &req.Category,
		&req.Vendor, &req.Reason, &req.EscalationLevel,
		&req.DueDate, &req.LastReminderAt, &req.SubmittedAt,
		&req.ApprovedAt, &req.ApprovedBy, &req.RejectedAt, &req.RejectedBy,
		&req.Comments, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if ruleID != nil {
		req.RuleID = *ruleID
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]models.ApprovalRequest, error) {
	var requests []models.ApprovalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval requests: %w", err)
	}
	return requests, nil
}

// nullableID maps an empty string to NULL for optional uuid columns.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
