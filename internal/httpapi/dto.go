package httpapi

import (
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// submitPayload is the body of POST /submissions.
type submitPayload struct {
	ReceiptID     int64           `json:"receipt_id"`
	UserID        int64           `json:"user_id"`
	CompanyID     int64           `json:"company_id"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Vendor        string          `json:"vendor,omitempty"`
	SubmitterRole string          `json:"submitter_role,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// decidePayload is the body of POST /requests/decide and /requests/escalate.
type decidePayload struct {
	RequestID string `json:"request_id"`
	ActorID   int64  `json:"actor_id"`
	Action    string `json:"action,omitempty"`
	Comments  string `json:"comments,omitempty"`
}

// bulkDecidePayload is the body of POST /requests/bulk-decide.
type bulkDecidePayload struct {
	RequestIDs []string `json:"request_ids"`
	ActorID    int64    `json:"actor_id"`
	Action     string   `json:"action"`
	Comments   string   `json:"comments,omitempty"`
}

// rulePayload is the body of POST and PUT /rules.
type rulePayload struct {
	ID         string                `json:"id,omitempty"`
	CompanyID  int64                 `json:"company_id"`
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	IsActive   *bool                 `json:"is_active,omitempty"`
	Conditions models.RuleConditions `json:"conditions"`
	Actions    models.RuleActions    `json:"actions"`
}

func (p *rulePayload) toModel() *models.ApprovalRule {
	rule := &models.ApprovalRule{
		ID:         p.ID,
		CompanyID:  p.CompanyID,
		Name:       p.Name,
		Priority:   p.Priority,
		IsActive:   true,
		Conditions: p.Conditions,
		Actions:    p.Actions,
	}
	if p.IsActive != nil {
		rule.IsActive = *p.IsActive
	}
	return rule
}

// delegationPayload is the body of POST /delegations.
type delegationPayload struct {
	DelegatorID  int64            `json:"delegator_id"`
	DelegateToID int64            `json:"delegate_to_id"`
	CompanyID    int64            `json:"company_id"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      time.Time        `json:"end_date"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	Categories   []string         `json:"categories,omitempty"`
	Reason       string           `json:"reason,omitempty"`
}

func (p *delegationPayload) toModel() *models.Delegation {
	return &models.Delegation{
		DelegatorID:  p.DelegatorID,
		DelegateToID: p.DelegateToID,
		CompanyID:    p.CompanyID,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		MaxAmount:    p.MaxAmount,
		Categories:   p.Categories,
		Reason:       p.Reason,
	}
}

type revokeDelegationPayload struct {
	DelegationID string `json:"delegation_id"`
	DelegatorID  int64  `json:"delegator_id"`
}

type requestResponse struct {
	ID               string          `json:"id"`
	ReceiptID        int64           `json:"receipt_id"`
	UserID           int64           `json:"user_id"`
	CompanyID        int64           `json:"company_id"`
	RuleID           string          `json:"rule_id,omitempty"`
	Status           string          `json:"status"`
	CurrentApprovers []int64         `json:"current_approvers,omitempty"`
	RequestedAmount  decimal.Decimal `json:"requested_amount"`
	Category         string          `json:"category"`
	Vendor           string          `json:"vendor,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	EscalationLevel  int             `json:"escalation_level"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy       *int64          `json:"approved_by,omitempty"`
	RejectedAt       *time.Time      `json:"rejected_at,omitempty"`
	RejectedBy       *int64          `json:"rejected_by,omitempty"`
	Comments         string          `json:"comments,omitempty"`
}

func toRequestResponse(req *models.ApprovalRequest) requestResponse {
	return requestResponse{
		ID:               req.ID,
		ReceiptID:        req.ReceiptID,
		UserID:           req.UserID,
		CompanyID:        req.CompanyID,
		RuleID:           req.RuleID,
		Status:           req.Status,
		CurrentApprovers: req.CurrentApprovers,
		RequestedAmount:  req.RequestedAmount,
		Category:         req.Category,
		Vendor:           req.Vendor,
		Reason:           req.Reason,
		EscalationLevel:  req.EscalationLevel,
		DueDate:          req.DueDate,
		SubmittedAt:      req.SubmittedAt,
		ApprovedAt:       req.ApprovedAt,
		ApprovedBy:       req.ApprovedBy,
		RejectedAt:       req.RejectedAt,
		RejectedBy:       req.RejectedBy,
		Comments:         req.Comments,
	}
}

func toRequestResponses(reqs []models.ApprovalRequest) []requestResponse {
	out := make([]requestResponse, len(reqs))
	for i := range reqs {
		out[i] = toRequestResponse(&reqs[i])
	}
	return out
}

type actionResponse struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	ActorID   int64     `json:"actor_id"`
	Action    string    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toActionResponses(actions []models.ApprovalAction) []actionResponse {
	out := make([]actionResponse, len(actions))
	for i, a := range actions {
		out[i] = actionResponse{
			ID:        a.ID,
			RequestID: a.RequestID,
			ActorID:   a.ActorID,
			Action:    a.Action,
			Comment:   a.Comment,
			CreatedAt: a.CreatedAt,
		}
	}
	return out
}

type ruleResponse struct {
	ID         string                `json:"id"`
	CompanyID  int64                 `json:"company_id"`
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	IsActive   bool                  `json:"is_active"`
	Conditions models.RuleConditions `json:"conditions"`
	Actions    models.RuleActions    `json:"actions"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func toRuleResponse(rule *models.ApprovalRule) ruleResponse {
	return ruleResponse{
		ID:         rule.ID,
		CompanyID:  rule.CompanyID,
		Name:       rule.Name,
		Priority:   rule.Priority,
		IsActive:   rule.IsActive,
		Conditions: rule.Conditions,
		Actions:    rule.Actions,
		CreatedAt:  rule.CreatedAt,
		UpdatedAt:  rule.UpdatedAt,
	}
}

type configResponse struct {
	CompanyID             int64                       `json:"company_id"`
	AutoApprovalThreshold decimal.Decimal             `json:"auto_approval_threshold"`
	RequireApprovalAbove  decimal.Decimal             `json:"require_approval_above"`
	DefaultApprovers      []int64                     `json:"default_approvers,omitempty"`
	ApprovalLevels        []models.ApprovalLevel      `json:"approval_levels"`
	Notifications         models.NotificationSettings `json:"notifications"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

func toConfigResponse(cfg *models.WorkflowConfig) configResponse {
	return configResponse{
		CompanyID:             cfg.CompanyID,
		AutoApprovalThreshold: cfg.AutoApprovalThreshold,
		RequireApprovalAbove:  cfg.RequireApprovalAbove,
		DefaultApprovers:      cfg.DefaultApprovers,
		ApprovalLevels:        cfg.ApprovalLevels,
		Notifications:         cfg.Notifications,
		UpdatedAt:             cfg.UpdatedAt,
	}
}

type delegationResponse struct {
	ID           string           `json:"id"`
	DelegatorID  int64            `json:"delegator_id"`
	DelegateToID int64            `json:"delegate_to_id"`
	CompanyID    int64            `json:"company_id"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      time.Time        `json:"end_date"`
	MaxAmount    *decimal.Decimal `json:"max_amount,omitempty"`
	Categories   []string         `json:"categories,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

func toDelegationResponse(d *models.Delegation) delegationResponse {
	return delegationResponse{
		ID:           d.ID,
		DelegatorID:  d.DelegatorID,
		DelegateToID: d.DelegateToID,
		CompanyID:    d.CompanyID,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
		MaxAmount:    d.MaxAmount,
		Categories:   d.Categories,
		Reason:       d.Reason,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt,
	}
}

func toDelegationResponses(ds []models.Delegation) []delegationResponse {
	out := make([]delegationResponse, len(ds))
	for i := range ds {
		out[i] = toDelegationResponse(&ds[i])
	}
	return out
}
