// Package models defines the domain entities for the approval workflow engine.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request lifecycle statuses. approved, rejected and auto_approved are
// terminal; escalated behaves like pending at a higher tier.
const (
	RequestStatusPending      = "pending"
	RequestStatusApproved     = "approved"
	RequestStatusRejected     = "rejected"
	RequestStatusEscalated    = "escalated"
	RequestStatusAutoApproved = "auto_approved"
)

// IsTerminalStatus reports whether a request in the given status accepts no
// further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusAutoApproved:
		return true
	}
	return false
}

// Decision actions recorded in the audit trail.
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionRequestInfo = "request_info"
	ActionEscalate    = "escalate"
)

// Receipt approval statuses written back to the receipt store.
const (
	ReceiptStatusPendingApproval = "pending_approval"
	ReceiptStatusApproved        = "approved"
	ReceiptStatusRejected        = "rejected"
)

// Delegation statuses.
const (
	DelegationStatusActive  = "active"
	DelegationStatusExpired = "expired"
	DelegationStatusRevoked = "revoked"
)

// MaxRuleNameLength is the maximum allowed length for rule names.
const MaxRuleNameLength = 100

// RuleConditions are the optional predicates of an approval rule. A nil or
// empty field imposes no constraint on that dimension.
type RuleConditions struct {
	MinAmount       *decimal.Decimal `json:"minAmount,omitempty"`
	Categories      []string         `json:"categories,omitempty"`
	Vendors         []string         `json:"vendors,omitempty"`
	SubmitterRoles  []string         `json:"submitterRoles,omitempty"`
	TimeWindowHours *int             `json:"timeWindowHours,omitempty"`
}

// NotificationSettings control which workflow events trigger the dispatch
// hook, and how often pending-request reminders repeat.
type NotificationSettings struct {
	OnSubmission          bool `json:"onSubmission"`
	OnApproval            bool `json:"onApproval"`
	OnRejection           bool `json:"onRejection"`
	ReminderIntervalHours int  `json:"reminderIntervalHours,omitempty"`
}

// RuleActions describe what happens when a rule matches. AutoApprove
// short-circuits human review; Approvers act at tier 0 and EscalationChain
// holds the approvers for tiers 1..N.
type RuleActions struct {
	RequiresApproval bool                 `json:"requiresApproval"`
	AutoApprove      bool                 `json:"autoApprove"`
	Approvers        []int64              `json:"approvers,omitempty"`
	EscalationChain  []int64              `json:"escalationChain,omitempty"`
	Notifications    NotificationSettings `json:"notifications"`
}

// ApprovalRule is a tenant-scoped policy mapping submission attributes to an
// approval action. Rules are evaluated in ascending priority order, ties
// broken by creation time.
type ApprovalRule struct {
	ID         string
	CompanyID  int64
	Name       string
	Priority   int
	IsActive   bool
	Conditions RuleConditions
	Actions    RuleActions
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ApprovalLevel is one tier of the tenant default routing used when a matched
// rule names no explicit approvers.
type ApprovalLevel struct {
	Threshold         decimal.Decimal `json:"threshold"`
	RequiredApprovers int             `json:"requiredApprovers"`
	ApproverRoles     []string        `json:"approverRoles"`
}

// WorkflowConfig holds per-tenant workflow defaults, one row per company.
type WorkflowConfig struct {
	CompanyID             int64
	AutoApprovalThreshold decimal.Decimal
	RequireApprovalAbove  decimal.Decimal
	DefaultApprovers      []int64
	ApprovalLevels        []ApprovalLevel
	Notifications         NotificationSettings
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ApprovalRequest is one receipt's in-flight or resolved approval lifecycle.
// Amount, category and vendor are a snapshot of the receipt at submission
// time and never track later receipt edits.
type ApprovalRequest struct {
	ID               string
	ReceiptID        int64
	UserID           int64
	CompanyID        int64
	RuleID           string
	Status           string
	CurrentApprovers []int64
	RequestedAmount  decimal.Decimal
	Category         string
	Vendor           string
	Reason           string
	EscalationLevel  int
	DueDate          *time.Time
	LastReminderAt   *time.Time
	SubmittedAt      time.Time
	ApprovedAt       *time.Time
	ApprovedBy       *int64
	RejectedAt       *time.Time
	RejectedBy       *int64
	Comments         string
	UpdatedAt        time.Time
}

// HasApprover reports whether userID is in the request's current approver set.
func (r *ApprovalRequest) HasApprover(userID int64) bool {
	for _, id := range r.CurrentApprovers {
		if id == userID {
			return true
		}
	}
	return false
}

// ApprovalAction is one append-only audit record of a decision event. It is
// the authoritative history, independent of the request's current-state
// fields, and is never mutated or deleted.
type ApprovalAction struct {
	ID        string
	RequestID string
	ActorID   int64
	Action    string
	Comment   string
	CreatedAt time.Time
}

// Delegation is a time-bounded grant of approval authority from one user to
// another, optionally constrained by amount ceiling and category allow-list.
type Delegation struct {
	ID           string
	DelegatorID  int64
	DelegateToID int64
	CompanyID    int64
	StartDate    time.Time
	EndDate      time.Time
	MaxAmount    *decimal.Decimal
	Categories   []string
	Reason       string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Covers reports whether the delegation grants authority for a request with
// the given amount and category at the given instant. It does not check who
// the delegator is; callers verify the delegator against the request's
// approver set.
func (d *Delegation) Covers(amount decimal.Decimal, category string, at time.Time) bool {
	if d.Status != DelegationStatusActive {
		return false
	}
	if at.Before(d.StartDate) || at.After(d.EndDate) {
		return false
	}
	if d.MaxAmount != nil && amount.GreaterThan(*d.MaxAmount) {
		return false
	}
	if len(d.Categories) > 0 {
		found := false
		for _, c := range d.Categories {
			if c == category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
