package approval

import "context"

// ReceiptStore is the engine's narrow view of the receipt service. The
// approval status written here is a denormalized projection for listings;
// the approval_requests table stays the source of truth for workflow state.
type ReceiptStore interface {
	SetApprovalStatus(ctx context.Context, receiptID int64, status string) error
}

// UserDirectory resolves company roles to user IDs, used when a matched rule
// names no explicit approvers and routing falls back to the tenant's
// approval levels.
type UserDirectory interface {
	UsersWithRole(ctx context.Context, companyID int64, role string) ([]int64, error)
}
