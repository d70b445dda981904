package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestIsTerminalStatus(t *testing.T) {
	t.Parallel()

	require.True(t, IsTerminalStatus(RequestStatusApproved))
	require.True(t, IsTerminalStatus(RequestStatusRejected))
	require.True(t, IsTerminalStatus(RequestStatusAutoApproved))
	require.False(t, IsTerminalStatus(RequestStatusPending))
	require.False(t, IsTerminalStatus(RequestStatusEscalated))
	require.False(t, IsTerminalStatus(""))
}

func TestApprovalRequestHasApprover(t *testing.T) {
	t.Parallel()

	req := &ApprovalRequest{CurrentApprovers: []int64{10, 20, 30}}
	require.True(t, req.HasApprover(20))
	require.False(t, req.HasApprover(40))

	empty := &ApprovalRequest{}
	require.False(t, empty.HasApprover(10))
}

func TestDelegationCovers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	maxAmount := decimal.NewFromInt(500)

	base := Delegation{
		Status:    DelegationStatusActive,
		StartDate: now.Add(-24 * time.Hour),
		EndDate:   now.Add(24 * time.Hour),
	}

	t.Run("unconstrained delegation covers anything in window", func(t *testing.T) {
		d := base
		require.True(t, d.Covers(decimal.NewFromInt(10000), "Travel", now))
	})

	t.Run("amount ceiling is enforced", func(t *testing.T) {
		d := base
		d.MaxAmount = &maxAmount
		require.True(t, d.Covers(decimal.NewFromInt(500), "Travel", now))
		require.False(t, d.Covers(decimal.NewFromInt(600), "Travel", now))
	})

	t.Run("category allow-list is enforced", func(t *testing.T) {
		d := base
		d.Categories = []string{"Travel", "Meals"}
		require.True(t, d.Covers(decimal.NewFromInt(50), "Meals", now))
		require.False(t, d.Covers(decimal.NewFromInt(50), "Office Supplies", now))
	})

	t.Run("outside time window", func(t *testing.T) {
		d := base
		require.False(t, d.Covers(decimal.NewFromInt(50), "Travel", now.Add(48*time.Hour)))
		require.False(t, d.Covers(decimal.NewFromInt(50), "Travel", now.Add(-48*time.Hour)))
	})

	t.Run("revoked or expired never covers", func(t *testing.T) {
		d := base
		d.Status = DelegationStatusRevoked
		require.False(t, d.Covers(decimal.NewFromInt(50), "Travel", now))
		d.Status = DelegationStatusExpired
		require.False(t, d.Covers(decimal.NewFromInt(50), "Travel", now))
	})
}
