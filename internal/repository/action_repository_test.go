package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

func TestActionRepository_AppendAndList(t *testing.T) {
	db, ctx := setupRepoTest(t)
	requestRepo := NewRequestRepository(db)
	actionRepo := NewActionRepository(db)

	req := &models.ApprovalRequest{
		ReceiptID:        4001,
		UserID:           5,
		CompanyID:        1,
		CurrentApprovers: []int64{10},
		RequestedAmount:  decimal.NewFromInt(100),
	}
	require.NoError(t, requestRepo.Create(ctx, req))

	first := &models.ApprovalAction{
		RequestID: req.ID,
		ActorID:   10,
		Action:    models.ActionRequestInfo,
		Comment:   "need the itemized receipt",
	}
	require.NoError(t, actionRepo.Append(ctx, first))
	require.NotEmpty(t, first.ID)
	require.False(t, first.CreatedAt.IsZero())

	second := &models.ApprovalAction{
		RequestID: req.ID,
		ActorID:   10,
		Action:    models.ActionApprove,
	}
	require.NoError(t, actionRepo.Append(ctx, second))

	actions, err := actionRepo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, models.ActionRequestInfo, actions[0].Action)
	require.Equal(t, "need the itemized receipt", actions[0].Comment)
	require.Equal(t, models.ActionApprove, actions[1].Action)

	t.Run("unknown request has empty trail", func(t *testing.T) {
		actions, err := actionRepo.ListByRequest(ctx, "9c7b36b1-9397-4e4a-b6b8-1f8f0aa1e8d0")
		require.NoError(t, err)
		require.Empty(t, actions)
	})
}
