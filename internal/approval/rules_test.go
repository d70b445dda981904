package approval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/approval-engine/internal/models"
)

func TestValidateRule(t *testing.T) {
	valid := func() *models.ApprovalRule {
		return &models.ApprovalRule{
			CompanyID: 1,
			Name:      "travel over 100",
			IsActive:  true,
			Actions:   models.RuleActions{RequiresApproval: true},
		}
	}

	require.NoError(t, validateRule(valid()))

	t.Run("name required", func(t *testing.T) {
		rule := valid()
		rule.Name = "   "
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("name too long", func(t *testing.T) {
		rule := valid()
		rule.Name = strings.Repeat("x", models.MaxRuleNameLength+1)
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("company required", func(t *testing.T) {
		rule := valid()
		rule.CompanyID = 0
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("negative priority", func(t *testing.T) {
		rule := valid()
		rule.Priority = -1
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("negative amount threshold", func(t *testing.T) {
		rule := valid()
		rule.Conditions.MinAmount = decimalPtr("-10")
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("non-positive time window", func(t *testing.T) {
		rule := valid()
		zero := 0
		rule.Conditions.TimeWindowHours = &zero
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("auto-approve with escalation chain", func(t *testing.T) {
		rule := valid()
		rule.Actions.AutoApprove = true
		rule.Actions.EscalationChain = []int64{301}
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})

	t.Run("empty submitter role", func(t *testing.T) {
		rule := valid()
		rule.Conditions.SubmitterRoles = []string{"manager", ""}
		require.ErrorIs(t, validateRule(rule), ErrValidation)
	})
}
