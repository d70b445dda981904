package approval

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"gitlab.com/yelinaung/approval-engine/internal/models"
)

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMatchRule(t *testing.T) {
	travelOver100 := models.ApprovalRule{
		ID:       "rule-travel",
		IsActive: true,
		Conditions: models.RuleConditions{
			MinAmount:  decimalPtr("100"),
			Categories: []string{"travel"},
		},
	}
	anyOver500 := models.ApprovalRule{
		ID:       "rule-500",
		IsActive: true,
		Conditions: models.RuleConditions{
			MinAmount: decimalPtr("500"),
		},
	}
	vendorRule := models.ApprovalRule{
		ID:       "rule-vendor",
		IsActive: true,
		Conditions: models.RuleConditions{
			Vendors: []string{"Acme Corp"},
		},
	}
	roleRule := models.ApprovalRule{
		ID:       "rule-role",
		IsActive: true,
		Conditions: models.RuleConditions{
			SubmitterRoles: []string{"contractor"},
		},
	}
	unconditional := models.ApprovalRule{
		ID:       "rule-all",
		IsActive: true,
	}

	tests := []struct {
		name          string
		rules         []models.ApprovalRule
		amount        string
		category      string
		vendor        string
		submitterRole string
		wantID        string
	}{
		{
			name:   "no rules",
			amount: "250",
		},
		{
			name:     "amount below threshold",
			rules:    []models.ApprovalRule{travelOver100},
			amount:   "99.99",
			category: "travel",
		},
		{
			name:     "amount at threshold matches",
			rules:    []models.ApprovalRule{travelOver100},
			amount:   "100",
			category: "travel",
			wantID:   "rule-travel",
		},
		{
			name:     "category mismatch",
			rules:    []models.ApprovalRule{travelOver100},
			amount:   "200",
			category: "meals",
		},
		{
			name:   "first match wins over later rules",
			rules:  []models.ApprovalRule{travelOver100, anyOver500},
			amount: "600", category: "travel",
			wantID: "rule-travel",
		},
		{
			name:   "falls through to later rule",
			rules:  []models.ApprovalRule{travelOver100, anyOver500},
			amount: "600", category: "meals",
			wantID: "rule-500",
		},
		{
			name:   "vendor condition skipped when vendor unknown",
			rules:  []models.ApprovalRule{vendorRule},
			amount: "50",
			wantID: "rule-vendor",
		},
		{
			name:   "vendor mismatch",
			rules:  []models.ApprovalRule{vendorRule},
			amount: "50", vendor: "Other Inc",
		},
		{
			name:   "vendor match",
			rules:  []models.ApprovalRule{vendorRule},
			amount: "50", vendor: "Acme Corp",
			wantID: "rule-vendor",
		},
		{
			name:   "submitter role mismatch",
			rules:  []models.ApprovalRule{roleRule},
			amount: "50", submitterRole: "employee",
		},
		{
			name:   "submitter role match",
			rules:  []models.ApprovalRule{roleRule},
			amount: "50", submitterRole: "contractor",
			wantID: "rule-role",
		},
		{
			name:   "unconditional rule matches everything",
			rules:  []models.ApprovalRule{unconditional},
			amount: "0.01",
			wantID: "rule-all",
		},
		{
			name: "inactive rule never matches",
			rules: []models.ApprovalRule{{
				ID: "rule-off",
			}},
			amount: "1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchRule(tt.rules, decimal.RequireFromString(tt.amount),
				tt.category, tt.vendor, tt.submitterRole)
			if tt.wantID == "" {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tt.wantID, got.ID)
		})
	}
}

// The winner is always the earliest matching rule: no rule before it in the
// slice matches the same submission.
func TestMatchRuleFirstMatchProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		categories := []string{"travel", "meals", "office", "software"}

		n := rapid.IntRange(0, 8).Draw(t, "n")
		rules := make([]models.ApprovalRule, n)
		for i := range rules {
			rule := models.ApprovalRule{
				ID:       fmt.Sprintf("rule-%d", i),
				IsActive: rapid.Bool().Draw(t, fmt.Sprintf("active-%d", i)),
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("hasMin-%d", i)) {
				min := decimal.NewFromInt(rapid.Int64Range(0, 1000).Draw(t, fmt.Sprintf("min-%d", i)))
				rule.Conditions.MinAmount = &min
			}
			if rapid.Bool().Draw(t, fmt.Sprintf("hasCat-%d", i)) {
				rule.Conditions.Categories = []string{
					rapid.SampledFrom(categories).Draw(t, fmt.Sprintf("cat-%d", i)),
				}
			}
			rules[i] = rule
		}

		amount := decimal.NewFromInt(rapid.Int64Range(0, 1500).Draw(t, "amount"))
		category := rapid.SampledFrom(categories).Draw(t, "category")

		got := MatchRule(rules, amount, category, "", "")
		if got == nil {
			for i := range rules {
				require.False(t, ruleMatches(&rules[i], amount, category, "", ""),
					"rule %d matches but MatchRule returned nil", i)
			}
			return
		}
		for i := range rules {
			if rules[i].ID == got.ID {
				require.True(t, ruleMatches(&rules[i], amount, category, "", ""))
				break
			}
			require.False(t, ruleMatches(&rules[i], amount, category, "", ""),
				"rule %d precedes the winner and matches", i)
		}
	})
}
