package approval

import (
	"slices"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/models"
)

// MatchRule returns the first rule whose every specified condition holds for
// the submission attributes, or nil when no rule matches. The caller passes
// rules pre-sorted by ascending priority then creation time; an unset
// condition field imposes no constraint on that dimension.
//
// A nil result means "no approval required", which is distinct from a
// matched rule whose actions say RequiresApproval=false.
func MatchRule(rules []models.ApprovalRule, amount decimal.Decimal, category, vendor, submitterRole string) *models.ApprovalRule {
	for i := range rules {
		if ruleMatches(&rules[i], amount, category, vendor, submitterRole) {
			return &rules[i]
		}
	}
	return nil
}

func ruleMatches(rule *models.ApprovalRule, amount decimal.Decimal, category, vendor, submitterRole string) bool {
	if !rule.IsActive {
		return false
	}
	cond := rule.Conditions

	if cond.MinAmount != nil && amount.LessThan(*cond.MinAmount) {
		return false
	}
	if len(cond.Categories) > 0 && !slices.Contains(cond.Categories, category) {
		return false
	}
	// The vendor constraint only applies when the submission's vendor is known.
	if len(cond.Vendors) > 0 && vendor != "" && !slices.Contains(cond.Vendors, vendor) {
		return false
	}
	if len(cond.SubmitterRoles) > 0 && !slices.Contains(cond.SubmitterRoles, submitterRole) {
		return false
	}
	return true
}
