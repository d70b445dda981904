package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/cache"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
	"gitlab.com/yelinaung/approval-engine/internal/repository"
)

// RuleService fronts the rule store with a best-effort cache. Reads go cache
// first; every write invalidates the tenant's cached rule list. A cache
// outage degrades to direct store reads.
type RuleService struct {
	repo  *repository.RuleRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewRuleService creates a RuleService.
func NewRuleService(repo *repository.RuleRepository, c cache.Cache, ttl time.Duration) *RuleService {
	return &RuleService{repo: repo, cache: c, ttl: ttl}
}

func rulesCacheKey(companyID int64) string {
	return fmt.Sprintf("approval:rules:%d", companyID)
}

// ListActive returns a company's active rules in evaluation order.
func (s *RuleService) ListActive(ctx context.Context, companyID int64) ([]models.ApprovalRule, error) {
	key := rulesCacheKey(companyID)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Rule cache read failed, falling back to store")
	} else if ok {
		var rules []models.ApprovalRule
		decodeErr := json.Unmarshal(data, &rules)
		if decodeErr == nil {
			return rules, nil
		}
		logger.Log.Warn().Err(decodeErr).Int64("company_id", companyID).Msg("Dropping undecodable rule cache entry")
		_ = s.cache.Delete(ctx, key)
	}

	rules, err := s.repo.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Rule cache write failed")
		}
	}
	return rules, nil
}

// Match loads the tenant's active rules and returns the first match, or nil
// when no approval is required.
func (s *RuleService) Match(ctx context.Context, companyID int64, amount decimal.Decimal, category, vendor, submitterRole string) (*models.ApprovalRule, error) {
	rules, err := s.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return MatchRule(rules, amount, category, vendor, submitterRole), nil
}

// GetByID returns one rule.
func (s *RuleService) GetByID(ctx context.Context, id string, companyID int64) (*models.ApprovalRule, error) {
	rule, err := s.repo.GetByID(ctx, id, companyID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return rule, nil
}

// Create validates and persists a new rule, then invalidates the tenant's
// cached rule list.
func (s *RuleService) Create(ctx context.Context, rule *models.ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return err
	}
	s.invalidate(ctx, rule.CompanyID)
	return nil
}

// Update validates and persists rule changes, then invalidates the cache.
// Disabling a rule goes through here with IsActive=false; rules are never
// hard-deleted while requests reference them.
func (s *RuleService) Update(ctx context.Context, rule *models.ApprovalRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return mapRepoErr(err)
	}
	s.invalidate(ctx, rule.CompanyID)
	return nil
}

func (s *RuleService) invalidate(ctx context.Context, companyID int64) {
	if err := s.cache.Delete(ctx, rulesCacheKey(companyID)); err != nil {
		logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Rule cache invalidation failed")
	}
}

func validateRule(rule *models.ApprovalRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: rule name is required", ErrValidation)
	}
	if len(rule.Name) > models.MaxRuleNameLength {
		return fmt.Errorf("%w: rule name exceeds %d characters", ErrValidation, models.MaxRuleNameLength)
	}
	if rule.CompanyID == 0 {
		return fmt.Errorf("%w: company id is required", ErrValidation)
	}
	if rule.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", ErrValidation)
	}
	if rule.Conditions.MinAmount != nil && rule.Conditions.MinAmount.IsNegative() {
		return fmt.Errorf("%w: amount threshold must not be negative", ErrValidation)
	}
	if rule.Conditions.TimeWindowHours != nil && *rule.Conditions.TimeWindowHours <= 0 {
		return fmt.Errorf("%w: time window must be positive", ErrValidation)
	}
	if rule.Actions.AutoApprove && len(rule.Actions.EscalationChain) > 0 {
		return fmt.Errorf("%w: auto-approve rules cannot carry an escalation chain", ErrValidation)
	}
	for _, role := range rule.Conditions.SubmitterRoles {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("%w: submitter role list contains an empty role", ErrValidation)
		}
	}
	return nil
}

// mapRepoErr converts the persistence layer's absence signal to the engine's
// business error.
func mapRepoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
