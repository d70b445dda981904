package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/yelinaung/approval-engine/internal/cache"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/models"
	"gitlab.com/yelinaung/approval-engine/internal/repository"
)

// DefaultWorkflowConfig returns the config materialized for a tenant on
// first access.
func DefaultWorkflowConfig(companyID int64) *models.WorkflowConfig {
	return &models.WorkflowConfig{
		CompanyID:             companyID,
		AutoApprovalThreshold: decimal.NewFromInt(50),
		RequireApprovalAbove:  decimal.NewFromInt(1000),
		DefaultApprovers:      []int64{},
		ApprovalLevels: []models.ApprovalLevel{
			{Threshold: decimal.NewFromInt(100), RequiredApprovers: 1, ApproverRoles: []string{"manager"}},
			{Threshold: decimal.NewFromInt(1000), RequiredApprovers: 1, ApproverRoles: []string{"finance"}},
			{Threshold: decimal.NewFromInt(10000), RequiredApprovers: 2, ApproverRoles: []string{"finance", "director"}},
		},
		Notifications: models.NotificationSettings{
			OnSubmission: true,
			OnApproval:   true,
			OnRejection:  true,
		},
	}
}

// ConfigUpdate is a partial workflow config change. Nil fields leave the
// current value untouched.
type ConfigUpdate struct {
	AutoApprovalThreshold *decimal.Decimal             `json:"autoApprovalThreshold,omitempty"`
	RequireApprovalAbove  *decimal.Decimal             `json:"requireApprovalAbove,omitempty"`
	DefaultApprovers      []int64                      `json:"defaultApprovers,omitempty"`
	ApprovalLevels        []models.ApprovalLevel       `json:"approvalLevels,omitempty"`
	Notifications         *models.NotificationSettings `json:"notifications,omitempty"`
}

// ConfigService serves per-tenant workflow configs with lazy default
// materialization and a bounded-TTL cache.
type ConfigService struct {
	repo  *repository.WorkflowConfigRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewConfigService creates a ConfigService.
func NewConfigService(repo *repository.WorkflowConfigRepository, c cache.Cache, ttl time.Duration) *ConfigService {
	return &ConfigService{repo: repo, cache: c, ttl: ttl}
}

func configCacheKey(companyID int64) string {
	return fmt.Sprintf("approval:config:%d", companyID)
}

// Get returns the tenant's workflow config: cache, then store, then
// materialize-default-and-persist. The insert is an ON CONFLICT no-op keyed
// on company_id, so concurrent cold starts converge on one row.
func (s *ConfigService) Get(ctx context.Context, companyID int64) (*models.WorkflowConfig, error) {
	key := configCacheKey(companyID)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Config cache read failed, falling back to store")
	} else if ok {
		var cfg models.WorkflowConfig
		decodeErr := json.Unmarshal(data, &cfg)
		if decodeErr == nil {
			return &cfg, nil
		}
		logger.Log.Warn().Err(decodeErr).Int64("company_id", companyID).Msg("Dropping undecodable config cache entry")
		_ = s.cache.Delete(ctx, key)
	}

	cfg, err := s.repo.Get(ctx, companyID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := s.repo.CreateIfAbsent(ctx, DefaultWorkflowConfig(companyID)); err != nil {
			return nil, err
		}
		cfg, err = s.repo.Get(ctx, companyID)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cfg); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Config cache write failed")
		}
	}
	return cfg, nil
}

// Update merges the partial update onto the current config, persists the
// merged row in one statement and invalidates the cache. Either the merged
// config fully lands or the old one stays authoritative.
func (s *ConfigService) Update(ctx context.Context, companyID int64, update ConfigUpdate) (*models.WorkflowConfig, error) {
	if err := validateConfigUpdate(update); err != nil {
		return nil, err
	}

	cfg, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if update.AutoApprovalThreshold != nil {
		cfg.AutoApprovalThreshold = *update.AutoApprovalThreshold
	}
	if update.RequireApprovalAbove != nil {
		cfg.RequireApprovalAbove = *update.RequireApprovalAbove
	}
	if update.DefaultApprovers != nil {
		cfg.DefaultApprovers = update.DefaultApprovers
	}
	if update.ApprovalLevels != nil {
		cfg.ApprovalLevels = update.ApprovalLevels
	}
	if update.Notifications != nil {
		cfg.Notifications = *update.Notifications
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, mapRepoErr(err)
	}
	if err := s.cache.Delete(ctx, configCacheKey(companyID)); err != nil {
		logger.Log.Warn().Err(err).Int64("company_id", companyID).Msg("Config cache invalidation failed")
	}
	return cfg, nil
}

func validateConfigUpdate(update ConfigUpdate) error {
	if update.AutoApprovalThreshold != nil && update.AutoApprovalThreshold.IsNegative() {
		return fmt.Errorf("%w: auto-approval threshold must not be negative", ErrValidation)
	}
	if update.RequireApprovalAbove != nil && update.RequireApprovalAbove.IsNegative() {
		return fmt.Errorf("%w: approval ceiling must not be negative", ErrValidation)
	}
	for i, level := range update.ApprovalLevels {
		if level.Threshold.IsNegative() {
			return fmt.Errorf("%w: approval level %d threshold must not be negative", ErrValidation, i)
		}
		if level.RequiredApprovers < 1 {
			return fmt.Errorf("%w: approval level %d needs at least one approver", ErrValidation, i)
		}
	}
	return nil
}
