package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunMigrations creates the database schema. Statements are idempotent so the
// list can be re-run on every startup.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS approval_rules (
			id UUID PRIMARY KEY,
			company_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			conditions JSONB NOT NULL DEFAULT '{}',
			actions JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_approval_rules_company_active
			ON approval_rules(company_id, is_active)`,

		`CREATE TABLE IF NOT EXISTS approval_requests (
			id UUID PRIMARY KEY,
			receipt_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			company_id BIGINT NOT NULL,
			rule_id UUID REFERENCES approval_rules(id),
			status TEXT NOT NULL DEFAULT 'pending',
			current_approvers BIGINT[] NOT NULL DEFAULT '{}',
			requested_amount DECIMAL(12, 2) NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			vendor TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			escalation_level INTEGER NOT NULL DEFAULT 0,
			due_date TIMESTAMPTZ,
			last_reminder_at TIMESTAMPTZ,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			approved_at TIMESTAMPTZ,
			approved_by BIGINT,
			rejected_at TIMESTAMPTZ,
			rejected_by BIGINT,
			comments TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// A receipt has at most one open request at a time.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_approval_requests_open_receipt
			ON approval_requests(receipt_id) WHERE status IN ('pending', 'escalated')`,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_company_status
			ON approval_requests(company_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_due
			ON approval_requests(due_date) WHERE status IN ('pending', 'escalated')`,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_approvers
			ON approval_requests USING GIN (current_approvers)`,

		`CREATE TABLE IF NOT EXISTS approval_actions (
			id UUID PRIMARY KEY,
			request_id UUID NOT NULL REFERENCES approval_requests(id),
			actor_id BIGINT NOT NULL,
			action TEXT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_approval_actions_request
			ON approval_actions(request_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS delegations (
			id UUID PRIMARY KEY,
			delegator_id BIGINT NOT NULL,
			delegate_to_id BIGINT NOT NULL,
			company_id BIGINT NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			max_amount DECIMAL(12, 2),
			categories TEXT[],
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_delegations_delegate
			ON delegations(company_id, delegate_to_id, status)`,

		`CREATE TABLE IF NOT EXISTS workflow_configs (
			company_id BIGINT PRIMARY KEY,
			auto_approval_threshold DECIMAL(12, 2) NOT NULL,
			require_approval_above DECIMAL(12, 2) NOT NULL,
			default_approvers BIGINT[] NOT NULL DEFAULT '{}',
			approval_levels JSONB NOT NULL DEFAULT '[]',
			notifications JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}
