package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/order-settlement-and-commission/internal/commission"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
)

// The rule store is a plain repository: resolution logic lives in the
// commission package, which consumes this through the RuleRepository
// interface.

func (r *Repository) CreateRule(ctx context.Context, rule domain.CommissionRule) error {
	if !commission.ValidRate(rule.Rate) {
		return errors.Wrapf(domain.ErrValidation, "rate %v", rule.Rate)
	}
	if rule.RuleType != domain.RuleTypeDefault && rule.ReferenceID == nil {
		return errors.Wrapf(domain.ErrValidation, "rule type %s requires a reference id", rule.RuleType)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO commission_rules (id, rule_type, reference_id, rate, active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, rule.ID, string(rule.RuleType), rule.ReferenceID, rule.Rate, rule.Active, rule.Description)
	return errors.Wrap(err, "create commission rule")
}

func (r *Repository) GetRule(ctx context.Context, id uuid.UUID) (*domain.CommissionRule, error) {
	return r.scanRule(r.pool.QueryRow(ctx, `
		SELECT id, rule_type, reference_id, rate, active, description, created_at, updated_at
		FROM commission_rules WHERE id = $1
	`, id))
}

func (r *Repository) ListRules(ctx context.Context) ([]domain.CommissionRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, rule_type, reference_id, rate, active, description, created_at, updated_at
		FROM commission_rules ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.CommissionRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// UpdateRule changes rate, description or active flag. Order items
// created under the old rate keep their snapshot untouched.
func (r *Repository) UpdateRule(ctx context.Context, id uuid.UUID, rate float64, description string, active bool) error {
	if !commission.ValidRate(rate) {
		return errors.Wrapf(domain.ErrValidation, "rate %v", rate)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE commission_rules SET rate = $2, description = $3, active = $4, updated_at = now() WHERE id = $1
	`, id, rate, description, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE commission_rules SET active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindActiveRule implements commission.RuleRepository. Multiple active
// rules may exist for the same scope; the oldest one wins.
func (r *Repository) FindActiveRule(ctx context.Context, ruleType domain.RuleType, referenceID uuid.UUID) (*domain.CommissionRule, error) {
	return r.scanRule(r.pool.QueryRow(ctx, `
		SELECT id, rule_type, reference_id, rate, active, description, created_at, updated_at
		FROM commission_rules
		WHERE rule_type = $1 AND reference_id = $2 AND active = true
		ORDER BY created_at ASC LIMIT 1
	`, string(ruleType), referenceID))
}

func (r *Repository) FindActiveDefaultRule(ctx context.Context) (*domain.CommissionRule, error) {
	return r.scanRule(r.pool.QueryRow(ctx, `
		SELECT id, rule_type, reference_id, rate, active, description, created_at, updated_at
		FROM commission_rules
		WHERE rule_type = $1 AND active = true
		ORDER BY created_at ASC LIMIT 1
	`, string(domain.RuleTypeDefault)))
}

func (r *Repository) scanRule(row pgx.Row) (*domain.CommissionRule, error) {
	var rule domain.CommissionRule
	var ruleType string
	err := row.Scan(&rule.ID, &ruleType, &rule.ReferenceID, &rule.Rate, &rule.Active, &rule.Description, &rule.CreatedAt, &rule.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rule.RuleType = domain.RuleType(ruleType)
	return &rule, nil
}
