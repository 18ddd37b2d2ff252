package commission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
)

// RuleRepository is the read surface the resolver needs. FindActiveRule
// returns the first active rule for (ruleType, referenceID), or
// domain.ErrNotFound when none exists. referenceID is ignored for the
// default rule type.
type RuleRepository interface {
	FindActiveRule(ctx context.Context, ruleType domain.RuleType, referenceID uuid.UUID) (*domain.CommissionRule, error)
	FindActiveDefaultRule(ctx context.Context) (*domain.CommissionRule, error)
}

// SaleContext identifies the scopes a sale may match rules against.
// Any of the IDs may be nil.
type SaleContext struct {
	SellerID   *uuid.UUID
	EventID    *uuid.UUID
	CategoryID *uuid.UUID
}

// Resolution is the frozen outcome of resolving one price.
// Amount + NetAmount == Price always holds.
type Resolution struct {
	Rate      float64
	Amount    float64
	NetAmount float64
	Source    string
}

// Resolver picks the effective commission rate for a sale. Strategies are
// evaluated in a fixed order and each match overwrites the previous one,
// so the last matching strategy wins: a category rule overrides an event
// rule, which overrides a seller rule. This is deliberate; do not reorder
// without a product decision.
type Resolver struct {
	rules       RuleRepository
	defaultRate float64
	strategies  []strategy
}

type strategy struct {
	source string
	rule   func(ctx context.Context, sale SaleContext) (*domain.CommissionRule, error)
}

func NewResolver(rules RuleRepository, defaultRate float64) *Resolver {
	r := &Resolver{rules: rules, defaultRate: defaultRate}
	r.strategies = []strategy{
		{source: "seller", rule: r.matchScoped(domain.RuleTypeSeller, func(s SaleContext) *uuid.UUID { return s.SellerID })},
		{source: "event", rule: r.matchScoped(domain.RuleTypeEvent, func(s SaleContext) *uuid.UUID { return s.EventID })},
		{source: "category", rule: r.matchScoped(domain.RuleTypeCategory, func(s SaleContext) *uuid.UUID { return s.CategoryID })},
	}
	return r
}

func (r *Resolver) matchScoped(ruleType domain.RuleType, ref func(SaleContext) *uuid.UUID) func(ctx context.Context, sale SaleContext) (*domain.CommissionRule, error) {
	return func(ctx context.Context, sale SaleContext) (*domain.CommissionRule, error) {
		id := ref(sale)
		if id == nil {
			return nil, nil
		}
		rule, err := r.rules.FindActiveRule(ctx, ruleType, *id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return rule, err
	}
}

// Resolve never fails for a positive price: absence of matching rules is
// normal and falls back to the platform default.
func (r *Resolver) Resolve(ctx context.Context, price float64, sale SaleContext) (Resolution, error) {
	if price <= 0 {
		return Resolution{}, domain.ErrValidation
	}

	rate := r.defaultRate
	source := "default"

	for _, s := range r.strategies {
		rule, err := s.rule(ctx, sale)
		if err != nil {
			return Resolution{}, err
		}
		if rule != nil {
			rate = rule.Rate
			source = s.source
		}
	}

	// A stored default rule only applies when no scoped rule matched.
	if source == "default" {
		rule, err := r.rules.FindActiveDefaultRule(ctx)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return Resolution{}, err
		}
		if rule != nil {
			rate = rule.Rate
		}
	}

	amount := price * rate / 100
	return Resolution{
		Rate:      rate,
		Amount:    amount,
		NetAmount: price - amount,
		Source:    source,
	}, nil
}

// ValidRate bounds a commission percentage.
func ValidRate(rate float64) bool {
	return rate >= 0 && rate <= 100
}
