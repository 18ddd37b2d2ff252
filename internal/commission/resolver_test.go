package commission

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
)

type memRules struct {
	rules []domain.CommissionRule
}

func (m *memRules) FindActiveRule(ctx context.Context, ruleType domain.RuleType, referenceID uuid.UUID) (*domain.CommissionRule, error) {
	for i := range m.rules {
		r := m.rules[i]
		if r.Active && r.RuleType == ruleType && r.ReferenceID != nil && *r.ReferenceID == referenceID {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRules) FindActiveDefaultRule(ctx context.Context) (*domain.CommissionRule, error) {
	for i := range m.rules {
		r := m.rules[i]
		if r.Active && r.RuleType == domain.RuleTypeDefault {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func rule(rt domain.RuleType, ref *uuid.UUID, rate float64, active bool) domain.CommissionRule {
	return domain.CommissionRule{ID: uuid.New(), RuleType: rt, ReferenceID: ref, Rate: rate, Active: active}
}

func TestResolve_PlatformDefault(t *testing.T) {
	r := NewResolver(&memRules{}, 10)

	res, err := r.Resolve(context.Background(), 1000, SaleContext{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rate != 10 || res.Amount != 100 || res.NetAmount != 900 || res.Source != "default" {
		t.Errorf("got %+v", res)
	}
}

func TestResolve_StoredDefaultRule(t *testing.T) {
	repo := &memRules{rules: []domain.CommissionRule{rule(domain.RuleTypeDefault, nil, 10, true)}}
	r := NewResolver(repo, 7)

	res, err := r.Resolve(context.Background(), 1000, SaleContext{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rate != 10 || res.Amount != 100 || res.NetAmount != 900 || res.Source != "default" {
		t.Errorf("got %+v", res)
	}
}

func TestResolve_LastMatchedWins(t *testing.T) {
	sellerID := uuid.New()
	eventID := uuid.New()
	categoryID := uuid.New()

	repo := &memRules{rules: []domain.CommissionRule{
		rule(domain.RuleTypeSeller, &sellerID, 8, true),
		rule(domain.RuleTypeEvent, &eventID, 12, true),
		rule(domain.RuleTypeCategory, &categoryID, 15, true),
	}}
	r := NewResolver(repo, 10)

	tests := []struct {
		name       string
		sale       SaleContext
		wantRate   float64
		wantSource string
	}{
		{"seller only", SaleContext{SellerID: &sellerID}, 8, "seller"},
		{"seller and event", SaleContext{SellerID: &sellerID, EventID: &eventID}, 12, "event"},
		{"seller, event and category", SaleContext{SellerID: &sellerID, EventID: &eventID, CategoryID: &categoryID}, 15, "category"},
		{"event and category", SaleContext{EventID: &eventID, CategoryID: &categoryID}, 15, "category"},
		{"no match", SaleContext{}, 10, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), 1000, tt.sale)
			if err != nil {
				t.Fatal(err)
			}
			if res.Rate != tt.wantRate || res.Source != tt.wantSource {
				t.Errorf("got rate=%v source=%q, want rate=%v source=%q", res.Rate, res.Source, tt.wantRate, tt.wantSource)
			}
		})
	}
}

func TestResolve_ScopedMatchIgnoresStoredDefault(t *testing.T) {
	sellerID := uuid.New()
	repo := &memRules{rules: []domain.CommissionRule{
		rule(domain.RuleTypeDefault, nil, 20, true),
		rule(domain.RuleTypeSeller, &sellerID, 8, true),
	}}
	r := NewResolver(repo, 10)

	res, err := r.Resolve(context.Background(), 500, SaleContext{SellerID: &sellerID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Rate != 8 || res.Source != "seller" {
		t.Errorf("got %+v", res)
	}
}

func TestResolve_InactiveRulesSkipped(t *testing.T) {
	sellerID := uuid.New()
	repo := &memRules{rules: []domain.CommissionRule{
		rule(domain.RuleTypeSeller, &sellerID, 8, false),
	}}
	r := NewResolver(repo, 10)

	res, err := r.Resolve(context.Background(), 500, SaleContext{SellerID: &sellerID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "default" || res.Rate != 10 {
		t.Errorf("inactive rule must not resolve, got %+v", res)
	}
}

func TestResolve_AmountPlusNetEqualsPrice(t *testing.T) {
	sellerID := uuid.New()
	repo := &memRules{rules: []domain.CommissionRule{
		rule(domain.RuleTypeSeller, &sellerID, 7.5, true),
	}}
	r := NewResolver(repo, 10)

	prices := []float64{0.01, 1, 99.99, 1000, 123456.78}
	for _, price := range prices {
		res, err := r.Resolve(context.Background(), price, SaleContext{SellerID: &sellerID})
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(res.Amount+res.NetAmount-price) > 1e-9 {
			t.Errorf("price %v: amount %v + net %v != price", price, res.Amount, res.NetAmount)
		}
	}
}

func TestResolve_RejectsNonPositivePrice(t *testing.T) {
	r := NewResolver(&memRules{}, 10)
	for _, price := range []float64{0, -1} {
		_, err := r.Resolve(context.Background(), price, SaleContext{})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("price %v: expected validation error, got %v", price, err)
		}
	}
}

func TestValidRate(t *testing.T) {
	for _, tc := range []struct {
		rate float64
		ok   bool
	}{{0, true}, {100, true}, {50.5, true}, {-0.1, false}, {100.1, false}} {
		if ValidRate(tc.rate) != tc.ok {
			t.Errorf("ValidRate(%v) = %v, want %v", tc.rate, !tc.ok, tc.ok)
		}
	}
}
