package ledger

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/commission"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

// ItemStore persists item batches atomically. There is no update method:
// once written, the commission snapshot on an item is immutable.
// InsertOrderWithItems writes the order row and its items in one
// transaction.
type ItemStore interface {
	InsertOrderItems(ctx context.Context, items []domain.OrderItem) error
	InsertOrderWithItems(ctx context.Context, order domain.Order, items []domain.OrderItem) error
}

// ItemInput is one line item as supplied by the checkout collaborator.
type ItemInput struct {
	SellerID   uuid.UUID
	CategoryID *uuid.UUID
	EventID    *uuid.UUID
	ItemTitle  string
	Quantity   int64
	UnitPrice  float64
}

// Ledger freezes the commission split per line item at order-creation
// time. It is invoked exactly once per item; the resulting rate, amount
// and net amount are never recomputed afterwards.
type Ledger struct {
	resolver *commission.Resolver
	store    ItemStore
	logger   observability.Logger
}

func NewLedger(resolver *commission.Resolver, store ItemStore, logger observability.Logger) *Ledger {
	return &Ledger{resolver: resolver, store: store, logger: logger}
}

// CreateItems validates every input before anything is persisted, then
// resolves and snapshots the commission for each item and writes the
// whole batch atomically.
func (l *Ledger) CreateItems(ctx context.Context, orderID uuid.UUID, inputs []ItemInput) ([]domain.OrderItem, error) {
	items, err := l.buildItems(ctx, orderID, inputs)
	if err != nil {
		return nil, err
	}
	if err := l.store.InsertOrderItems(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateOrder writes an order and its item ledger in one transaction. A
// batch that fails validation leaves no order row behind.
func (l *Ledger) CreateOrder(ctx context.Context, order domain.Order, inputs []ItemInput) ([]domain.OrderItem, error) {
	items, err := l.buildItems(ctx, order.ID, inputs)
	if err != nil {
		return nil, err
	}
	if err := l.store.InsertOrderWithItems(ctx, order, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (l *Ledger) buildItems(ctx context.Context, orderID uuid.UUID, inputs []ItemInput) ([]domain.OrderItem, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(domain.ErrValidation, "no items")
	}
	for _, in := range inputs {
		if in.Quantity < 1 {
			return nil, errors.Wrapf(domain.ErrValidation, "quantity %d", in.Quantity)
		}
		if in.UnitPrice < 0 {
			return nil, errors.Wrapf(domain.ErrValidation, "unit price %v", in.UnitPrice)
		}
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		total := in.UnitPrice * float64(in.Quantity)
		item := domain.OrderItem{
			ID:         uuid.New(),
			OrderID:    orderID,
			SellerID:   in.SellerID,
			EventID:    in.EventID,
			CategoryID: in.CategoryID,
			ItemTitle:  in.ItemTitle,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			TotalPrice: total,
		}
		if total > 0 {
			res, err := l.resolver.Resolve(ctx, total, commission.SaleContext{
				SellerID:   &in.SellerID,
				EventID:    in.EventID,
				CategoryID: in.CategoryID,
			})
			if err != nil {
				return nil, err
			}
			item.CommissionRate = res.Rate
			item.CommissionAmount = res.Amount
			item.NetAmount = res.NetAmount
			observability.CommissionResolutionsTotal.WithLabelValues(res.Source).Inc()
			l.logger.WithField("order_id", orderID).WithField("source", res.Source).Debug("commission resolved")
		}
		items = append(items, item)
	}
	return items, nil
}
