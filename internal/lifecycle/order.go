package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

// Meta is optional data carried by a transition: payment details on the
// paid transition, tracking and notes on shipped/delivered.
type Meta struct {
	Actor           string
	PaymentIntentID string
	PaymentMethod   string
	PaidAt          *time.Time
	Tracking        *domain.Tracking
	Notes           string
}

// OrderStore applies a conditional status update: the change lands only
// if the persisted status still equals the expected one. The returned
// result reports whether this call applied the change and what the
// current status is either way.
type OrderStore interface {
	ApplyOrderTransition(ctx context.Context, id uuid.UUID, expected, target domain.OrderStatus, meta Meta) (domain.TransitionResult, error)
}

// AuditTrail appends one record per applied transition. History is never
// overwritten.
type AuditTrail interface {
	AppendTransition(ctx context.Context, entity string, id uuid.UUID, from, to, actor string, data map[string]interface{}) error
}

// OrderLifecycle is the order state machine. Every transition goes
// through the allowed-transition table and then a compare-and-swap in the
// store, which is what makes duplicate webhook deliveries and racing
// admin actions safe.
type OrderLifecycle struct {
	store  OrderStore
	audit  AuditTrail
	logger observability.Logger
}

func NewOrderLifecycle(store OrderStore, audit AuditTrail, logger observability.Logger) *OrderLifecycle {
	return &OrderLifecycle{store: store, audit: audit, logger: logger}
}

// Transition attempts expected -> target for the given order. A pair
// outside the transition table, or a CAS miss, returns
// domain.ErrInvalidTransition alongside the result; callers decide
// whether that is a benign replay or an operator conflict.
func (l *OrderLifecycle) Transition(ctx context.Context, id uuid.UUID, expected, target domain.OrderStatus, meta Meta) (domain.TransitionResult, error) {
	if !domain.ValidOrderStatus(expected) || !domain.ValidOrderStatus(target) {
		return domain.TransitionResult{}, errors.Wrapf(domain.ErrValidation, "unknown status %q -> %q", expected, target)
	}
	if !domain.CanTransitionOrder(expected, target) {
		return domain.TransitionResult{CurrentStatus: string(expected)},
			errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s", expected, target)
	}

	res, err := l.store.ApplyOrderTransition(ctx, id, expected, target, meta)
	if err != nil {
		return domain.TransitionResult{}, err
	}

	observability.TransitionsTotal.WithLabelValues("order", string(target), strconv.FormatBool(res.Applied)).Inc()

	if !res.Applied {
		return res, errors.Wrapf(domain.ErrInvalidTransition, "order %s is %s, expected %s", id, res.CurrentStatus, expected)
	}

	data := map[string]interface{}{}
	if meta.PaymentIntentID != "" {
		data["payment_intent_id"] = meta.PaymentIntentID
	}
	if meta.PaymentMethod != "" {
		data["payment_method"] = meta.PaymentMethod
	}
	if meta.Tracking != nil {
		data["tracking_number"] = meta.Tracking.Number
		data["tracking_carrier"] = meta.Tracking.Carrier
	}
	if meta.Notes != "" {
		data["notes"] = meta.Notes
	}
	if err := l.audit.AppendTransition(ctx, "order", id, string(expected), string(target), meta.Actor, data); err != nil {
		// The transition is already committed; the audit record is
		// recoverable from the outbox stream.
		l.logger.WithField("order_id", id).Error("failed to append transition audit", err)
	}

	return res, nil
}
