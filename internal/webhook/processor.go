package webhook

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/lifecycle"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

// OrderTransitioner is the slice of the order state machine the webhook
// path needs.
type OrderTransitioner interface {
	Transition(ctx context.Context, id uuid.UUID, expected, target domain.OrderStatus, meta lifecycle.Meta) (domain.TransitionResult, error)
}

// Processor dispatches verified payment events into the order state
// machine. Delivery is at-least-once; the CAS inside the transition is
// what turns replays into no-ops, no dedupe bookkeeping is kept here.
type Processor struct {
	orders OrderTransitioner
	logger observability.Logger
}

func NewProcessor(orders OrderTransitioner, logger observability.Logger) *Processor {
	return &Processor{orders: orders, logger: logger}
}

// Process returns an error only for failures the sender should retry
// (persistence problems). Duplicate deliveries and unhandled kinds
// succeed so the sender stops redelivering.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	log := p.logger.WithField("event_id", ev.ID).WithField("kind", string(ev.Kind))

	switch ev.Kind {
	case KindCheckoutCompleted:
		paidAt := ev.OccurredAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		res, err := p.orders.Transition(ctx, ev.OrderID, domain.OrderPending, domain.OrderPaid, lifecycle.Meta{
			Actor:           "payment-webhook",
			PaymentIntentID: ev.PaymentIntentID,
			PaymentMethod:   ev.PaymentMethod,
			PaidAt:          &paidAt,
		})
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Replayed delivery: the order already left pending.
			log.WithField("order_id", ev.OrderID).WithField("current_status", res.CurrentStatus).Info("duplicate checkout event ignored")
			observability.WebhookEventsTotal.WithLabelValues(string(ev.Kind), "duplicate").Inc()
			return nil
		}
		if err != nil {
			observability.WebhookEventsTotal.WithLabelValues(string(ev.Kind), "error").Inc()
			return err
		}
		observability.WebhookEventsTotal.WithLabelValues(string(ev.Kind), "applied").Inc()
		return nil

	case KindPaymentFailed:
		// The order stays pending; it can be retried or cancelled later.
		log.WithField("order_id", ev.OrderID).Warn("payment failed")
		observability.WebhookEventsTotal.WithLabelValues(string(ev.Kind), "logged").Inc()
		return nil

	default:
		observability.WebhookEventsTotal.WithLabelValues("other", "ignored").Inc()
		return nil
	}
}
