package webhook

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
)

// EventKind is the closed set of payment processor event types this
// service acts on. Everything else parses to KindIgnored so the sender
// gets a 200 and stops retrying.
type EventKind string

const (
	KindCheckoutCompleted EventKind = "checkout.completed"
	KindPaymentFailed     EventKind = "payment.failed"
	KindIgnored           EventKind = "ignored"
)

// Event is a verified, strongly typed payment processor notification.
type Event struct {
	ID              string
	Kind            EventKind
	OrderID         uuid.UUID
	PaymentIntentID string
	PaymentMethod   string
	OccurredAt      time.Time
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		OrderID         string `json:"order_id"`
		PaymentIntentID string `json:"payment_intent_id"`
		PaymentMethod   string `json:"payment_method"`
		OccurredAt      string `json:"occurred_at"`
	} `json:"data"`
}

// ParseEvent decodes an untrusted payload into the closed kind set. The
// order id is required only for kinds the service acts on; unknown kinds
// are accepted as-is and tagged KindIgnored.
func ParseEvent(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, errors.Wrap(domain.ErrValidation, "malformed webhook payload")
	}

	ev := Event{ID: raw.ID, PaymentIntentID: raw.Data.PaymentIntentID, PaymentMethod: raw.Data.PaymentMethod}
	if raw.Data.OccurredAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Data.OccurredAt); err == nil {
			ev.OccurredAt = ts
		}
	}

	switch raw.Type {
	case string(KindCheckoutCompleted):
		ev.Kind = KindCheckoutCompleted
	case string(KindPaymentFailed):
		ev.Kind = KindPaymentFailed
	default:
		ev.Kind = KindIgnored
		return ev, nil
	}

	orderID, err := uuid.Parse(raw.Data.OrderID)
	if err != nil {
		return Event{}, errors.Wrapf(domain.ErrValidation, "order_id %q", raw.Data.OrderID)
	}
	ev.OrderID = orderID
	return ev, nil
}
