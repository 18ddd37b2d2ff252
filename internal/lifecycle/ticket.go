package lifecycle

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

type TicketStore interface {
	ApplyTicketTransition(ctx context.Context, id uuid.UUID, expected, target domain.TicketOrderStatus) (domain.TransitionResult, error)
}

// TicketLifecycle is the simplified lifecycle for ticket purchases:
// pending -> confirmed or pending -> cancelled, both terminal. Confirm is
// reachable from direct administrative calls, so the "still pending"
// check is re-done at the store as a conditional update rather than
// trusted from the caller.
type TicketLifecycle struct {
	store  TicketStore
	audit  AuditTrail
	logger observability.Logger
}

func NewTicketLifecycle(store TicketStore, audit AuditTrail, logger observability.Logger) *TicketLifecycle {
	return &TicketLifecycle{store: store, audit: audit, logger: logger}
}

func (l *TicketLifecycle) Confirm(ctx context.Context, id uuid.UUID) (domain.TransitionResult, error) {
	return l.transition(ctx, id, domain.TicketConfirmed)
}

func (l *TicketLifecycle) Cancel(ctx context.Context, id uuid.UUID) (domain.TransitionResult, error) {
	return l.transition(ctx, id, domain.TicketCancelled)
}

func (l *TicketLifecycle) transition(ctx context.Context, id uuid.UUID, target domain.TicketOrderStatus) (domain.TransitionResult, error) {
	if !domain.CanTransitionTicket(domain.TicketPending, target) {
		return domain.TransitionResult{}, errors.Wrapf(domain.ErrInvalidTransition, "pending -> %s", target)
	}

	res, err := l.store.ApplyTicketTransition(ctx, id, domain.TicketPending, target)
	if err != nil {
		return domain.TransitionResult{}, err
	}

	observability.TransitionsTotal.WithLabelValues("ticket_order", string(target), strconv.FormatBool(res.Applied)).Inc()

	if !res.Applied {
		return res, errors.Wrapf(domain.ErrInvalidTransition, "ticket order %s is %s", id, res.CurrentStatus)
	}

	if err := l.audit.AppendTransition(ctx, "ticket_order", id, string(domain.TicketPending), string(target), "", nil); err != nil {
		l.logger.WithField("ticket_order_id", id).Error("failed to append transition audit", err)
	}

	return res, nil
}
