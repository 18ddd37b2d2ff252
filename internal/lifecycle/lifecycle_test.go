package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

// memOrderStore mimics the conditional update the repository performs.
type memOrderStore struct {
	mu     sync.Mutex
	status map[uuid.UUID]domain.OrderStatus
	metas  []Meta
}

func (s *memOrderStore) ApplyOrderTransition(ctx context.Context, id uuid.UUID, expected, target domain.OrderStatus, meta Meta) (domain.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.status[id]
	if !ok {
		return domain.TransitionResult{}, domain.ErrNotFound
	}
	if cur != expected {
		return domain.TransitionResult{Applied: false, CurrentStatus: string(cur)}, nil
	}
	s.status[id] = target
	s.metas = append(s.metas, meta)
	return domain.TransitionResult{Applied: true, CurrentStatus: string(target)}, nil
}

type memTicketStore struct {
	mu     sync.Mutex
	status map[uuid.UUID]domain.TicketOrderStatus
}

func (s *memTicketStore) ApplyTicketTransition(ctx context.Context, id uuid.UUID, expected, target domain.TicketOrderStatus) (domain.TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.status[id]
	if !ok {
		return domain.TransitionResult{}, domain.ErrNotFound
	}
	if cur != expected {
		return domain.TransitionResult{Applied: false, CurrentStatus: string(cur)}, nil
	}
	s.status[id] = target
	return domain.TransitionResult{Applied: true, CurrentStatus: string(target)}, nil
}

type memAudit struct {
	mu      sync.Mutex
	records []string
}

func (a *memAudit) AppendTransition(ctx context.Context, entity string, id uuid.UUID, from, to, actor string, data map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, entity+":"+from+"->"+to)
	return nil
}

func TestOrderTransition_Applied(t *testing.T) {
	id := uuid.New()
	store := &memOrderStore{status: map[uuid.UUID]domain.OrderStatus{id: domain.OrderPending}}
	audit := &memAudit{}
	lc := NewOrderLifecycle(store, audit, observability.NewLogger())

	res, err := lc.Transition(context.Background(), id, domain.OrderPending, domain.OrderPaid, Meta{PaymentIntentID: "pi_123"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.CurrentStatus != "paid" {
		t.Errorf("got %+v", res)
	}
	if len(audit.records) != 1 || audit.records[0] != "order:pending->paid" {
		t.Errorf("audit records: %v", audit.records)
	}
}

func TestOrderTransition_DuplicateIsNoOp(t *testing.T) {
	id := uuid.New()
	store := &memOrderStore{status: map[uuid.UUID]domain.OrderStatus{id: domain.OrderPending}}
	audit := &memAudit{}
	lc := NewOrderLifecycle(store, audit, observability.NewLogger())

	first, err := lc.Transition(context.Background(), id, domain.OrderPending, domain.OrderPaid, Meta{})
	if err != nil || !first.Applied {
		t.Fatalf("first transition: %+v, %v", first, err)
	}

	second, err := lc.Transition(context.Background(), id, domain.OrderPending, domain.OrderPaid, Meta{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if second.Applied || second.CurrentStatus != "paid" {
		t.Errorf("got %+v", second)
	}
	if len(store.metas) != 1 {
		t.Errorf("expected exactly one applied transition, got %d", len(store.metas))
	}
	if len(audit.records) != 1 {
		t.Errorf("expected exactly one audit record, got %d", len(audit.records))
	}
}

func TestOrderTransition_RejectsTableMiss(t *testing.T) {
	id := uuid.New()
	store := &memOrderStore{status: map[uuid.UUID]domain.OrderStatus{id: domain.OrderPending}}
	lc := NewOrderLifecycle(store, &memAudit{}, observability.NewLogger())

	_, err := lc.Transition(context.Background(), id, domain.OrderPending, domain.OrderDelivered, Meta{})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if store.status[id] != domain.OrderPending {
		t.Error("status must not change on a rejected transition")
	}
}

func TestOrderTransition_RejectsUnknownStatus(t *testing.T) {
	lc := NewOrderLifecycle(&memOrderStore{status: map[uuid.UUID]domain.OrderStatus{}}, &memAudit{}, observability.NewLogger())
	_, err := lc.Transition(context.Background(), uuid.New(), "bogus", domain.OrderPaid, Meta{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTicketConfirm_ConcurrentCallsOneWins(t *testing.T) {
	id := uuid.New()
	store := &memTicketStore{status: map[uuid.UUID]domain.TicketOrderStatus{id: domain.TicketPending}}
	lc := NewTicketLifecycle(store, &memAudit{}, observability.NewLogger())

	const callers = 8
	results := make(chan domain.TransitionResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := lc.Confirm(context.Background(), id)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		if res.Applied {
			applied++
		}
		if res.CurrentStatus != "confirmed" {
			t.Errorf("current status %q", res.CurrentStatus)
		}
	}
	if applied != 1 {
		t.Errorf("expected exactly one applied confirm, got %d", applied)
	}
}

func TestTicketCancel_AfterConfirmRejected(t *testing.T) {
	id := uuid.New()
	store := &memTicketStore{status: map[uuid.UUID]domain.TicketOrderStatus{id: domain.TicketConfirmed}}
	lc := NewTicketLifecycle(store, &memAudit{}, observability.NewLogger())

	res, err := lc.Cancel(context.Background(), id)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if res.Applied {
		t.Error("cancel of a confirmed ticket order must not apply")
	}
}
