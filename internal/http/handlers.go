package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/mongo"
	"github.com/robertarktes/order-settlement-and-commission/internal/config"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/idempotency"
	"github.com/robertarktes/order-settlement-and-commission/internal/ledger"
	"github.com/robertarktes/order-settlement-and-commission/internal/lifecycle"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
	"github.com/robertarktes/order-settlement-and-commission/internal/webhook"
)

// TransitionHistory reads the audit trail back, oldest transition first.
type TransitionHistory interface {
	History(ctx context.Context, entity string, id uuid.UUID) ([]mongoadapter.TransitionDoc, error)
}

type Handlers struct {
	cfg       *config.Config
	repo      *crdb.Repository
	ledger    *ledger.Ledger
	orders    *lifecycle.OrderLifecycle
	tickets   *lifecycle.TicketLifecycle
	processor *webhook.Processor
	reports   *revenue.Aggregator
	idemp     *idempotency.Idempotency
	audit     TransitionHistory
	logger    observability.Logger
}

func NewHandlers(cfg *config.Config, repo *crdb.Repository, led *ledger.Ledger, orders *lifecycle.OrderLifecycle, tickets *lifecycle.TicketLifecycle, processor *webhook.Processor, reports *revenue.Aggregator, idemp *idempotency.Idempotency, audit TransitionHistory, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:       cfg,
		repo:      repo,
		ledger:    led,
		orders:    orders,
		tickets:   tickets,
		processor: processor,
		reports:   reports,
		idemp:     idemp,
		audit:     audit,
		logger:    logger,
	}
}

// PaymentWebhook is the single inbound entry point for the payment
// processor. 400 means permanent rejection (bad signature or payload);
// 200 acknowledges handled, duplicate and ignored events alike; 500 asks
// the sender to redeliver.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !webhook.VerifySignature(h.cfg.WebhookSecret, body, r.Header.Get(webhook.SignatureHeader)) {
		observability.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	ev, err := webhook.ParseEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(r.Context(), ev); err != nil {
		RequestLogger(r.Context(), h.logger).WithField("event_id", ev.ID).Error("webhook processing failed", err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       *uuid.UUID `json:"order_id"`
		OrderNumber   string     `json:"order_number"`
		CustomerName  string     `json:"customer_name"`
		CustomerEmail string     `json:"customer_email"`
		Items         []struct {
			SellerID   uuid.UUID  `json:"seller_id"`
			EventID    *uuid.UUID `json:"event_id"`
			CategoryID *uuid.UUID `json:"category_id"`
			ItemTitle  string     `json:"item_title"`
			Quantity   int64      `json:"quantity"`
			UnitPrice  float64    `json:"unit_price"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "order must have items", http.StatusBadRequest)
		return
	}

	orderID := uuid.New()
	if req.OrderID != nil {
		orderID = *req.OrderID
	}

	inputs := make([]ledger.ItemInput, 0, len(req.Items))
	total := 0.0
	for _, it := range req.Items {
		inputs = append(inputs, ledger.ItemInput{
			SellerID:   it.SellerID,
			EventID:    it.EventID,
			CategoryID: it.CategoryID,
			ItemTitle:  it.ItemTitle,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
		total += it.UnitPrice * float64(it.Quantity)
	}

	order := domain.Order{
		ID:            orderID,
		OrderNumber:   req.OrderNumber,
		Status:        domain.OrderPending,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		TotalAmount:   total,
		CreatedAt:     time.Now(),
	}
	// One transaction for the order and its items: a rejected batch must
	// not leave an order row behind.
	items, err := h.ledger.CreateOrder(r.Context(), order, inputs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id":     orderID,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
		"items":        itemViews(items),
	})
}

// CreateOrderItems is the checkout collaborator's contract: items land
// on an existing order with their commission snapshot already resolved.
func (h *Handlers) CreateOrderItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Items []struct {
			SellerID   uuid.UUID  `json:"seller_id"`
			EventID    *uuid.UUID `json:"event_id"`
			CategoryID *uuid.UUID `json:"category_id"`
			ItemTitle  string     `json:"item_title"`
			Quantity   int64      `json:"quantity"`
			UnitPrice  float64    `json:"unit_price"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.repo.GetOrder(r.Context(), orderID); err != nil {
		h.writeError(w, err)
		return
	}

	inputs := make([]ledger.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		inputs = append(inputs, ledger.ItemInput{
			SellerID:   it.SellerID,
			EventID:    it.EventID,
			CategoryID: it.CategoryID,
			ItemTitle:  it.ItemTitle,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
		})
	}

	items, err := h.ledger.CreateItems(r.Context(), orderID, inputs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id": orderID,
		"items":    itemViews(items),
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":          order.ID,
		"order_number":      order.OrderNumber,
		"status":            order.Status,
		"total_amount":      order.TotalAmount,
		"payment_intent_id": order.PaymentIntentID,
		"items":             itemViews(order.Items),
	})
}

// OrderHistory is the admin view over the audit trail: every applied
// transition for the order, oldest first.
func (h *Handlers) OrderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	docs, err := h.audit.History(r.Context(), "order", id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	transitions := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		transitions = append(transitions, map[string]interface{}{
			"from":      d.FromStatus,
			"to":        d.ToStatus,
			"actor":     d.Actor,
			"timestamp": d.Timestamp,
			"data":      d.Data,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    id,
		"transitions": transitions,
	})
}

// TransitionOrder is the administrative transition contract. A CAS miss
// or a pair outside the transition table is a 409 carrying the current
// status, so the operator can see who won the race.
func (h *Handlers) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		ExpectedStatus string `json:"expected_status"`
		TargetStatus   string `json:"target_status"`
		Notes          string `json:"notes"`
		Tracking       *struct {
			Number  string `json:"number"`
			URL     string `json:"url"`
			Carrier string `json:"carrier"`
		} `json:"tracking"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	meta := lifecycle.Meta{Actor: "admin", Notes: req.Notes}
	if req.Tracking != nil {
		meta.Tracking = &domain.Tracking{Number: req.Tracking.Number, URL: req.Tracking.URL, Carrier: req.Tracking.Carrier}
	}

	res, err := h.orders.Transition(r.Context(), id, domain.OrderStatus(req.ExpectedStatus), domain.OrderStatus(req.TargetStatus), meta)
	status := http.StatusOK
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case err != nil:
		h.writeError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"applied":        res.Applied,
		"current_status": res.CurrentStatus,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
}

func (h *Handlers) CreateTicketOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketTypeID uuid.UUID `json:"ticket_type_id"`
		BuyerID      uuid.UUID `json:"buyer_id"`
		Quantity     int64     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Quantity < 1 {
		http.Error(w, "quantity must be at least 1", http.StatusBadRequest)
		return
	}

	to := domain.TicketOrder{
		ID:           uuid.New(),
		TicketTypeID: req.TicketTypeID,
		BuyerID:      req.BuyerID,
		Quantity:     req.Quantity,
		Status:       domain.TicketPending,
		CreatedAt:    time.Now(),
	}
	if err := h.repo.CreateTicketOrder(r.Context(), to); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ticket_order_id": to.ID,
		"status":          to.Status,
	})
}

func (h *Handlers) ConfirmTicketOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.tickets.Confirm(r.Context(), id)
	status := http.StatusOK
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case err != nil:
		h.writeError(w, err)
		return
	}

	writeJSON(w, status, map[string]interface{}{
		"applied":        res.Applied,
		"current_status": res.CurrentStatus,
	})
}

func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RuleType    string     `json:"rule_type"`
		ReferenceID *uuid.UUID `json:"reference_id"`
		Rate        float64    `json:"rate"`
		Active      bool       `json:"active"`
		Description string     `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rule := domain.CommissionRule{
		ID:          uuid.New(),
		RuleType:    domain.RuleType(req.RuleType),
		ReferenceID: req.ReferenceID,
		Rate:        req.Rate,
		Active:      req.Active,
		Description: req.Description,
	}
	if err := h.repo.CreateRule(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"rule_id": rule.ID})
}

func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListRules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Rate        float64 `json:"rate"`
		Description string  `json:"description"`
		Active      bool    `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateRule(r.Context(), id, req.Rate, req.Description, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeactivateRule(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SellerRevenue(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var win revenue.Window
	qs := r.URL.Query()
	if v := qs.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		win.From = from
	}
	if v := qs.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		win.To = to
	}
	if v := qs.Get("event_id"); v != "" {
		eventID, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid event_id", http.StatusBadRequest)
			return
		}
		win.EventID = &eventID
	}

	summary, err := h.reports.Query(r.Context(), sellerID, win)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func itemViews(items []domain.OrderItem) []map[string]interface{} {
	views := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		views = append(views, map[string]interface{}{
			"item_id":           it.ID,
			"seller_id":         it.SellerID,
			"item_title":        it.ItemTitle,
			"quantity":          it.Quantity,
			"unit_price":        it.UnitPrice,
			"total_price":       it.TotalPrice,
			"commission_rate":   it.CommissionRate,
			"commission_amount": it.CommissionAmount,
			"net_amount":        it.NetAmount,
		})
	}
	return views
}
