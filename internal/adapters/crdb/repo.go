package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	"github.com/robertarktes/order-settlement-and-commission/internal/lifecycle"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (id, order_number, status, customer_name, customer_email, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.OrderNumber, string(domain.OrderPending), order.CustomerName, order.CustomerEmail, order.TotalAmount, order.CreatedAt)
	return errors.Wrap(err, "create order")
}

// InsertOrderItems writes the commission snapshot for a batch of items in
// one transaction. There is deliberately no UPDATE counterpart for the
// commission columns.
func (r *Repository) InsertOrderItems(ctx context.Context, items []domain.OrderItem) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return insertItems(ctx, tx, items)
	})
}

// InsertOrderWithItems commits the order row and its item ledger in one
// transaction: a rejected batch leaves no order behind, and the order's
// total can never be observed without its items.
func (r *Repository) InsertOrderWithItems(ctx context.Context, order domain.Order, items []domain.OrderItem) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, order_number, status, customer_name, customer_email, total_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, order.OrderNumber, string(domain.OrderPending), order.CustomerName, order.CustomerEmail, order.TotalAmount, order.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "create order")
		}
		return insertItems(ctx, tx, items)
	})
}

// insertItems queues the whole batch on the transaction's connection; a
// pgx.Tx is bound to one connection and must not see concurrent calls.
func insertItems(ctx context.Context, tx pgx.Tx, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, seller_id, event_id, category_id, item_title, quantity, unit_price, total_price, commission_rate, commission_amount, net_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, item.ID, item.OrderID, item.SellerID, item.EventID, item.CategoryID, item.ItemTitle, item.Quantity, item.UnitPrice, item.TotalPrice, item.CommissionRate, item.CommissionAmount, item.NetAmount)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	var status string
	var trackingNumber, trackingURL, trackingCarrier *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, status, customer_name, customer_email, total_amount, payment_intent_id, payment_method, tracking_number, tracking_url, tracking_carrier, admin_notes, created_at, paid_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.OrderNumber, &status, &order.CustomerName, &order.CustomerEmail, &order.TotalAmount,
		&order.PaymentIntentID, &order.PaymentMethod, &trackingNumber, &trackingURL, &trackingCarrier, &order.AdminNotes, &order.CreatedAt, &order.PaidAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	if trackingNumber != nil {
		order.Tracking = &domain.Tracking{Number: *trackingNumber}
		if trackingURL != nil {
			order.Tracking.URL = *trackingURL
		}
		if trackingCarrier != nil {
			order.Tracking.Carrier = *trackingCarrier
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, seller_id, event_id, category_id, item_title, quantity, unit_price, total_price, commission_rate, commission_amount, net_amount
		FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := domain.OrderItem{OrderID: orderID}
		if err := rows.Scan(&item.ID, &item.SellerID, &item.EventID, &item.CategoryID, &item.ItemTitle, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.CommissionRate, &item.CommissionAmount, &item.NetAmount); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return &order, rows.Err()
}

// ApplyOrderTransition performs the compare-and-swap: the UPDATE is
// scoped by (id, expected status), so a concurrent or replayed caller
// finds zero rows affected and gets Applied=false with whatever status is
// currently persisted. The outbox record rides in the same transaction.
func (r *Repository) ApplyOrderTransition(ctx context.Context, id uuid.UUID, expected, target domain.OrderStatus, meta lifecycle.Meta) (domain.TransitionResult, error) {
	var result domain.TransitionResult

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var paymentIntentID, paymentMethod, trackingNumber, trackingURL, trackingCarrier, notes *string
		if meta.PaymentIntentID != "" {
			paymentIntentID = &meta.PaymentIntentID
		}
		if meta.PaymentMethod != "" {
			paymentMethod = &meta.PaymentMethod
		}
		if meta.Tracking != nil {
			trackingNumber = &meta.Tracking.Number
			trackingURL = &meta.Tracking.URL
			trackingCarrier = &meta.Tracking.Carrier
		}
		if meta.Notes != "" {
			notes = &meta.Notes
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orders SET
				status = $3,
				payment_intent_id = COALESCE($4, payment_intent_id),
				payment_method = COALESCE($5, payment_method),
				paid_at = COALESCE($6, paid_at),
				tracking_number = COALESCE($7, tracking_number),
				tracking_url = COALESCE($8, tracking_url),
				tracking_carrier = COALESCE($9, tracking_carrier),
				admin_notes = COALESCE($10, admin_notes)
			WHERE id = $1 AND status = $2
		`, id, string(expected), string(target), paymentIntentID, paymentMethod, meta.PaidAt, trackingNumber, trackingURL, trackingCarrier, notes)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}
			result = domain.TransitionResult{Applied: false, CurrentStatus: current}
			return nil
		}

		if err := r.InsertOutbox(ctx, tx, NewStatusOutboxRecord("order", id, "order."+string(target))); err != nil {
			return err
		}

		result = domain.TransitionResult{Applied: true, CurrentStatus: string(target)}
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return result, nil
}

func (r *Repository) CreateTicketOrder(ctx context.Context, to domain.TicketOrder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ticket_orders (id, ticket_type_id, buyer_id, quantity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, to.ID, to.TicketTypeID, to.BuyerID, to.Quantity, string(domain.TicketPending), to.CreatedAt)
	return errors.Wrap(err, "create ticket order")
}

func (r *Repository) GetTicketOrder(ctx context.Context, id uuid.UUID) (*domain.TicketOrder, error) {
	var to domain.TicketOrder
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, ticket_type_id, buyer_id, quantity, status, created_at
		FROM ticket_orders WHERE id = $1
	`, id).Scan(&to.ID, &to.TicketTypeID, &to.BuyerID, &to.Quantity, &status, &to.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	to.Status = domain.TicketOrderStatus(status)
	return &to, nil
}

// ApplyTicketTransition re-checks "still pending" at the row itself, so
// two concurrent confirms cannot both apply.
func (r *Repository) ApplyTicketTransition(ctx context.Context, id uuid.UUID, expected, target domain.TicketOrderStatus) (domain.TransitionResult, error) {
	var result domain.TransitionResult

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ticket_orders SET status = $3 WHERE id = $1 AND status = $2
		`, id, string(expected), string(target))
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM ticket_orders WHERE id = $1`, id).Scan(&current)
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}
			result = domain.TransitionResult{Applied: false, CurrentStatus: current}
			return nil
		}

		if err := r.InsertOutbox(ctx, tx, NewStatusOutboxRecord("ticket_order", id, "ticket_order."+string(target))); err != nil {
			return err
		}

		result = domain.TransitionResult{Applied: true, CurrentStatus: string(target)}
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return result, nil
}
