package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
)

// Settled revenue only: items count toward a seller's totals when the
// parent order is paid, shipped or delivered. Pending and cancelled
// orders are excluded from every aggregate.
const settledStatuses = `('paid', 'shipped', 'delivered')`

func windowBounds(win revenue.Window) (from, to *time.Time, eventID *uuid.UUID) {
	if !win.From.IsZero() {
		from = &win.From
	}
	if !win.To.IsZero() {
		to = &win.To
	}
	return from, to, win.EventID
}

// SellersForOrder lists the distinct sellers with items on an order. The
// report warmer uses it to refresh the right summaries when a settlement
// event lands.
func (r *Repository) SellersForOrder(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT seller_id FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sellers []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sellers = append(sellers, id)
	}
	return sellers, rows.Err()
}

func (r *Repository) SellerRevenueTotals(ctx context.Context, sellerID uuid.UUID, win revenue.Window) (revenue.Totals, error) {
	from, to, eventID := windowBounds(win)

	var totals revenue.Totals
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(oi.total_price), 0),
			COALESCE(SUM(oi.commission_amount), 0),
			COALESCE(SUM(oi.net_amount), 0),
			COUNT(DISTINCT oi.order_id),
			COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.seller_id = $1
		  AND o.status IN `+settledStatuses+`
		  AND ($2::TIMESTAMPTZ IS NULL OR o.created_at >= $2)
		  AND ($3::TIMESTAMPTZ IS NULL OR o.created_at < $3)
		  AND ($4::UUID IS NULL OR oi.event_id = $4)
	`, sellerID, from, to, eventID).Scan(&totals.GrossRevenue, &totals.CommissionTotal, &totals.NetRevenue, &totals.OrderCount, &totals.ItemsSold)
	return totals, err
}

func (r *Repository) SellerTopProducts(ctx context.Context, sellerID uuid.UUID, win revenue.Window, limit int) ([]revenue.ProductRevenue, error) {
	from, to, eventID := windowBounds(win)

	rows, err := r.pool.Query(ctx, `
		SELECT oi.item_title, SUM(oi.total_price), SUM(oi.quantity)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.seller_id = $1
		  AND o.status IN `+settledStatuses+`
		  AND ($2::TIMESTAMPTZ IS NULL OR o.created_at >= $2)
		  AND ($3::TIMESTAMPTZ IS NULL OR o.created_at < $3)
		  AND ($4::UUID IS NULL OR oi.event_id = $4)
		GROUP BY oi.item_title
		ORDER BY SUM(oi.total_price) DESC
		LIMIT $5
	`, sellerID, from, to, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []revenue.ProductRevenue
	for rows.Next() {
		var p revenue.ProductRevenue
		if err := rows.Scan(&p.ItemTitle, &p.Revenue, &p.ItemsSold); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) SellerRevenueSeries(ctx context.Context, sellerID uuid.UUID, win revenue.Window) ([]revenue.Point, error) {
	from, to, eventID := windowBounds(win)

	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', o.created_at), SUM(oi.total_price), SUM(oi.net_amount)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.seller_id = $1
		  AND o.status IN `+settledStatuses+`
		  AND ($2::TIMESTAMPTZ IS NULL OR o.created_at >= $2)
		  AND ($3::TIMESTAMPTZ IS NULL OR o.created_at < $3)
		  AND ($4::UUID IS NULL OR oi.event_id = $4)
		GROUP BY 1
		ORDER BY 1 ASC
	`, sellerID, from, to, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []revenue.Point
	for rows.Next() {
		var p revenue.Point
		if err := rows.Scan(&p.Day, &p.Gross, &p.Net); err != nil {
			return nil, err
		}
		series = append(series, p)
	}
	return series, rows.Err()
}
