package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Window scopes a revenue query. Zero From/To mean unbounded; EventID
// optionally narrows to one event.
type Window struct {
	From    time.Time
	To      time.Time
	EventID *uuid.UUID
}

type Totals struct {
	GrossRevenue    float64 `json:"gross_revenue"`
	CommissionTotal float64 `json:"commission_total"`
	NetRevenue      float64 `json:"net_revenue"`
	OrderCount      int64   `json:"order_count"`
	ItemsSold       int64   `json:"items_sold"`
}

type ProductRevenue struct {
	ItemTitle string  `json:"item_title"`
	Revenue   float64 `json:"revenue"`
	ItemsSold int64   `json:"items_sold"`
}

type Point struct {
	Day   time.Time `json:"day"`
	Gross float64   `json:"gross"`
	Net   float64   `json:"net"`
}

type SellerRevenueSummary struct {
	SellerID          uuid.UUID        `json:"seller_id"`
	Totals            Totals           `json:"totals"`
	AverageOrderValue float64          `json:"average_order_value"`
	TopProducts       []ProductRevenue `json:"top_products"`
	Series            []Point          `json:"series"`
}

// ReportStore runs the settled-only aggregation queries: every method
// counts items whose parent order is paid, shipped or delivered, and
// nothing else.
type ReportStore interface {
	SellerRevenueTotals(ctx context.Context, sellerID uuid.UUID, win Window) (Totals, error)
	SellerTopProducts(ctx context.Context, sellerID uuid.UUID, win Window, limit int) ([]ProductRevenue, error)
	SellerRevenueSeries(ctx context.Context, sellerID uuid.UUID, win Window) ([]Point, error)
}

// ReportCache serves slightly stale summaries; reporting is not
// transactionally coupled to the write path.
type ReportCache interface {
	GetReport(ctx context.Context, key string) (*SellerRevenueSummary, error)
	SetReport(ctx context.Context, key string, summary SellerRevenueSummary, ttl time.Duration) error
}

const topProductsLimit = 10

// Aggregator is the read-only settlement report over the item ledger.
// It never mutates anything.
type Aggregator struct {
	store  ReportStore
	cache  ReportCache
	ttl    time.Duration
	logger observability.Logger
}

func NewAggregator(store ReportStore, cache ReportCache, ttl time.Duration, logger observability.Logger) *Aggregator {
	return &Aggregator{store: store, cache: cache, ttl: ttl, logger: logger}
}

func (a *Aggregator) Query(ctx context.Context, sellerID uuid.UUID, win Window) (SellerRevenueSummary, error) {
	key := cacheKey(sellerID, win)
	if a.cache != nil {
		cached, err := a.cache.GetReport(ctx, key)
		if err != nil {
			a.logger.WithField("seller_id", sellerID).Warn("report cache read failed", err)
		} else if cached != nil {
			return *cached, nil
		}
	}

	summary, err := a.compute(ctx, sellerID, win)
	if err != nil {
		return SellerRevenueSummary{}, err
	}

	if a.cache != nil {
		if err := a.cache.SetReport(ctx, key, summary, a.ttl); err != nil {
			a.logger.WithField("seller_id", sellerID).Warn("report cache write failed", err)
		}
	}
	return summary, nil
}

// Refresh recomputes and recaches a summary, bypassing the cached copy.
// The report warmer uses it when a settlement event lands.
func (a *Aggregator) Refresh(ctx context.Context, sellerID uuid.UUID, win Window) (SellerRevenueSummary, error) {
	summary, err := a.compute(ctx, sellerID, win)
	if err != nil {
		return SellerRevenueSummary{}, err
	}
	if a.cache != nil {
		if err := a.cache.SetReport(ctx, cacheKey(sellerID, win), summary, a.ttl); err != nil {
			a.logger.WithField("seller_id", sellerID).Warn("report cache write failed", err)
		}
	}
	return summary, nil
}

// compute runs the three aggregation queries concurrently; each one takes
// its own connection from the pool.
func (a *Aggregator) compute(ctx context.Context, sellerID uuid.UUID, win Window) (SellerRevenueSummary, error) {
	var (
		totals Totals
		top    []ProductRevenue
		series []Point
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = a.store.SellerRevenueTotals(gctx, sellerID, win)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = a.store.SellerTopProducts(gctx, sellerID, win, topProductsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		series, err = a.store.SellerRevenueSeries(gctx, sellerID, win)
		return err
	})
	if err := g.Wait(); err != nil {
		return SellerRevenueSummary{}, err
	}

	summary := SellerRevenueSummary{
		SellerID:    sellerID,
		Totals:      totals,
		TopProducts: top,
		Series:      series,
	}
	if totals.OrderCount > 0 {
		summary.AverageOrderValue = totals.GrossRevenue / float64(totals.OrderCount)
	}
	return summary, nil
}

func cacheKey(sellerID uuid.UUID, win Window) string {
	event := ""
	if win.EventID != nil {
		event = win.EventID.String()
	}
	return fmt.Sprintf("revenue:%s:%d:%d:%s", sellerID, win.From.Unix(), win.To.Unix(), event)
}
