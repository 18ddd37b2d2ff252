package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/order-settlement-and-commission/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/redis"
	"github.com/robertarktes/order-settlement-and-commission/internal/commission"
	"github.com/robertarktes/order-settlement-and-commission/internal/config"
	"github.com/robertarktes/order-settlement-and-commission/internal/domain"
	httphandler "github.com/robertarktes/order-settlement-and-commission/internal/http"
	"github.com/robertarktes/order-settlement-and-commission/internal/idempotency"
	"github.com/robertarktes/order-settlement-and-commission/internal/ledger"
	"github.com/robertarktes/order-settlement-and-commission/internal/lifecycle"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"github.com/robertarktes/order-settlement-and-commission/internal/rateLimit"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
	"github.com/robertarktes/order-settlement-and-commission/internal/webhook"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const schema = `
	CREATE DATABASE IF NOT EXISTS osc;
	CREATE TABLE IF NOT EXISTS osc.commission_rules (
		id UUID PRIMARY KEY,
		rule_type TEXT,
		reference_id UUID,
		rate NUMERIC NOT NULL,
		active BOOL NOT NULL DEFAULT true,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS osc.orders (
		id UUID PRIMARY KEY,
		order_number TEXT,
		status TEXT,
		customer_name TEXT,
		customer_email TEXT,
		total_amount NUMERIC,
		payment_intent_id TEXT,
		payment_method TEXT,
		tracking_number TEXT,
		tracking_url TEXT,
		tracking_carrier TEXT,
		admin_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		paid_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS osc.order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL,
		seller_id UUID NOT NULL,
		event_id UUID,
		category_id UUID,
		item_title TEXT,
		quantity INT,
		unit_price NUMERIC,
		total_price NUMERIC,
		commission_rate NUMERIC,
		commission_amount NUMERIC,
		net_amount NUMERIC
	);
	CREATE TABLE IF NOT EXISTS osc.ticket_orders (
		id UUID PRIMARY KEY,
		ticket_type_id UUID,
		buyer_id UUID,
		quantity INT,
		status TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS osc.outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT,
		aggregate_id UUID,
		event_type TEXT,
		payload_json BYTES,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT,
		dedupe_key TEXT
	);
`

func TestIntegration_SettlementFlow(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongo", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	crdbHost, _ := crdbContainer.Host(ctx)
	crdbPort, _ := crdbContainer.MappedPort(ctx, "26257")
	mongoHost, _ := mongoContainer.Host(ctx)
	mongoPort, _ := mongoContainer.MappedPort(ctx, "27017")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	cfg := &config.Config{
		CRDBDSN:               "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/osc?sslmode=disable",
		MongoURI:              "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:             redisHost + ":" + redisPort.Port(),
		WebhookSecret:         "whsec_integration",
		DefaultCommissionRate: 10,
		ReportCacheTTL:        time.Second,
		IdempotencyTTL:        time.Hour,
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	audit := mongoadapter.NewAuditTrail(mongoClient.Database("osc"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(cache)

	resolver := commission.NewResolver(repo, cfg.DefaultCommissionRate)
	led := ledger.NewLedger(resolver, repo, logger)
	orders := lifecycle.NewOrderLifecycle(repo, audit, logger)
	tickets := lifecycle.NewTicketLifecycle(repo, audit, logger)
	processor := webhook.NewProcessor(orders, logger)
	reports := revenue.NewAggregator(repo, cache, cfg.ReportCacheTTL, logger)

	handlers := httphandler.NewHandlers(cfg, repo, led, orders, tickets, processor, reports, idemp, audit, logger)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl))
	defer srv.Close()

	sellerID := uuid.New()
	eventID := uuid.New()

	// A 12% event rule should beat an 8% seller rule.
	postJSON(t, srv.URL+"/v1/commission-rules", map[string]interface{}{
		"rule_type": "seller", "reference_id": sellerID, "rate": 8, "active": true,
	}, http.StatusCreated)
	postJSON(t, srv.URL+"/v1/commission-rules", map[string]interface{}{
		"rule_type": "event", "reference_id": eventID, "rate": 12, "active": true,
	}, http.StatusCreated)

	orderID := uuid.New()
	created := postJSON(t, srv.URL+"/v1/orders", map[string]interface{}{
		"order_id":       orderID,
		"order_number":   "ORD-9001",
		"customer_name":  "Ada",
		"customer_email": "ada@example.com",
		"items": []map[string]interface{}{
			{"seller_id": sellerID, "event_id": eventID, "item_title": "vinyl", "quantity": 1, "unit_price": 1000},
		},
	}, http.StatusCreated)

	items := created["items"].([]interface{})
	item := items[0].(map[string]interface{})
	if item["commission_rate"].(float64) != 12 || item["commission_amount"].(float64) != 120 || item["net_amount"].(float64) != 880 {
		t.Fatalf("commission snapshot: %+v", item)
	}

	// Signed checkout.completed webhook, delivered twice.
	eventBody, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": "checkout.completed",
		"data": map[string]interface{}{
			"order_id":          orderID,
			"payment_intent_id": "pi_555",
			"payment_method":    "card",
		},
	})
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("POST", srv.URL+"/v1/payments/webhook", bytes.NewReader(eventBody))
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(cfg.WebhookSecret, eventBody))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("webhook delivery %d: code %d", i+1, resp.StatusCode)
		}
	}

	order, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != domain.OrderPaid || order.PaymentIntentID == nil || *order.PaymentIntentID != "pi_555" {
		t.Fatalf("order after webhook replay: %+v", order)
	}

	// Revenue report now counts this settled order.
	resp, err := http.Get(srv.URL + "/v1/sellers/" + sellerID.String() + "/revenue")
	if err != nil {
		t.Fatal(err)
	}
	var summary revenue.SellerRevenueSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if summary.Totals.GrossRevenue != 1000 || summary.Totals.CommissionTotal != 120 || summary.Totals.NetRevenue != 880 {
		t.Fatalf("revenue summary: %+v", summary.Totals)
	}

	// Admin ships the paid order; the audit trail then lists both
	// transitions oldest first.
	ship := postJSON(t, srv.URL+"/v1/orders/"+orderID.String()+"/transition", map[string]interface{}{
		"expected_status": "paid",
		"target_status":   "shipped",
		"tracking":        map[string]interface{}{"number": "TRK-9", "carrier": "dhl"},
	}, http.StatusOK)
	if ship["applied"].(bool) != true {
		t.Fatalf("ship: %+v", ship)
	}

	histResp, err := http.Get(srv.URL + "/v1/orders/" + orderID.String() + "/history")
	if err != nil {
		t.Fatal(err)
	}
	var hist struct {
		Transitions []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"transitions"`
	}
	if err := json.NewDecoder(histResp.Body).Decode(&hist); err != nil {
		t.Fatal(err)
	}
	histResp.Body.Close()
	if len(hist.Transitions) != 2 {
		t.Fatalf("history entries: %d, want 2", len(hist.Transitions))
	}
	if hist.Transitions[0].To != "paid" || hist.Transitions[1].To != "shipped" {
		t.Fatalf("history must be oldest first: %+v", hist.Transitions)
	}

	// Ticket order: second confirm must report applied=false.
	ticket := postJSON(t, srv.URL+"/v1/ticket-orders", map[string]interface{}{
		"ticket_type_id": uuid.New(), "buyer_id": uuid.New(), "quantity": 2,
	}, http.StatusCreated)
	ticketID := ticket["ticket_order_id"].(string)

	first := postJSON(t, srv.URL+"/v1/ticket-orders/"+ticketID+"/confirm", map[string]interface{}{}, http.StatusOK)
	if first["applied"].(bool) != true {
		t.Fatalf("first confirm: %+v", first)
	}
	second := postJSON(t, srv.URL+"/v1/ticket-orders/"+ticketID+"/confirm", map[string]interface{}{}, http.StatusConflict)
	if second["applied"].(bool) != false || second["current_status"].(string) != "confirmed" {
		t.Fatalf("second confirm: %+v", second)
	}
}

func postJSON(t *testing.T, url string, body map[string]interface{}, wantCode int) map[string]interface{} {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != wantCode {
		t.Fatalf("POST %s: code %d, want %d (%+v)", url, resp.StatusCode, wantCode, out)
	}
	return out
}
