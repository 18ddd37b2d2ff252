package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/order-settlement-and-commission/internal/adapters/crdb"
	"github.com/robertarktes/order-settlement-and-commission/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/redis"
	"github.com/robertarktes/order-settlement-and-commission/internal/config"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
)

// The warmer keeps hot seller revenue summaries fresh in Redis by
// refreshing them whenever an order settlement event is published.
// Reports are allowed to be slightly stale, so losing an event only
// delays a refresh until the cache TTL expires.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	reports := revenue.NewAggregator(repo, cache, cfg.ReportCacheTTL, logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "report-warmer.q", "order.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	go func() {
		for d := range deliveries {
			if err := refresh(ctx, repo, reports, d.Body); err != nil {
				logger.Error("failed to refresh report", err)
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown report warmer")
}

func refresh(ctx context.Context, repo *crdb.Repository, reports *revenue.Aggregator, body []byte) error {
	var event struct {
		AggregateID uuid.UUID `json:"aggregate_id"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		// Malformed events are dropped, not requeued.
		return nil
	}

	sellers, err := repo.SellersForOrder(ctx, event.AggregateID)
	if err != nil {
		return err
	}
	for _, sellerID := range sellers {
		if _, err := reports.Refresh(ctx, sellerID, revenue.Window{}); err != nil {
			return err
		}
	}
	return nil
}
