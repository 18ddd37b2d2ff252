package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/order-settlement-and-commission/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/order-settlement-and-commission/internal/adapters/redis"
	"github.com/robertarktes/order-settlement-and-commission/internal/commission"
	"github.com/robertarktes/order-settlement-and-commission/internal/config"
	httphandler "github.com/robertarktes/order-settlement-and-commission/internal/http"
	"github.com/robertarktes/order-settlement-and-commission/internal/idempotency"
	"github.com/robertarktes/order-settlement-and-commission/internal/ledger"
	"github.com/robertarktes/order-settlement-and-commission/internal/lifecycle"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"github.com/robertarktes/order-settlement-and-commission/internal/rateLimit"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
	"github.com/robertarktes/order-settlement-and-commission/internal/webhook"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
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

	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
