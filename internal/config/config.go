package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN               string
	MongoURI              string
	RedisAddr             string
	RabbitURL             string
	ListenAddr            string
	WebhookSecret         string
	DefaultCommissionRate float64
	ReportCacheTTL        time.Duration
	IdempotencyTTL        time.Duration
	OTLPEndpoint          string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	defaultRate, _ := strconv.ParseFloat(os.Getenv("DEFAULT_COMMISSION_RATE"), 64)
	if defaultRate == 0 {
		defaultRate = 10
	}

	reportTTL, _ := time.ParseDuration(os.Getenv("REPORT_CACHE_TTL"))
	if reportTTL == 0 {
		reportTTL = 5 * time.Minute
	}

	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return &Config{
		CRDBDSN:               os.Getenv("CRDB_DSN"),
		MongoURI:              os.Getenv("MONGO_URI"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RabbitURL:             os.Getenv("RABBIT_URL"),
		ListenAddr:            listenAddr,
		WebhookSecret:         os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		DefaultCommissionRate: defaultRate,
		ReportCacheTTL:        reportTTL,
		IdempotencyTTL:        idempTTL,
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
