package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/order-settlement-and-commission/internal/observability"
	"github.com/robertarktes/order-settlement-and-commission/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	// Webhook path stays outside the rate limiter.
	r.Post("/v1/payments/webhook", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl))

		r.Post("/v1/orders", h.CreateOrder)
		r.Get("/v1/orders/{id}", h.GetOrder)
		r.Post("/v1/orders/{id}/items", h.CreateOrderItems)
		r.Post("/v1/orders/{id}/transition", h.TransitionOrder)
		r.Get("/v1/orders/{id}/history", h.OrderHistory)

		r.Post("/v1/ticket-orders", h.CreateTicketOrder)
		r.Post("/v1/ticket-orders/{id}/confirm", h.ConfirmTicketOrder)

		r.Post("/v1/commission-rules", h.CreateRule)
		r.Get("/v1/commission-rules", h.ListRules)
		r.Put("/v1/commission-rules/{id}", h.UpdateRule)
		r.Delete("/v1/commission-rules/{id}", h.DeactivateRule)

		r.Get("/v1/sellers/{id}/revenue", h.SellerRevenue)
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
