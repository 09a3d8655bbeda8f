package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/api/handler"
	"github.com/qaddoumi/tahweel/internal/api/middleware"
	"github.com/qaddoumi/tahweel/internal/api/spec"
	"github.com/qaddoumi/tahweel/internal/events"
	"github.com/qaddoumi/tahweel/internal/idempotency"
	"github.com/qaddoumi/tahweel/internal/proofstore"
	"github.com/qaddoumi/tahweel/internal/repository"
	"github.com/qaddoumi/tahweel/internal/service"
)

// RouterConfig carries everything the HTTP surface needs, wired once at boot.
type RouterConfig struct {
	DB          *pgxpool.Pool
	Redis       redis.Cmdable
	Store       *repository.Store
	Auth        *middleware.Authenticator
	Idempotency *idempotency.Store
	Proofs      proofstore.Store
	Publisher   *events.Publisher
	Logger      *zap.Logger
	PublicRPS   int
	AuthRPS     int
}

// NewRouter assembles the middleware chain and routes.
func NewRouter(cfg RouterConfig) chi.Router {
	orderSvc := service.NewOrderService(cfg.Store, cfg.Publisher)
	exchangeSvc := service.NewExchangeService(cfg.Store)

	healthHandler := handler.NewHealthHandler(cfg.DB, cfg.Redis)
	orderHandler := handler.NewOrderHandler(orderSvc, cfg.Proofs)
	exchangeHandler := handler.NewExchangeHandler(exchangeSvc)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(cfg.Logger))
	r.Use(middleware.LoggingMiddleware(cfg.Logger))
	r.Use(middleware.MetricsMiddleware)

	// Public routes
	r.Group(func(r chi.Router) {
		if cfg.PublicRPS > 0 {
			r.Use(middleware.PublicRateLimiter(cfg.PublicRPS))
		}
		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
	})
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)
		if cfg.AuthRPS > 0 {
			r.Use(middleware.AuthRateLimiter(cfg.AuthRPS))
		}

		idem := middleware.IdempotencyMiddleware(cfg.Idempotency, cfg.Logger)

		// Orders: exchange users operate on their own exchange, admins on any.
		r.With(idem).Post("/v1/orders", orderHandler.CreateOrder)
		r.Get("/v1/orders", orderHandler.ListOrders)
		r.Get("/v1/orders/{id}", orderHandler.GetOrder)
		r.With(idem).Post("/v1/orders/{id}/cancellation", orderHandler.RequestCancellation)
		r.Get("/v1/proofs/{ref}", orderHandler.GetProof)
		r.Get("/v1/exchanges/{id}", exchangeHandler.GetExchange)

		// Admin-only resolutions and configuration.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))

			r.With(idem).Post("/v1/orders/{id}/review", orderHandler.ReviewOrder)
			r.With(idem).Post("/v1/orders/{id}/complete", orderHandler.CompleteOrder)
			r.With(idem).Post("/v1/orders/{id}/cancellation/resolve", orderHandler.ResolveCancellation)

			r.With(idem).Post("/v1/exchanges", exchangeHandler.CreateExchange)
			r.Put("/v1/exchanges/{id}/commission", exchangeHandler.UpdateCommission)
			r.Put("/v1/exchanges/{id}/banks", exchangeHandler.UpdateBanks)
		})
	})

	return r
}
