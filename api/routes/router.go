package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maquis-app/maquis-backend/api/controllers"
	webhookcontrollers "github.com/maquis-app/maquis-backend/api/controllers/webhooks"
	"github.com/maquis-app/maquis-backend/api/middleware"
	"github.com/maquis-app/maquis-backend/internal/cards"
	"github.com/maquis-app/maquis-backend/internal/catalog"
	"github.com/maquis-app/maquis-backend/internal/orders"
	"github.com/maquis-app/maquis-backend/internal/payments"
	"github.com/maquis-app/maquis-backend/internal/stats"
	paymewebhook "github.com/maquis-app/maquis-backend/internal/webhooks/payme"
	"github.com/maquis-app/maquis-backend/pkg/config"
	"github.com/maquis-app/maquis-backend/pkg/db"
	"github.com/maquis-app/maquis-backend/pkg/enums"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	catalogService catalog.Service,
	ordersService orders.Service,
	cardsService cards.Service,
	paymentsService payments.Service,
	statsService stats.Service,
	paymeWebhookService *paymewebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	// Interface conversions stay nil when the client is nil so the
	// downstream nil checks keep working.
	var redisPinger redis.Pinger
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		redisPinger = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	// Gateway callbacks authenticate with merchant credentials, not user JWTs.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payme", webhookcontrollers.PaymeCallback(paymeWebhookService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/v1/menu", func(r chi.Router) {
			r.Get("/", controllers.MenuList(catalogService, logg))
		})

		r.Route("/v1/orders", func(r chi.Router) {
			r.With(middleware.RequireRoles(logg, enums.RoleClient)).Post("/", controllers.OrderCreate(ordersService, logg))
			r.With(middleware.RequireRoles(logg, enums.RoleClient)).Get("/", controllers.OrderList(ordersService, logg))
			r.Get("/{orderID}", controllers.OrderGet(ordersService, logg))
			r.Post("/{orderID}/cancel", controllers.OrderCancel(ordersService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleKitchen, enums.RoleAdmin))
				r.Get("/queue", controllers.OrderKitchenQueue(ordersService, logg))
				r.Post("/{orderID}/start-preparation", controllers.OrderStartPreparation(ordersService, logg))
				r.Post("/{orderID}/ready", controllers.OrderMarkReady(ordersService, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleWaiter, enums.RoleAdmin))
				r.Get("/ready", controllers.OrderReadyQueue(ordersService, logg))
				r.Post("/{orderID}/served", controllers.OrderMarkServed(ordersService, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleCashier, enums.RoleAdmin))
				r.Get("/awaiting-payment", controllers.OrderAwaitingPayment(ordersService, logg))
				r.Get("/{orderID}/payments", controllers.PaymentListForOrder(paymentsService, logg))
			})
		})

		r.Route("/v1/cards", func(r chi.Router) {
			r.Get("/{uid}/balance", controllers.CardBalance(cardsService, logg))
			r.Get("/{uid}/verify", controllers.CardVerify(cardsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.RoleCashier, enums.RoleAdmin))
				r.Post("/", controllers.CardRegister(cardsService, logg))
				r.Post("/{uid}/recharge", controllers.CardRecharge(cardsService, logg))
				r.Get("/{uid}/history", controllers.CardHistory(cardsService, logg))
			})

			r.With(middleware.RequireRoles(logg, enums.RoleAdmin)).Post("/{uid}/deactivate", controllers.CardDeactivate(cardsService, logg))
		})

		r.Route("/v1/payments", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.RoleCashier, enums.RoleAdmin))
			r.Post("/settle", controllers.PaymentSettle(paymentsService, logg))
			r.Post("/{paymentID}/refund", controllers.PaymentRefund(paymentsService, logg))
			r.Get("/{paymentID}", controllers.PaymentGet(paymentsService, logg))
		})

		r.Route("/v1/stats", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.RoleAdmin))
			r.Get("/daily-summary", controllers.StatsDailySummary(statsService, logg))
			r.Get("/top-items", controllers.StatsTopItems(statsService, logg))
			r.Get("/revenue-by-method", controllers.StatsRevenueByMethod(statsService, logg))
		})
	})

	return r
}
