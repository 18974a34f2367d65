package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maquis-app/maquis-backend/api/routes"
	"github.com/maquis-app/maquis-backend/internal/cards"
	"github.com/maquis-app/maquis-backend/internal/catalog"
	"github.com/maquis-app/maquis-backend/internal/orders"
	"github.com/maquis-app/maquis-backend/internal/payments"
	"github.com/maquis-app/maquis-backend/internal/stats"
	paymewebhook "github.com/maquis-app/maquis-backend/internal/webhooks/payme"
	"github.com/maquis-app/maquis-backend/pkg/config"
	"github.com/maquis-app/maquis-backend/pkg/db"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/metrics"
	"github.com/maquis-app/maquis-backend/pkg/migrate"
	"github.com/maquis-app/maquis-backend/pkg/outbox"
	"github.com/maquis-app/maquis-backend/pkg/payme"
	"github.com/maquis-app/maquis-backend/pkg/redis"
	"github.com/maquis-app/maquis-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymeClient, err := payme.NewClient(cfg.Payme)
	if err != nil {
		logg.Error(context.Background(), "failed to create payme client", err)
		os.Exit(1)
	}

	cipherKey, err := cfg.Cards.DecodedCipherKey()
	if err != nil {
		logg.Error(context.Background(), "failed to decode card cipher key", err)
		os.Exit(1)
	}
	balanceCipher, err := security.NewBalanceCipher(cipherKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create balance cipher", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, catalogService, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	cardsService, err := cards.NewService(cards.NewRepository(dbClient.DB()), balanceCipher, dbClient, outboxService, cfg.Cards.DefaultExpiry)
	if err != nil {
		logg.Error(context.Background(), "failed to create cards service", err)
		os.Exit(1)
	}

	receipts, err := payments.NewReceiptIssuer(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt issuer", err)
		os.Exit(1)
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	paymentsService, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		ordersRepo,
		cardsService,
		paymeClient,
		receipts,
		dbClient,
		outboxService,
		redisClient,
		paymentMetrics,
		logg,
		payments.Options{
			CallbackURL: cfg.App.BaseURL + "/api/v1/webhooks/payme",
			WebhookTTL:  cfg.Payme.WebhookTTL,
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	statsService, err := stats.NewService(stats.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create stats service", err)
		os.Exit(1)
	}

	webhookGuard, err := paymewebhook.NewIdempotencyGuard(redisClient, cfg.Payme.WebhookTTL, paymewebhook.GuardScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	paymeWebhookService, err := paymewebhook.NewService(paymewebhook.ServiceParams{
		Payments: paymentsService,
		Guard:    webhookGuard,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payme webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			catalogService,
			ordersService,
			cardsService,
			paymentsService,
			statsService,
			paymeWebhookService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
