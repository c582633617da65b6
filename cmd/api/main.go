package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/cache"
	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/config"
	"github.com/stagepass/ticketing/internal/events"
	"github.com/stagepass/ticketing/internal/storage/postgres"
	transporthttp "github.com/stagepass/ticketing/internal/transport/http"
	"github.com/stagepass/ticketing/internal/worker"
	"github.com/stagepass/ticketing/migrations"
)

const availabilityCacheTTL = 5 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	if cfg.Env != "production" {
		logger.SetLevel(logrus.DebugLevel)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.WithError(err).Fatal("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.WithError(err).Fatal("apply migrations")
	}

	var availabilityCache app.AvailabilityCache = cache.Noop{}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(startupCtx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, running without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
			availabilityCache = cache.NewAvailability(redisClient, availabilityCacheTTL, logger)
		}
	}

	sysClock := clock.NewSystem()

	holdRepo := postgres.NewHoldRepository(pool)
	reservationSvc := app.NewReservationService(
		holdRepo,
		availabilityCache,
		sysClock,
		logger,
		app.WithHoldTTL(cfg.Reservation.HoldTTL),
	)

	orderRepo := postgres.NewOrderRepository(pool)
	orderOpts := []app.OrderServiceOption{}
	if cfg.RabbitMQ.Enabled {
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unreachable, order-status events disabled")
		} else {
			defer conn.Close()
			publisher, err := events.NewPublisher(conn)
			if err != nil {
				logger.WithError(err).Warn("rabbitmq channel setup failed, order-status events disabled")
			} else {
				defer publisher.Close()
				orderOpts = append(orderOpts, app.WithStatusPublisher(publisher))
			}
		}
	}
	orderSvc := app.NewOrderService(orderRepo, reservationSvc, sysClock, logger, orderOpts...)

	eventLogRepo := postgres.NewEventLogRepository(pool)
	verifier := app.NewSignatureVerifier(cfg.Webhook.Secret, logger)
	webhookSvc := app.NewWebhookService(
		eventLogRepo,
		orderSvc,
		verifier,
		sysClock,
		logger,
		app.WithHandlerTimeout(cfg.Webhook.HandlerTimeout),
	)

	catalogRepo := postgres.NewCatalogRepository(pool)
	adminSvc := app.NewAdminService(catalogRepo, sysClock)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/reservations", transporthttp.RequireIdentity(transporthttp.HandleCreateReservation(reservationSvc)))
	mux.Handle("/reservations/", transporthttp.RequireIdentity(transporthttp.HandleReleaseReservation(reservationSvc)))
	mux.Handle("/events/", transporthttp.HandleAvailability(reservationSvc))
	mux.Handle("/webhooks", transporthttp.HandleWebhook(webhookSvc))
	mux.Handle("/orders", transporthttp.HandleCreateOrder(orderSvc))
	mux.Handle("/orders/", transporthttp.HandleGetOrder(orderSvc))
	mux.Handle("/admin/events", transporthttp.HandleAdminEvents(adminSvc))
	mux.Handle("/admin/events/", transporthttp.HandleAdminTicketItems(adminSvc))
	mux.Handle("/admin/orders/", transporthttp.HandleAdminCancelOrder(orderSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORS.AllowedOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lease worker.Lease
	if redisClient != nil {
		lease = worker.NewRedisLease(redisClient, "lease:reservation-sweeper", cfg.Sweeper.LeaseTTL)
	}
	sweeper := worker.NewSweeper(reservationSvc, lease, cfg.Sweeper.Interval, logger)
	go sweeper.Run(stopCtx)

	logger.WithField("port", cfg.Server.Port).Info("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server shutdown error")
	}
	logger.Info("server stopped")
}
