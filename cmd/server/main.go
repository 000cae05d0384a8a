package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/auth"
	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/config"
	"github.com/iliyamo/travel-booking/internal/database"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/handler"
	"github.com/iliyamo/travel-booking/internal/inventory"
	"github.com/iliyamo/travel-booking/internal/invoice"
	"github.com/iliyamo/travel-booking/internal/logging"
	"github.com/iliyamo/travel-booking/internal/middleware"
	"github.com/iliyamo/travel-booking/internal/notify"
	"github.com/iliyamo/travel-booking/internal/queue"
	"github.com/iliyamo/travel-booking/internal/repository"
	"github.com/iliyamo/travel-booking/internal/router"
	"github.com/iliyamo/travel-booking/internal/tracing"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment wins

	cfg := config.Load()
	log, closer := logging.New(config.LoadLogOptions())
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tc := config.LoadTracingConfig()
	tp, err := tracing.NewTracerProvider(tc.ServiceName, cfg.Env, tc.JaegerEndpoint)
	if err != nil {
		log.WithError(err).Fatal("tracer provider")
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.Migrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			log.WithError(err).Fatal("migrate database")
		}
		log.WithField("applied", applied).Info("migrations up to date")
	}
	st := repository.NewStore(db)

	rdb := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable; cache, idempotency and rate limit disabled")
	} else {
		defer rdb.Close()
	}

	// Interface-typed so that a disabled broker stays a true nil.
	var (
		bookingEvents booking.Publisher
		invoiceEvents invoice.Publisher
	)
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		bookingEvents, invoiceEvents = pub, pub
	} else {
		log.Warn("RABBITMQ_URL not set; events disabled")
	}

	provider := flight.NewClient(config.LoadFlightConfig(), log)
	ledger := inventory.NewLedger(st)
	committer := booking.NewCommitter(st, bookingEvents, log)
	aggregator := booking.NewAggregator(st, ledger, committer, provider, bookingEvents, log)
	reconciler := booking.NewReconciler(st, committer, provider, config.LoadReconcilerConfig(), log)

	h := handler.New(handler.Deps{
		Store:      st,
		Ledger:     ledger,
		Aggregator: aggregator,
		Committer:  committer,
		Invoices:   invoice.NewEmitter(st, invoiceEvents, cfg.Currency, log),
		Flights:    provider,
		Log:        log,
	})
	e := router.New(h, router.Middlewares{
		Authenticate: middleware.Authenticate(auth.NewJWTAuthenticator(cfg.JWTSecret, st)),
		RateLimit:    middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		SearchCache:  middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		Idempotency:  middleware.NewIdempotency(config.LoadIdempotencyConfig(), rdb, log),
	}, tc.ServiceName, log)

	go reconciler.Run(ctx, cfg.ReconcileInterval)
	if cfg.RabbitURL != "" {
		var mailer notify.Sender
		if mc := config.LoadMailConfig(); mc.Host != "" {
			mailer = notify.NewMailer(mc)
		}
		go queue.NewConsumer(cfg.RabbitURL, mailer, log).Run(ctx)
	}

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
		log.WithError(err).Warn("tracer shutdown")
	}
}
