package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradecore/internal/admin"
	"tradecore/internal/audit"
	"tradecore/internal/balance"
	"tradecore/internal/config"
	"tradecore/internal/health"
	"tradecore/internal/httpserver"
	"tradecore/internal/logging"
	"tradecore/internal/metrics"
	"tradecore/internal/notify"
	"tradecore/internal/orders"
	"tradecore/internal/position"
	"tradecore/internal/pricefeed"
	"tradecore/internal/storage"
	"tradecore/internal/storage/memory"
	"tradecore/internal/storage/pg"
	"tradecore/internal/userlock"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Console:  cfg.LogConsole,
		FilePath: cfg.LogFile,
	})
	ctx := context.Background()

	var db storage.DB
	if cfg.DBDSN != "" {
		pgdb, err := pg.Open(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connect failed")
		}
		if err := pgdb.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("schema migration failed")
		}
		db = pgdb
		logger.Info().Msg("using postgres storage")
	} else {
		db = memory.New()
		logger.Warn().Msg("DB_DSN not set, using in-memory storage")
	}
	defer db.Close()

	var cache pricefeed.Cache
	if cfg.RedisAddr != "" {
		rc, err := pricefeed.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		cache = rc
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis price cache")
	} else {
		cache = pricefeed.NewMemoryCache()
	}
	defer cache.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	locks := userlock.New()
	hub := notify.NewHub()
	notifier := notify.Multi{notify.NewLogEmitter(logging.Component(logger, "events")), hub}

	balanceSvc := balance.NewService(db, locks, notifier, m, logging.Component(logger, "balance"), cfg.BaseCurrency)
	book := position.NewBook(db, locks, m, logging.Component(logger, "position"))
	orderSvc := orders.NewService(db, locks, notifier, m, logging.Component(logger, "orders"), cfg.BaseCurrency, cfg.AllowFlip)
	trail := audit.NewService(db)
	adminSvc := admin.NewService(orderSvc, balanceSvc, book, trail, m, logging.Component(logger, "admin"))
	feedSvc := pricefeed.NewService(cache, book, orderSvc, m, logging.Component(logger, "pricefeed"))

	verifier := httpserver.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		OrderHandler:    orders.NewHandler(orderSvc),
		BalanceHandler:  balance.NewHandler(balanceSvc),
		PositionHandler: position.NewHandler(book),
		AdminHandler:    admin.NewHandler(adminSvc),
		FeedHandler:     pricefeed.NewHandler(feedSvc),
		HealthHandler:   health.NewHandler(db, time.Now()),
		EventsWSHandler: httpserver.NewEventsWSHandler(hub, verifier, ""),
		Verifier:        verifier,
		InternalToken:   cfg.InternalToken,
		Registry:        registry,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
