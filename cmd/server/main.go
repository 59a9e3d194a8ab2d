package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/database"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/payment"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/repository/memory"
	"github.com/iliyamo/cinema-booking-engine/internal/router"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(logger.IsDev(cfg.Env))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	var payments service.Payments = payment.Offline{Log: log}
	if cfg.Payment.URL != "" {
		payments = payment.NewClient(cfg.Payment.URL, cfg.Payment.APIKey, cfg.Payment.Timeout, log)
	} else {
		log.Warn("PAYMENT_URL not set, charges are approved offline")
	}
	var (
		notifier  service.Notifier = service.NopNotifier{}
		publisher *queue.Publisher
	)
	if cfg.RabbitMQURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitMQURL, log)
		notifier = publisher
	}

	b := cfg.Booking
	clock := service.SystemClock{}
	catalog := service.NewCatalog(store, clock, log)
	scheduler := service.NewScheduler(store, clock, b.CleanupBuffer, log)
	inv := service.NewInventory(store, clock, b.PaymentWindow, log)
	cart := service.NewCart(store, inv, clock, b.CartTTL, log)
	orch := service.NewOrchestrator(service.OrchestratorDeps{
		Store: store, Inv: inv, Cart: cart, Clock: clock,
		Payments: payments, Notifier: notifier,
		Config: service.OrchestratorConfig{
			Currency: b.Currency, SupplierName: b.SupplierName, SupplierEmail: b.SupplierEmail,
		},
		Log: log,
	})

	sweeper := service.NewSweeper(store, inv, cart, orch, clock, b.SweepInterval, log)
	if err := sweeper.Start(); err != nil {
		log.Fatal("start sweeper", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestLogger(log))

	router.Register(e, router.Handlers{
		Health:       handler.Health(store),
		Catalog:      handler.NewCatalogHandler(catalog, log),
		Showtimes:    handler.NewShowtimeHandler(scheduler, inv, b.HoldTTL, log),
		Cart:         handler.NewCartHandler(cart, orch, log),
		Reservations: handler.NewReservationHandler(orch, log),
		Payments:     handler.NewPaymentHandler(orch, cfg.Payment.WebhookSecret, log),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Redis:     rdb,
		Log:       log,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(); err != nil {
		log.Error("sweeper shutdown", zap.Error(err))
	}
	if publisher != nil {
		if err := publisher.Close(ctx); err != nil {
			log.Error("publisher shutdown", zap.Error(err))
		}
	}
}

func openStore(cfg config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}
	db, err := database.Open(database.Options{
		User: cfg.DB.User, Pass: cfg.DB.Pass, Host: cfg.DB.Host, Port: cfg.DB.Port, Name: cfg.DB.Name,
		LockWaitTimeout: cfg.DB.LockWait,
	})
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database schema ensured")
	}
	return repository.NewMySQLStore(db), nil
}
