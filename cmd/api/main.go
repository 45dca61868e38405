package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/checkout"
	"github.com/ariefcatur/storefront-fulfillment/internal/config"
	"github.com/ariefcatur/storefront-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/storefront-fulfillment/internal/httpx"
	"github.com/ariefcatur/storefront-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-fulfillment/internal/kafka"
	"github.com/ariefcatur/storefront-fulfillment/internal/logging"
	"github.com/ariefcatur/storefront-fulfillment/internal/memory"
	"github.com/ariefcatur/storefront-fulfillment/internal/metrics"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/payment"
	"github.com/ariefcatur/storefront-fulfillment/internal/postgres"
	"github.com/ariefcatur/storefront-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Stores
	var (
		ledger inventory.Ledger
		store  orders.Store
	)
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on restart")
		ledger, store = demoCatalog(), memory.NewOrderStore()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		ledger, store = &postgres.Ledger{DB: db}, &postgres.OrderStore{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	pCreated.Start(ctx)
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024, logger)
	pPaid.Start(ctx)
	events := &kafkax.OrderEvents{Created: pCreated, Paid: pPaid, Service: cfg.ServiceName}

	// Core
	builder := orders.NewBuilder(ledger, store, events, logger.Named("orders"), m)
	sessions := checkout.NewService(store,
		payment.NewStripeGateway(cfg.StripeSecretKey, nil),
		checkout.Config{Currency: cfg.Currency, SuccessURL: cfg.CheckoutSuccessURL, CancelURL: cfg.CheckoutCancelURL},
		logger.Named("checkout"), m)
	fsm := fulfillment.NewStateMachine(store,
		payment.NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance),
		redisx.NewEventLog(rdb, "fulfillment"),
		events, logger.Named("fulfillment"), m)

	router := httpx.NewRouter(logger, m, metrics.Handler())
	oh := &httpx.OrdersHandler{
		Builder:        builder,
		Orders:         store,
		Checkout:       sessions,
		Payments:       fsm,
		Cache:          redisx.NewStatusCache(rdb),
		Log:            logger,
		WebhookEnabled: cfg.StripeWebhookSecret != "",
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	pCreated.Close() // close inbox -> flush & close writer
	pPaid.Close()
	pCreated.WaitClosed()
	pPaid.WaitClosed()
	cancel()
}

// demoCatalog seeds the in-memory driver so the API is usable without a
// database.
func demoCatalog() *memory.Catalog {
	c := memory.NewCatalog()
	tee := c.AddProduct("Basic Tee", decimal.RequireFromString("19.99"), "", "white")
	c.AddVariant(tee.ID, "M", "SKU-42", 3)
	c.AddVariant(tee.ID, "L", "TEE-L", 10)
	hoodie := c.AddProduct("Zip Hoodie", decimal.RequireFromString("55.00"), "", "black")
	c.AddVariant(hoodie.ID, "M", "HOOD-M", 5)
	return c
}
