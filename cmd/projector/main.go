package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/storefront-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/storefront-fulfillment/internal/kafka"
	"github.com/ariefcatur/storefront-fulfillment/internal/logging"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/projector"
	"github.com/ariefcatur/storefront-fulfillment/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName+"-projector", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Cache: redisx.NewStatusCache(rdb),
		Dedup: redisx.NewEventLog(rdb, "projector"),
		Log:   logger,
	}

	// One consumer per topic, same group.
	var wg sync.WaitGroup
	for _, topic := range []string{orders.TopicOrderCreated, orders.TopicOrderPaid} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topic, cfg.ProjectorWorkers, logger)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			logger.Info("projector consumer started",
				zap.String("group", cfg.ProjectorGroup), zap.String("topic", topic), zap.Int("workers", cfg.ProjectorWorkers))
			if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				logger.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}(topic)
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumers...")
	cancel()
	wg.Wait()
}
