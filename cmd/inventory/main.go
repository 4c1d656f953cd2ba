package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-inventory-trades/internal/config"
	"github.com/ariefcatur/go-inventory-trades/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-trades/internal/kafka"
	"github.com/ariefcatur/go-inventory-trades/internal/logging"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis holds both the read model and the dedup marks, so it is required here.
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	proj := &inventory.Projector{
		Cache:       &redisx.Cache{R: rdb},
		ServiceName: cfg.ServiceName + "-inventory",
		Log:         log.Named("projector"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, inventory.ProjectorTopics, cfg.InventoryWorkers, log.Named("consumer"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("inventory projector started",
			zap.String("group", cfg.InventoryGroup),
			zap.Strings("topics", inventory.ProjectorTopics),
			zap.Int("workers", cfg.InventoryWorkers),
		)
		if err := cons.Start(ctx, proj.HandleMessage); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	<-done
}
