package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-inventory-trades/internal/config"
	"github.com/ariefcatur/go-inventory-trades/internal/httpx"
	kafkax "github.com/ariefcatur/go-inventory-trades/internal/kafka"
	"github.com/ariefcatur/go-inventory-trades/internal/logging"
	"github.com/ariefcatur/go-inventory-trades/internal/memstore"
	"github.com/ariefcatur/go-inventory-trades/internal/orderflow"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/postgres"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/ariefcatur/go-inventory-trades/internal/sweep"
	"github.com/ariefcatur/go-inventory-trades/internal/tradeflow"
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

	policy, err := orders.ParseTransitionPolicy(cfg.OrderTransitions)
	if err != nil {
		log.Fatal("invalid ORDER_TRANSITIONS", zap.Error(err))
	}

	// Store
	var store orders.Store
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		store = memstore.New()
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		store = &postgres.Store{DB: db}
	default:
		log.Fatal("unknown STORE", zap.String("store", cfg.Store))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.Cache{R: rdb}
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Warn("redis unavailable, running without cache", zap.Error(err))
		cache = nil
	}

	// Kafka producer
	var events orders.Emitter = orders.NopEmitter{}
	var prod *kafkax.Producer
	if cfg.EventsEnabled {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
		prod.Start(ctx)
		events = &orders.EventSink{Producer: prod, Service: cfg.ServiceName, Log: log}
	}

	// Services
	orderSvc := &orderflow.Service{Store: store, Events: events, Policy: policy, Log: log.Named("orders")}
	tradeSvc := &tradeflow.Service{Store: store, Events: events, Log: log.Named("trades")}
	sweeper := &sweep.Sweeper{
		Orders:    store.Orders(),
		Cache:     cache,
		Events:    events,
		Log:       log.Named("sweep"),
		Interval:  cfg.SweepInterval,
		Threshold: cfg.SweepThreshold,
	}
	go sweeper.Start(ctx)

	// Router & handlers
	router := httpx.NewRouter(log.Named("http"))
	api := &httpx.API{
		Orders:     &httpx.OrdersHandler{Orders: orderSvc, Cache: cache, Log: log},
		Trades:     &httpx.TradesHandler{Trades: tradeSvc, Log: log},
		Items:      &httpx.ItemsHandler{Items: store.Items(), Cache: cache, Log: log},
		Admin:      &httpx.AdminHandler{Store: store, Sweeper: sweeper, Cache: cache, Log: log},
		Identity:   httpx.Identity{Secret: []byte(cfg.JWTSecret)},
		AdminToken: cfg.AdminToken,
	}
	api.Mount(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop the sweep loop
	if prod != nil {
		prod.Close()      // close inbox -> flush & close writer
		prod.WaitClosed() // drain
	}
}
