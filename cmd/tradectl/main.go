package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ariefcatur/go-inventory-trades/internal/config"
	kafkax "github.com/ariefcatur/go-inventory-trades/internal/kafka"
	"github.com/ariefcatur/go-inventory-trades/internal/logging"
	"github.com/ariefcatur/go-inventory-trades/internal/orders"
	"github.com/ariefcatur/go-inventory-trades/internal/postgres"
	"github.com/ariefcatur/go-inventory-trades/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

// opener hands a command its store and a release func.
type opener func(ctx context.Context) (orders.Store, func(), error)

// sideEffects hands a write command the cache and event sink the API would
// update for the same write. Both may be no-ops.
type sideEffects func(ctx context.Context) (*redisx.Cache, orders.Emitter, func())

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	rootCmd := newRootCmd(cfg, openPostgres(cfg.PostgresDSN), openSideEffects(cfg))
	rootCmd.AddCommand(migrateCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config, open opener, effects sideEffects) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tradectl",
		Short:         "Operator tool for the trade engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(sweepCmd(cfg, open, effects))
	rootCmd.AddCommand(itemCmd(open, effects))
	return rootCmd
}

func openPostgres(dsn string) opener {
	return func(ctx context.Context) (orders.Store, func(), error) {
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		return &postgres.Store{DB: db}, db.Close, nil
	}
}

// openSideEffects connects redis and, when events are enabled, a kafka
// producer. An unreachable redis leaves the cache disabled.
func openSideEffects(cfg config.Config) sideEffects {
	return func(ctx context.Context) (*redisx.Cache, orders.Emitter, func()) {
		log, err := logging.New(cfg.LogLevel)
		if err != nil {
			log = zap.NewNop()
		}

		rdb := redisx.New(cfg.RedisAddr)
		cache := &redisx.Cache{R: rdb}
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable, cache not refreshed", zap.Error(err))
			cache = nil
		}

		var (
			events orders.Emitter = orders.NopEmitter{}
			prod   *kafkax.Producer
		)
		if cfg.EventsEnabled {
			prod = kafkax.NewProducer(cfg.KafkaBrokers, 64, log)
			prod.Start(ctx)
			events = &orders.EventSink{Producer: prod, Service: cfg.ServiceName, Log: log}
		}

		return cache, events, func() {
			if prod != nil {
				prod.Close()
				prod.WaitClosed()
			}
			_ = rdb.Close()
		}
	}
}

func migrateCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := postgres.Connect(ctx, cfg.PostgresDSN)
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
