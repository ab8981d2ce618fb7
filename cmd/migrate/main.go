package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navid-fn/tradedesk/configs"
	"github.com/navid-fn/tradedesk/internal/service"
	"github.com/navid-fn/tradedesk/internal/storage"
)

func main() {
	seedFlag := flag.Bool("seed", true, "Create the default settings documents when missing")
	flag.Parse()

	cfg := configs.AppLoad()
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
	client, err := storage.Connect(connectCtx, cfg.Storage.MongoURI)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	registry, err := storage.NewRegistry(client.Database(cfg.Storage.Database), storage.DefaultSchemas(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build registry")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Close(closeCtx)
	}()

	logger.Info("Ensuring indexes...")
	if err := registry.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Fatal("Index creation failed")
	}

	if *seedFlag {
		if err := seedSettings(ctx, registry, cfg.StageFees); err != nil {
			logger.WithError(err).Fatal("Seeding settings failed")
		}
	}

	logger.Info("Migrations completed successfully")
}

// seedSettings writes the trades, members and award settings documents the
// services read. Existing documents are left untouched.
func seedSettings(ctx context.Context, p storage.Provider, stageFees string) error {
	settings, err := service.NewSettingService(p)
	if err != nil {
		return err
	}
	fees, err := service.ParseStaticFees(stageFees)
	if err != nil {
		return err
	}

	tradeFields := make(map[string]any, len(fees))
	for kind, fee := range fees {
		tradeFields[service.StageFeeKey(kind)] = fee
	}
	if _, err := settings.Seed(ctx, service.SettingsTrades, tradeFields); err != nil {
		return err
	}
	if _, err := settings.Seed(ctx, service.SettingsMembers, map[string]any{"communication_ways": []string{}}); err != nil {
		return err
	}
	_, err = settings.Seed(ctx, service.SettingsAward, map[string]any{"block": []any{}})
	return err
}
