package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/configs"
	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/faulttolerance"
	"github.com/navid-fn/tradedesk/internal/handler"
	"github.com/navid-fn/tradedesk/internal/middleware"
	"github.com/navid-fn/tradedesk/internal/presence"
	"github.com/navid-fn/tradedesk/internal/router"
	"github.com/navid-fn/tradedesk/internal/service"
	"github.com/navid-fn/tradedesk/internal/storage"
	"github.com/navid-fn/tradedesk/internal/storage/memstore"
)

func main() {
	cfg := configs.AppLoad()
	logger := cfg.NewLogger()

	if cfg.JWT.SecretKey == "" {
		logger.Fatal("JWT_SECRET_KEY is required")
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	defer closeStore()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	fallback, err := service.ParseStaticFees(cfg.StageFees)
	if err != nil {
		logger.WithError(err).Fatal("Invalid STAGE_FEES")
	}
	settingsColl, err := provider.Collection(storage.Settings)
	if err != nil {
		logger.WithError(err).Fatal("Settings collection missing")
	}

	opts := []service.Option{service.WithLocation(cfg.Location())}
	tradeService, err := service.NewTradeService(provider, service.NewSettingFees(settingsColl, fallback), publisher, logger, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build trade service")
	}
	accountService, err := service.NewAccountService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build account service")
	}
	memberService, err := service.NewMemberService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build member service")
	}
	gameService, err := service.NewGameService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build game service")
	}
	settingService, err := service.NewSettingService(provider)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build setting service")
	}
	activityService, err := service.NewActivityService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build activity service")
	}
	lotteryService, err := service.NewLotteryService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build lottery service")
	}
	loginRecordService, err := service.NewLoginRecordService(provider, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build login record service")
	}

	tokens := middleware.TokenConfig{Secret: []byte(cfg.JWT.SecretKey), Algorithm: cfg.JWT.Algorithm}
	hub := presence.NewHub(logger, allowOrigins(cfg.CORSOrigins))
	defer hub.Close()

	routerConfig := &router.Config{
		TradeHandler:    handler.NewTradeHandler(tradeService),
		SplitHandler:    handler.NewSplitHandler(tradeService.Splits()),
		AccountHandler:  handler.NewAccountHandler(accountService),
		MemberHandler:   handler.NewMemberHandler(memberService),
		GameHandler:     handler.NewGameHandler(gameService),
		SettingHandler:  handler.NewSettingHandler(settingService),
		PresenceHandler: handler.NewPresenceHandler(hub, tokens, loginRecordService),

		ActivityHandler:    handler.NewActivityHandler(activityService),
		LotteryHandler:     handler.NewLotteryHandler(lotteryService),
		LoginRecordHandler: handler.NewLoginRecordHandler(loginRecordService),

		Tokens:      tokens,
		RateLimiter: middleware.NewRateLimiter(cfg.Limit.RPS, cfg.Limit.Burst, logger),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router.NewRouter(routerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("API server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Forced shutdown")
	}
	logger.Info("Application stopped successfully")
}

// openStore returns the configured provider and a function releasing it.
func openStore(ctx context.Context, cfg *configs.AppConfig, logger *logrus.Logger) (storage.Provider, func(), error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on exit")
		return memstore.New(storage.DefaultSchemas(), logger), func() {}, nil
	}
	registry, err := connectRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("Mongo disconnect failed")
		}
	}
	return registry, closeFn, nil
}

// connectRegistry dials MongoDB with backoff so the API can start before
// the database is ready.
func connectRegistry(ctx context.Context, cfg *configs.AppConfig, logger *logrus.Logger) (*storage.Registry, error) {
	retryCfg := faulttolerance.DefaultRetryConfig("mongo-connect")
	retryCfg.MaxAttempts = cfg.Storage.ConnectAttempts
	retryer := faulttolerance.NewRetryer(retryCfg, logger)

	var registry *storage.Registry
	err := retryer.Execute(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
		defer cancel()
		client, err := storage.Connect(attemptCtx, cfg.Storage.MongoURI)
		if err != nil {
			return err
		}
		registry, err = storage.NewRegistry(client.Database(cfg.Storage.Database), storage.DefaultSchemas(), logger)
		if err != nil {
			_ = client.Disconnect(context.Background())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("database", cfg.Storage.Database).Info("Connected to MongoDB")
	return registry, nil
}

func newPublisher(cfg *configs.AppConfig, logger *logrus.Logger) events.Publisher {
	if cfg.KafkaEvents.Broker == "" {
		logger.Info("KAFKA_BROKER not set, trade events disabled")
		return events.NopPublisher{}
	}
	pub, err := events.NewKafkaPublisher(events.KafkaConfig{
		Broker: cfg.KafkaEvents.Broker,
		Topic:  cfg.KafkaEvents.Topic,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Kafka unavailable, trade events disabled")
		return events.NopPublisher{}
	}
	return pub
}

// allowOrigins accepts websocket handshakes from the configured frontends.
// With none configured, gorilla's same-origin default applies.
func allowOrigins(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
