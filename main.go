// Package main is the entry point for the Sherwood trading core. It wires
// the SG (Signal Generator) and OE (Order Executor) loops together behind
// a shared queue and position manager (Redis-backed when REDIS_URL is set,
// in-process otherwise), and exposes a minimal
// admin mux for health/metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sherwood-quant/core/api"
	"github.com/sherwood-quant/core/config"
	"github.com/sherwood-quant/core/data"
	"github.com/sherwood-quant/core/data/providers"
	"github.com/sherwood-quant/core/engine"
	"github.com/sherwood-quant/core/execution"
	"github.com/sherwood-quant/core/models"
	"github.com/sherwood-quant/core/notifications"
	"github.com/sherwood-quant/core/position"
	"github.com/sherwood-quant/core/queue"
	"github.com/sherwood-quant/core/realtime"
	"github.com/sherwood-quant/core/regime"
	"github.com/sherwood-quant/core/strategies"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting sherwood trading core")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsLive() {
		log.Warn().Msg("live trading mode - real money at risk")
	} else {
		log.Info().Msg("dry run mode (paper trading)")
	}

	tunables, err := config.NewManager(cfg.TunablesFile, func(t config.TunablesFile) {
		log.Info().Msg("tunables reloaded")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tunables")
	}

	wsManager := realtime.NewWebSocketManager()
	go wsManager.Run()

	registry := strategies.NewRegistry()
	if len(cfg.EnabledStrategies) == 0 {
		log.Warn().Msg("no strategies enabled - registering every known strategy")
	}
	if err := strategies.RegisterAll(registry, cfg.EnabledStrategies); err != nil {
		log.Fatal().Err(err).Msg("failed to register strategies")
	}
	log.Info().Strs("strategies", cfg.EnabledStrategies).Msg("strategies registered")

	provider, err := providers.NewProviderFromString(cfg.DataProvider, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.DataProvider).Msg("failed to create data provider")
	}

	db, err := data.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	orderStore := data.NewOrderStore(db)
	notificationStore := data.NewNotificationStore(db)

	account := "default"

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else if cfg.IsLive() {
		log.Fatal().Msg("live mode requires REDIS_URL")
	}

	var q *queue.Queue
	qTunables := tunables.QueueConfig(account)
	if redisClient != nil {
		store := queue.NewRedisStore(queue.RedisStoreConfig{Client: redisClient})
		q = queue.New(store, qTunables)
	} else {
		q = queue.New(queue.NewMemStore(), qTunables)
	}

	var pm *position.Manager
	if redisClient != nil {
		store := position.NewRedisStore(redisClient, fmt.Sprintf("sherwood:%s:positions", account))
		pm = position.New(store, position.Config{Account: account})
	} else {
		pm = position.New(position.NewMemStore(), position.Config{Account: account})
	}

	gateway := execution.NewPaperGateway(100000.0, "USD")

	hours := execution.MarketHours{AllowAfterhours: false}
	classifier := regime.New(provider, hours, tunables.RegimeConfig())
	regimeProvider := func() models.Regime {
		return classifier.Classify(context.Background(), time.Now(), true)
	}

	sizing := execution.NewSizingPolicy(tunables.KellyConfig())
	assessor := execution.NewRiskAssessor(tunables.BackupOrderConfig())

	notifier := notifications.NewManager(notificationStore, wsManager)

	execCfg := tunables.ExecutionConfig(account)
	executor := execution.NewExecutor(
		execCfg,
		gateway,
		q,
		pm,
		orderStore,
		sizing,
		assessor,
		hours,
		nil, // BoardLotLookup: no live broker adapter supplies board lots yet
		nil, // ReferencePriceLookup: price-deviation check skipped without a live quote feed
		regimeProvider,
		nil, // HistoryProvider: no trade history is supplied, so the Kelly overlay stays inactive
		notifier,
	)

	symbols := []string{"SPY.US", "AAPL.US", "MSFT.US", "0700.HK", "9988.HK"}
	tradingEngine := engine.NewTradingEngine(
		provider,
		registry,
		q,
		executor,
		wsManager,
		symbols,
		1*time.Minute,
		100*24*time.Hour,
		cfg.CloseOnShutdown,
	)

	ctx, cancelEngine := context.WithCancel(context.Background())
	if err := tradingEngine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start trading engine")
	}

	router := api.NewRouter(cfg, tradingEngine)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.AdminPort).Msg("admin mux listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	cancelEngine()

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := tradingEngine.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("trading engine shutdown error")
	}

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("admin server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}
