package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apphttp "github.com/galoymoney/lnurlp-server/pkg/app/http"
	"github.com/galoymoney/lnurlp-server/pkg/config"
	"github.com/galoymoney/lnurlp-server/pkg/galoy"
	"github.com/galoymoney/lnurlp-server/pkg/lnurlpay"
	"github.com/galoymoney/lnurlp-server/pkg/zapstore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting LNURL-pay server",
		zap.String("config", *configPath),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("callback_variant", string(cfg.Pay.CallbackVariant)))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wallet backend client, shared by the directory and issuance roles.
	backend, err := galoy.New(&galoy.Config{
		URL:     cfg.GraphQL.URL,
		Timeout: cfg.GraphQL.Timeout,
	}, galoy.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create wallet backend client: %w", err)
	}

	// Zap note storage is only wired when zap receipts are enabled.
	var redisClient *redis.Client
	var notes zapstore.Store
	if cfg.Nostr.Pubkey != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))

		notes = zapstore.NewRedis(redisClient)
	}

	negotiator := lnurlpay.NewLog(
		lnurlpay.New(
			galoy.NewResolver(backend, galoy.CurrencyBTC, logger),
			galoy.NewIssuer(backend),
			notes,
			lnurlpay.Config{
				MinSendable: cfg.Pay.MinSendable,
				MaxSendable: cfg.Pay.MaxSendable,
				NostrPubkey: cfg.Nostr.Pubkey,
			},
			logger,
		),
		logger,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	lnurlpay.RegisterRoutes(router, negotiator, cfg.Pay.CallbackVariant, logger)

	if cfg.Monitoring.Enabled {
		go serveMetrics(cfg.Monitoring.MetricsPort, logger)
	}

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Metrics server listening", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
