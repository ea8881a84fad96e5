package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/auth"
	"github.com/Allamymp/coinApiPortfolio/pkg/cache"
	"github.com/Allamymp/coinApiPortfolio/pkg/coingecko"
	"github.com/Allamymp/coinApiPortfolio/pkg/coinsync"
	"github.com/Allamymp/coinApiPortfolio/pkg/config"
	"github.com/Allamymp/coinApiPortfolio/pkg/database"
	"github.com/Allamymp/coinApiPortfolio/pkg/email"
	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/redisclient"
)

func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log

	log.Info("starting coinapi server")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.Int("tracked_coins", len(cfg.TrackedCoins)),
		zap.Duration("sync_interval", cfg.SyncInterval))

	dbConfig := database.NewConfig()
	db, err := database.New(dbConfig)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(ctx); err != nil {
		cancel()
		log.Fatal("failed to run database migrations", zap.Error(err))
	}
	cancel()
	log.Info("database migrations completed")

	coinRepo := database.NewCoinRepository(db)
	clientRepo := database.NewClientRepository(db)
	walletRepo := database.NewWalletRepository(db)

	redisClient, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	coinCache := cache.New(redisClient, cfg.CacheTTL)

	gecko := coingecko.New(cfg.Gecko.BaseURL, cfg.Gecko.APIKey, cfg.TrackedCoins, cfg.Gecko.Timeout)
	if err := gecko.Ping(context.Background()); err != nil {
		// the scheduler retries every cycle, so a cold start without the
		// source up is allowed
		log.Warn("price source unreachable at startup", zap.Error(err))
	}

	authConfig := auth.NewConfig()
	if err := auth.EnsureKeyPair(authConfig); err != nil {
		log.Fatal("failed to prepare signing keys", zap.Error(err))
	}
	authService, err := auth.NewService(authConfig)
	if err != nil {
		log.Fatal("failed to initialize authentication service", zap.Error(err))
	}

	mailer := email.NewSender(cfg.SMTP, cfg.PublicURL)

	syncCtx, stopSync := context.WithCancel(context.Background())
	scheduler := coinsync.NewScheduler(gecko, coinRepo, coinCache, cfg.SyncInterval)
	go scheduler.Run(syncCtx)

	go startMetricsServer(cfg.MetricsPort)

	api := &apiServer{
		coins:   coinRepo,
		clients: clientRepo,
		wallets: walletRepo,
		cache:   coinCache,
		auth:    authService,
		mailer:  mailer,
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", healthHandler(db, redisClient)).Methods("GET")
	router.HandleFunc("/ready", readyHandler(db, redisClient)).Methods("GET")
	router.HandleFunc("/migrations", migrationsHandler(db)).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints
	apiRouter.HandleFunc("/clients", api.registerClient).Methods("POST")
	apiRouter.HandleFunc("/activate/{token}", api.activateClient).Methods("GET")
	apiRouter.HandleFunc("/auth/login", api.login).Methods("POST")
	apiRouter.HandleFunc("/coins", api.listCoins).Methods("GET")
	apiRouter.HandleFunc("/coins/{name}", api.getCoin).Methods("GET")

	// Protected endpoints
	protectedRouter := apiRouter.PathPrefix("").Subrouter()
	protectedRouter.Use(authService.Middleware)
	protectedRouter.HandleFunc("/wallet", api.listWalletCoins).Methods("GET")
	protectedRouter.HandleFunc("/wallet/coins/{name}", api.addWalletCoin).Methods("POST")
	protectedRouter.HandleFunc("/wallet/coins/{name}", api.removeWalletCoin).Methods("DELETE")
	protectedRouter.HandleFunc("/clients/me", api.deleteClient).Methods("DELETE")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	stopSync()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func startMetricsServer(port int) {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Log.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Log.Error("metrics server stopped", zap.Error(err))
	}
}

func healthHandler(db *database.DB, redisClient *redisclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			http.Error(w, "Database health check failed", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			http.Error(w, "Redis health check failed", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}
}

type migrationStatusSource interface {
	GetMigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
}

func migrationsHandler(db migrationStatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		status, err := db.GetMigrationStatus(ctx)
		if err != nil {
			logger.Log.Error("failed to get migration status", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Log.Error("failed to encode migration status", zap.Error(err))
		}
	}
}

func readyHandler(db *database.DB, redisClient *redisclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			http.Error(w, "Database not ready", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			http.Error(w, "Redis not ready", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	}
}
