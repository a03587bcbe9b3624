package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"challengeEngineAPI/handlers"
	"challengeEngineAPI/internal/cache"
	"challengeEngineAPI/internal/config"
	"challengeEngineAPI/internal/fasting"
	"challengeEngineAPI/internal/firebase"
	"challengeEngineAPI/internal/identity"
	"challengeEngineAPI/internal/logger"
	"challengeEngineAPI/internal/store"
	"challengeEngineAPI/middleware"
	"challengeEngineAPI/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err := pgxpool.NewWithConfig(bootCtx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := dbPool.Ping(bootCtx); err != nil {
		dbPool.Close()
		return nil, err
	}
	log.Info("connected to postgres")

	pg := store.NewPostgresStore(dbPool)
	if cfg.Migrate {
		if err := pg.Migrate(bootCtx); err != nil {
			dbPool.Close()
			return nil, err
		}
		log.Info("schema migrated")
	}
	return pg, nil
}

func newMemoryCache(ctx context.Context, ttl time.Duration) cache.EngagementCache {
	mc := cache.NewMemoryCache(ttl)
	go mc.RunSweeper(ctx, time.Minute)
	return mc
}

func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) cache.EngagementCache {
	if cfg.RedisAddr == "" {
		return newMemoryCache(ctx, cfg.EngagementCacheTTL)
	}
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn("redis unavailable, using in-process engagement cache", zap.Error(err))
		return newMemoryCache(ctx, cfg.EngagementCacheTTL)
	}
	log.Info("engagement cache backed by redis", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedisCache(rdb, cfg.EngagementCacheTTL)
}

func openFastingActivator(ctx context.Context, cfg *config.Config, log *zap.Logger) (fasting.Activator, func()) {
	app, err := firebase.NewApp(ctx, cfg.FirebaseServiceAccount, cfg.FirebaseCredentialsFile, log)
	if err != nil {
		log.Warn("firebase not configured, fasting activation disabled", zap.Error(err))
		return fasting.NewLogActivator(log), func() {}
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Warn("firestore client failed, fasting activation disabled", zap.Error(err))
		return fasting.NewLogActivator(log), func() {}
	}
	return fasting.NewFirestoreActivator(client), func() { client.Close() }
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var resolver identity.Resolver = identity.Static{}
	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		resolver = identity.NewClerkResolver(log)
		log.Info("clerk initialized")
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store")
		st.Close()
	}()

	activator, closeActivator := openFastingActivator(ctx, cfg, log)
	defer closeActivator()

	services.RegisterMetrics(prometheus.DefaultRegisterer)
	middleware.InitPrometheus(prometheus.DefaultRegisterer)

	dispatcher := services.NewSideEffectDispatcher(activator, cfg.DispatchWorkers, cfg.DispatchQueue, log)
	defer dispatcher.Stop()

	aggregator := services.NewAggregator(st, openCache(ctx, cfg, log), resolver, log)
	challengeService := services.NewChallengeService(st, aggregator, dispatcher, services.NewAccessPolicy(cfg.AdminUserIDs), log)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.CleanupVisitors(ctx)

	router := handlers.NewRouter(handlers.RouterConfig{
		ChallengeService: challengeService,
		Auth:             middleware.NewAuthenticator(cfg.ClerkSecretKey != "", cfg.DevJWTSecret, log),
		RateLimiter:      limiter,
		MetricsHandler:   promhttp.Handler(),
		MetricsUser:      cfg.MetricsUser,
		MetricsPass:      cfg.MetricsPass,
		WebhookSecret:    cfg.ClerkWebhookSecret,
		Health:           st.Ping,
		Log:              log,
	})

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server shutdown complete")
	return nil
}
