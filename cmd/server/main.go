package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pixelproof/pixelproof/internal"
	"github.com/pixelproof/pixelproof/internal/ai"
	aimock "github.com/pixelproof/pixelproof/internal/ai/mock"
	"github.com/pixelproof/pixelproof/internal/ai/openai"
	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/billing"
	"github.com/pixelproof/pixelproof/internal/cache"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/handler"
	"github.com/pixelproof/pixelproof/internal/metrics"
	"github.com/pixelproof/pixelproof/internal/middleware"
	"github.com/pixelproof/pixelproof/internal/repository"
	"github.com/pixelproof/pixelproof/internal/service"
	"github.com/pixelproof/pixelproof/internal/storage"
)

const version = "0.3.0"

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// ==========================================================================
	// Persistence
	// ==========================================================================

	var store repository.Store
	switch cfg.StoreProvider {
	case "postgres":
		// goose migrations run over database/sql; the repository itself uses
		// a pgx pool.
		migrationDB, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		if err := migrationDB.PingContext(ctx); err != nil {
			migrationDB.Close()
			return fmt.Errorf("database ping failed: %w", err)
		}
		if err := internal.RunMigrations(migrationDB); err != nil {
			migrationDB.Close()
			return fmt.Errorf("migration failed: %w", err)
		}
		migrationDB.Close()

		pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
		if err != nil {
			return fmt.Errorf("connection pool failed: %w", err)
		}
		defer pool.Close()

		store = repository.NewPostgres(pool)
		logger.Info("Database ready")
	case "memory":
		store = repository.NewMemory()
		logger.Warn("Using in-memory store; all data is lost on restart")
	}

	// ==========================================================================
	// Billing
	// ==========================================================================

	var billingSvc billing.Service
	if cfg.StripeSecretKey != "" {
		planByPrice := make(map[string]domain.PlanID, len(cfg.StripePricePlanMap))
		for priceID, plan := range cfg.StripePricePlanMap {
			planByPrice[priceID] = domain.PlanFromString(plan)
		}
		billingSvc = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecrets, billing.PriceConfig{
			BasicPriceID:  cfg.StripeBasicPriceID,
			ProPriceID:    cfg.StripeProPriceID,
			ElitePriceID:  cfg.StripeElitePriceID,
			PlanByPriceID: planByPrice,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; billing endpoints are disabled")
	}

	// ==========================================================================
	// Entitlement resolution and quota
	// ==========================================================================

	var entCache cache.EntitlementCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer client.Close()
		entCache = cache.NewRedisCache(client, cfg.EntitlementCacheTTL)
		logger.Info("Entitlement cache enabled", "ttl", cfg.EntitlementCacheTTL)
	}

	var resolver service.Resolver
	switch cfg.EntitlementStrategy {
	case "stripe":
		resolver = service.NewStripeResolver(store, billingSvc, entCache, logger)
	default:
		resolver = service.NewRecordResolver(store, logger)
	}
	logger.Info("Entitlement strategy configured", "strategy", cfg.EntitlementStrategy)

	gate := service.NewQuotaGate(resolver, store, logger)
	reconciler := service.NewReconciler(store, billingSvc, logger)

	// ==========================================================================
	// AI provider and storage
	// ==========================================================================

	var provider ai.Provider
	switch cfg.AIProvider {
	case "openai":
		provider, err = openai.New(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("openai provider initialization failed: %w", err)
		}
	default:
		provider = aimock.New(logger)
		logger.Warn("Using mock AI provider; reports are canned")
	}

	var objectStore storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		objectStore, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		objectStore, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	comparisons := service.NewComparisonService(gate, provider, objectStore, store, logger)

	// ==========================================================================
	// Middleware and handlers
	// ==========================================================================

	verifier, err := auth.NewJWTVerifier(auth.JWTVerifierConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return fmt.Errorf("jwt verifier initialization failed: %w", err)
	}

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(verifier, logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(rateLimiter, logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	handler.NewHealthHandler(version).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Local storage objects are served through the storage backend in
	// development; R2 serves its own objects via presigned URLs.
	if cfg.StorageProvider == "local" {
		handler.NewFilesHandler(objectStore, logger).RegisterRoutes(mux)
	}

	handler.NewCompareHandler(comparisons, logger).RegisterRoutes(mux, authMw.RequireIdentity)
	handler.NewAccountHandler(gate, resolver, store, logger).RegisterRoutes(mux, authMw.RequireIdentity)
	handler.NewBillingHandler(billingSvc, store, cfg.BaseURL, logger).RegisterRoutes(mux, authMw.RequireIdentity)
	handler.NewWebhookHandler(billingSvc, reconciler, logger).RegisterRoutes(mux)

	stack := middleware.Stack(
		securityMw.Handler,
		loggingMw.Handler,
		metrics.Middleware,
		rateLimitMw.Limit,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
