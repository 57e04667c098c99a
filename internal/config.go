package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for checkout redirect links)
	BaseURL string

	// Persistence backend: "postgres" or "memory".
	// Memory is for development only — everything is lost on restart.
	StoreProvider string

	// Entitlement resolution strategy: "record" (local snapshot) or
	// "stripe" (live API lookup).
	EntitlementStrategy string

	// JWT verification for incoming API tokens
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTLeeway   time.Duration

	// Entitlement cache (optional, stripe strategy only)
	RedisAddr           string
	EntitlementCacheTTL time.Duration

	// Stripe Billing Configuration
	// These are required when billing is enabled in production.
	// In development, billing handlers function as stubs if these are empty.
	StripeSecretKey      string   // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecrets []string // Webhook signing secrets (whsec_...), newest first during rotation

	// Stripe price IDs for the subscription plans
	StripeBasicPriceID string
	StripeProPriceID   string
	StripeElitePriceID string

	// Extra price-to-plan mappings ("price_x:pro,price_y:elite") for prices
	// that predate the lookup-key convention
	StripePricePlanMap map[string]string

	// AI Provider Configuration
	AIProvider       string // "openai" or "mock"
	OpenAIAPIKey     string
	OpenAIModel      string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Request rate limiting (per client IP)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		StoreProvider:       getEnv("STORE_PROVIDER", "postgres"),
		EntitlementStrategy: getEnv("ENTITLEMENT_STRATEGY", "record"),

		// JWT verification
		JWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
		JWTIssuer:   getEnv("AUTH_JWT_ISSUER", ""),
		JWTAudience: getEnv("AUTH_JWT_AUDIENCE", ""),
		JWTLeeway:   getEnvDuration("AUTH_JWT_LEEWAY", 30*time.Second),

		// Entitlement cache
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		EntitlementCacheTTL: getEnvDuration("ENTITLEMENT_CACHE_TTL", 60*time.Second),

		// Stripe billing (optional — stubs work without these)
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),

		// Stripe price IDs (optional — required when billing is enabled)
		StripeBasicPriceID: getEnv("STRIPE_PRICE_BASIC", ""),
		StripeProPriceID:   getEnv("STRIPE_PRICE_PRO", ""),
		StripeElitePriceID: getEnv("STRIPE_PRICE_ELITE", ""),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Rate limiting defaults
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse webhook secrets from comma-separated environment variable.
	// Multiple secrets let a signing-secret rotation overlap without
	// dropping events.
	secretsStr := getEnv("STRIPE_WEBHOOK_SECRET", "")
	if secretsStr != "" {
		for _, s := range strings.Split(secretsStr, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				cfg.StripeWebhookSecrets = append(cfg.StripeWebhookSecrets, trimmed)
			}
		}
	}

	// Parse extra price-to-plan mappings ("price_x:pro,price_y:elite")
	planMapStr := getEnv("STRIPE_PRICE_PLAN_MAP", "")
	if planMapStr != "" {
		cfg.StripePricePlanMap = make(map[string]string)
		for _, pair := range strings.Split(planMapStr, ",") {
			priceID, plan, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok || priceID == "" || plan == "" {
				return nil, fmt.Errorf("STRIPE_PRICE_PLAN_MAP entry %q must be price_id:plan", pair)
			}
			cfg.StripePricePlanMap[priceID] = strings.ToLower(plan)
		}
	}

	// Validate persistence configuration
	if cfg.StoreProvider == "postgres" {
		cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
		if cfg.DatabaseUrl == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_PROVIDER is 'postgres'")
		}
	} else if cfg.StoreProvider != "memory" {
		return nil, fmt.Errorf("STORE_PROVIDER must be either 'postgres' or 'memory', got: %s", cfg.StoreProvider)
	}

	// Required
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	// Validate entitlement strategy
	if cfg.EntitlementStrategy != "record" && cfg.EntitlementStrategy != "stripe" {
		return nil, fmt.Errorf("ENTITLEMENT_STRATEGY must be either 'record' or 'stripe', got: %s", cfg.EntitlementStrategy)
	}
	if cfg.EntitlementStrategy == "stripe" && cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when ENTITLEMENT_STRATEGY is 'stripe'")
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "openai" {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'openai' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
