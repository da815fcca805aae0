package server

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds all configuration for the API server.
type Config struct {
	BindAddress string
	Port        int
	DataDir     string

	Store         string
	MongoURI      string
	MongoDatabase string

	JWTSecret string
	TokenTTL  time.Duration
	AdminKey  string

	FrontendURL string
	CORSOrigins []string

	StripeAPIKey           string
	StripeWebhookSecret    string
	StripePriceMonthly     string
	StripePriceYearly      string
	CheckoutTimeout        time.Duration
	GenerateTimeout        time.Duration
	GeminiAPIKey           string
	GeminiModel            string
	RateLimitPerMinute     int
	AuthRateLimitPerMinute int
	// TrustedProxies may set X-Forwarded-For; nil trusts no one.
	TrustedProxies         *utils.TrustedProxies

	LogLevel      string
	LogFormat     string
	PublicMetrics bool
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// LedgerDir returns the directory of the durable webhook event ledger.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "stripe", "webhook-events")
}

// LoadConfig loads server configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadStoreConfig loads only what is needed to open the store, for
// operator commands that never serve traffic.
func LoadStoreConfig() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func loadEnv() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("QF_PORT", 4000)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envOrDefaultInt("QF_RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}
	authRateLimit, err := envOrDefaultInt("QF_AUTH_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := envOrDefaultDuration("QF_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	checkoutTimeout, err := envOrDefaultDuration("QF_CHECKOUT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	generateTimeout, err := envOrDefaultDuration("QF_GENERATE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	trustedProxies, err := utils.ParseTrustedProxies(strings.Split(os.Getenv("QF_TRUSTED_PROXIES"), ","))
	if err != nil {
		return nil, fmt.Errorf("QF_TRUSTED_PROXIES: %w", err)
	}

	frontendURL := strings.TrimRight(utils.GetenvTrim("QF_FRONTEND_URL"), "/")
	origins := splitList(os.Getenv("QF_CORS_ORIGINS"))
	if len(origins) == 0 && frontendURL != "" {
		origins = []string{frontendURL}
	}

	return &Config{
		BindAddress:            envOrDefault("QF_BIND_ADDRESS", "0.0.0.0"),
		Port:                   port,
		DataDir:                envOrDefault("QF_DATA_DIR", "./data"),
		Store:                  strings.ToLower(envOrDefault("QF_STORE", StoreSQLite)),
		MongoURI:               utils.GetenvTrim("QF_MONGO_URI"),
		MongoDatabase:          envOrDefault("QF_MONGO_DATABASE", "quickfaqs"),
		JWTSecret:              utils.GetenvTrim("QF_JWT_SECRET"),
		TokenTTL:               tokenTTL,
		AdminKey:               utils.GetenvTrim("QF_ADMIN_KEY"),
		FrontendURL:            frontendURL,
		CORSOrigins:            origins,
		StripeAPIKey:           utils.GetenvTrim("STRIPE_API_KEY"),
		StripeWebhookSecret:    utils.GetenvTrim("STRIPE_WEBHOOK_SECRET"),
		StripePriceMonthly:     utils.GetenvTrim("STRIPE_PRICE_PREMIUM_MONTHLY"),
		StripePriceYearly:      utils.GetenvTrim("STRIPE_PRICE_PREMIUM_YEARLY"),
		CheckoutTimeout:        checkoutTimeout,
		GenerateTimeout:        generateTimeout,
		GeminiAPIKey:           utils.GetenvTrim("GEMINI_API_KEY"),
		GeminiModel:            envOrDefault("QF_GEMINI_MODEL", faq.DefaultGeminiModel),
		RateLimitPerMinute:     rateLimit,
		AuthRateLimitPerMinute: authRateLimit,
		TrustedProxies:         trustedProxies,
		LogLevel:               envOrDefault("QF_LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("QF_LOG_FORMAT", "auto"),
		PublicMetrics:          utils.ParseBool(os.Getenv("QF_PUBLIC_METRICS")),
	}, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "QF_JWT_SECRET")
	}
	if c.AdminKey == "" {
		missing = append(missing, "QF_ADMIN_KEY")
	}
	if c.FrontendURL == "" {
		missing = append(missing, "QF_FRONTEND_URL")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Store == StoreMongo && c.MongoURI == "" {
		missing = append(missing, "QF_MONGO_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("QF_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("QF_JWT_SECRET must be at least 32 characters")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("QF_TOKEN_TTL must be greater than 0, got %s", c.TokenTTL)
	}
	if c.CheckoutTimeout <= 0 {
		return fmt.Errorf("QF_CHECKOUT_TIMEOUT must be greater than 0, got %s", c.CheckoutTimeout)
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("QF_GENERATE_TIMEOUT must be greater than 0, got %s", c.GenerateTimeout)
	}
	if c.RateLimitPerMinute <= 0 || c.AuthRateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limits must be greater than 0")
	}

	parsed, err := url.Parse(c.FrontendURL)
	if err != nil {
		return fmt.Errorf("QF_FRONTEND_URL must be a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("QF_FRONTEND_URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("QF_FRONTEND_URL must include a host")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
		return nil
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("QF_MONGO_URI is required when QF_STORE=mongo")
		}
		return nil
	default:
		return fmt.Errorf("QF_STORE must be one of memory, sqlite, mongo, got %q", c.Store)
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
