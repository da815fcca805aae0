package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/admin"
	"github.com/quickfaqs/quickfaqs-api/internal/auth"
	"github.com/quickfaqs/quickfaqs-api/internal/billing"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/usage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	tierGaugeInterval = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Run starts the API server and blocks until ctx is cancelled or a
// termination signal arrives, then shuts down gracefully.
func Run(ctx context.Context, version string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "quickfaqs-api",
	})
	log.Info().Str("version", version).Str("store", cfg.Store).Msg("Starting QuickFAQs API")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	deps, err := NewDeps(ctx, cfg, stores, version)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		admin.RunTierGauges(gctx, stores.Accounts, tierGaugeInterval)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("QuickFAQs API stopped")
	return err
}

// NewDeps builds the billing, usage and FAQ components over stores.
func NewDeps(ctx context.Context, cfg *Config, stores *Stores, version string) (*Deps, error) {
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	catalog := billing.NewCatalog(cfg.StripePriceMonthly, cfg.StripePriceYearly)
	checkout := billing.NewCheckoutInitiator(billing.CheckoutConfig{
		StripeAPIKey: cfg.StripeAPIKey,
		FrontendURL:  cfg.FrontendURL,
		Timeout:      cfg.CheckoutTimeout,
	}, catalog, stores.Accounts)
	if !checkout.Enabled() {
		log.Warn().Msg("Checkout disabled (set STRIPE_API_KEY and a plan price to enable)")
	}

	var ledger billing.EventLedger
	if cfg.Store == StoreMemory {
		ledger = billing.NewMemoryLedger()
	} else {
		if err := os.MkdirAll(cfg.LedgerDir(), 0o700); err != nil {
			return nil, fmt.Errorf("create webhook ledger dir: %w", err)
		}
		ledger = billing.NewFileLedger(cfg.LedgerDir())
	}
	webhook := billing.NewWebhookHandler(cfg.StripeWebhookSecret, billing.NewReconciler(stores.Accounts), ledger)

	var generator faq.Generator = faq.TemplateGenerator{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := faq.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerateTimeout)
		if err != nil {
			return nil, fmt.Errorf("init gemini generator: %w", err)
		}
		generator = gemini
		log.Info().
			Str("model", cfg.GeminiModel).
			Dur("timeout", cfg.GenerateTimeout).
			Msg("FAQ generator: Gemini")
	} else {
		log.Info().Msg("FAQ generator: template (set GEMINI_API_KEY to enable Gemini)")
	}

	return &Deps{
		Config:   cfg,
		Accounts: stores.Accounts,
		Tokens:   tokens,
		Checkout: checkout,
		Catalog:  catalog,
		Webhook:  webhook,
		FAQs:     faq.NewService(usage.NewGate(stores.Accounts), stores.FAQs, generator),
		Version:  version,
	}, nil
}
