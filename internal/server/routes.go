package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quickfaqs/quickfaqs-api/internal/admin"
	"github.com/quickfaqs/quickfaqs-api/internal/auth"
	"github.com/quickfaqs/quickfaqs-api/internal/billing"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/rs/cors"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config   *Config
	Accounts entitlement.Store
	Tokens   *auth.Tokens
	Checkout *billing.CheckoutInitiator
	Catalog  *billing.Catalog
	Webhook  http.Handler
	FAQs     *faq.Service
	Version  string
}

// NewHandler builds the full middleware chain and route table.
func NewHandler(deps *Deps) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
	})

	return logging.RequestIDMiddleware(SecurityHeaders(corsHandler.Handler(mux)))
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	adminAuth := func(next http.Handler) http.Handler {
		return admin.AdminKeyMiddleware(deps.Config.AdminKey, next)
	}
	sessionAuth := auth.RequireAccount(deps.Tokens)
	publicLimiter := NewRateLimiter(deps.Config.RateLimitPerMinute, deps.Config.TrustedProxies)
	authLimiter := NewRateLimiter(deps.Config.AuthRateLimitPerMinute, deps.Config.TrustedProxies)
	adminLogs := logging.ComponentMiddleware("admin")
	authLogs := logging.ComponentMiddleware("auth")
	billingLogs := logging.ComponentMiddleware("billing")
	faqLogs := logging.ComponentMiddleware("faq")

	// Health and readiness checks are unauthenticated.
	mux.HandleFunc("GET /healthz", admin.HandleHealthz)
	mux.HandleFunc("GET /readyz", admin.HandleReadyz(deps.Accounts))

	mux.Handle("GET /status", adminLogs(adminAuth(admin.HandleStatus(deps.Accounts, deps.Version))))
	metricsHandler := promhttp.Handler()
	if deps.Config.PublicMetrics {
		mux.Handle("GET /metrics", metricsHandler)
	} else {
		mux.Handle("GET /metrics", adminAuth(metricsHandler))
	}
	mux.Handle("/admin/accounts", adminLogs(adminAuth(admin.HandleListAccounts(deps.Accounts))))

	// Accounts
	authHandlers := auth.NewHandlers(deps.Accounts, deps.Tokens)
	mux.Handle("POST /api/auth/register", authLogs(authLimiter.Middleware(http.HandlerFunc(authHandlers.HandleRegister))))
	mux.Handle("POST /api/auth/login", authLogs(authLimiter.Middleware(http.HandlerFunc(authHandlers.HandleLogin))))
	mux.Handle("GET /api/auth/me", authLogs(sessionAuth(http.HandlerFunc(authHandlers.HandleMe))))

	// Billing. The webhook is signature-authenticated and checks its own method.
	checkoutHandlers := billing.NewCheckoutHandlers(deps.Checkout, deps.Catalog)
	mux.Handle("GET /api/payment/plans", billingLogs(http.HandlerFunc(checkoutHandlers.HandleListPlans)))
	mux.Handle("POST /api/payment/create-checkout-session", billingLogs(sessionAuth(http.HandlerFunc(checkoutHandlers.HandleCreateCheckoutSession))))
	mux.Handle("/api/payment/webhook", billingLogs(publicLimiter.Middleware(deps.Webhook)))

	// FAQs (credit-gated generation)
	faqHandlers := faq.NewHandlers(deps.FAQs)
	mux.Handle("POST /api/faq/generate", faqLogs(sessionAuth(http.HandlerFunc(faqHandlers.HandleGenerate))))
	mux.Handle("GET /api/faq/user", faqLogs(sessionAuth(http.HandlerFunc(faqHandlers.HandleList))))
	mux.Handle("GET /api/faq/{id}", faqLogs(sessionAuth(http.HandlerFunc(faqHandlers.HandleGet))))
}
