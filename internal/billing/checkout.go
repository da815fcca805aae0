package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	"github.com/quickfaqs/quickfaqs-api/internal/auth"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

// Metadata keys written on checkout sessions and their subscriptions.
const (
	MetadataAccountID = "account_id"
	MetadataPlanID    = "plan_id"

	// metadataLegacyUserID is read from events created before account_id existed.
	metadataLegacyUserID = "userId"
)

const defaultCheckoutTimeout = 10 * time.Second

// ErrCheckoutDisabled is returned when no Stripe API key is configured.
var ErrCheckoutDisabled = errors.New("checkout is not configured")

// CheckoutConfig configures the Checkout Session Initiator.
type CheckoutConfig struct {
	StripeAPIKey string
	FrontendURL  string
	Timeout      time.Duration
}

// CheckoutResult is the provider-hosted checkout the client is redirected to.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CheckoutInitiator starts Stripe-hosted checkout flows. It never mutates
// entitlement state; access is granted only when the webhook confirms payment.
type CheckoutInitiator struct {
	cfg      CheckoutConfig
	catalog  *Catalog
	accounts entitlement.Store

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewCheckoutInitiator creates a CheckoutInitiator.
func NewCheckoutInitiator(cfg CheckoutConfig, catalog *Catalog, accounts entitlement.Store) *CheckoutInitiator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCheckoutTimeout
	}
	cfg.StripeAPIKey = strings.TrimSpace(cfg.StripeAPIKey)
	cfg.FrontendURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	return &CheckoutInitiator{
		cfg:                   cfg,
		catalog:               catalog,
		accounts:              accounts,
		createCheckoutSession: stripesession.New,
	}
}

// Enabled reports whether a Stripe API key is configured.
func (c *CheckoutInitiator) Enabled() bool {
	return c.cfg.StripeAPIKey != ""
}

// CreateSession creates a subscription checkout session for accountID on planID.
func (c *CheckoutInitiator) CreateSession(ctx context.Context, accountID string, planID PlanID) (*CheckoutResult, error) {
	const op = "create_checkout_session"

	plan, ok := c.catalog.Lookup(planID)
	if !ok {
		return nil, internalerrors.Validation(op, "Unknown plan")
	}
	if !c.Enabled() {
		return nil, ErrCheckoutDisabled
	}

	account, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			return nil, internalerrors.NotFound(op, "User not found")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	metadata := map[string]string{
		MetadataAccountID: account.ID,
		MetadataPlanID:    string(plan.ID),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(c.cfg.FrontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(c.cfg.FrontendURL + "/pricing"),
		ClientReferenceID: stripe.String(account.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Metadata = metadata
	if account.StripeCustomerID != "" {
		params.Customer = stripe.String(account.StripeCustomerID)
	} else if account.Email != "" {
		params.CustomerEmail = stripe.String(account.Email)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	params.Context = callCtx

	stripe.Key = c.cfg.StripeAPIKey
	session, err := c.createCheckoutSession(params)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		appmetrics.CheckoutSessionsTotal.WithLabelValues(string(plan.ID), "provider_error").Inc()
		return nil, internalerrors.PaymentProvider(op, err)
	}
	if session == nil || strings.TrimSpace(session.URL) == "" {
		appmetrics.CheckoutSessionsTotal.WithLabelValues(string(plan.ID), "provider_error").Inc()
		return nil, internalerrors.PaymentProvider(op, errors.New("checkout session has no redirect URL"))
	}

	appmetrics.CheckoutSessionsTotal.WithLabelValues(string(plan.ID), "created").Inc()
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CheckoutHandlers serves the authenticated checkout endpoints.
type CheckoutHandlers struct {
	initiator *CheckoutInitiator
	catalog   *Catalog
}

// NewCheckoutHandlers creates the checkout HTTP handlers.
func NewCheckoutHandlers(initiator *CheckoutInitiator, catalog *Catalog) *CheckoutHandlers {
	return &CheckoutHandlers{initiator: initiator, catalog: catalog}
}

type createCheckoutRequest struct {
	PlanID  string `json:"planId"`
	PriceID string `json:"priceId"`
}

// HandleCreateCheckoutSession handles POST /api/payment/create-checkout-session.
// The account comes from the authenticated session, never the request body.
func (h *CheckoutHandlers) HandleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	const op = "create_checkout_session"
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, internalerrors.New(internalerrors.ErrorTypeAuth, op, internalerrors.ErrUnauthorized).
			WithMessage("Not authorized"))
		return
	}

	var req createCheckoutRequest
	if err := utils.DecodeJSONBody(w, r, op, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	planID := PlanID(strings.TrimSpace(req.PlanID))
	if planID == "" && strings.TrimSpace(req.PriceID) != "" {
		if plan, ok := h.catalog.ByPriceID(req.PriceID); ok {
			planID = plan.ID
		}
	}
	if planID == "" {
		utils.WriteError(w, internalerrors.Validation(op, "planId is required"))
		return
	}

	result, err := h.initiator.CreateSession(r.Context(), accountID, planID)
	if err != nil {
		if errors.Is(err, ErrCheckoutDisabled) {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse{Error: "Checkout is not available"})
			return
		}
		if errors.Is(err, internalerrors.ErrProviderFailure) {
			log.Error().Err(err).
				Str("account_id", accountID).
				Str("plan_id", string(planID)).
				Msg("Stripe checkout session creation failed")
		}
		utils.WriteError(w, err)
		return
	}

	log.Info().
		Str("account_id", accountID).
		Str("plan_id", string(planID)).
		Str("session_id", result.SessionID).
		Msg("Checkout session created")
	utils.WriteJSON(w, http.StatusOK, map[string]string{"url": result.URL})
}

type planView struct {
	ID       PlanID           `json:"id"`
	Name     string           `json:"name"`
	Interval string           `json:"interval"`
	Tier     entitlement.Tier `json:"tier"`
}

// HandleListPlans handles GET /api/payment/plans.
func (h *CheckoutHandlers) HandleListPlans(w http.ResponseWriter, _ *http.Request) {
	plans := h.catalog.List()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{ID: p.ID, Name: p.Name, Interval: p.Interval, Tier: p.Tier})
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"plans":           views,
		"checkoutEnabled": h.initiator.Enabled(),
	})
}
