package billing

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// SignatureHeader carries Stripe's signature over the raw request body.
const SignatureHeader = "Stripe-Signature"

var errMissingSignature = errors.New("missing " + SignatureHeader + " header")

// Webhook response statuses.
const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

// WebhookResponse is the body of a 2xx webhook answer.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

// WebhookHandler verifies Stripe deliveries and reconciles them into
// entitlement state. It acknowledges only after the transition is durable.
type WebhookHandler struct {
	secret     string
	reconciler *Reconciler
	ledger     EventLedger
}

// NewWebhookHandler creates the Stripe webhook HTTP handler.
func NewWebhookHandler(secret string, reconciler *Reconciler, ledger EventLedger) *WebhookHandler {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &WebhookHandler{
		secret:     strings.TrimSpace(secret),
		reconciler: reconciler,
		ledger:     ledger,
	}
}

// ServeHTTP verifies the Stripe signature and dispatches the event.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		appmetrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		appmetrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	respondError := func(code int, msg string) {
		status = code
		utils.WriteJSON(w, code, utils.ErrorResponse{Error: msg})
	}
	log := logging.FromContext(r.Context())

	if r.Method != http.MethodPost {
		respondError(http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.secret == "" {
		respondError(http.StatusServiceUnavailable, "webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := h.verify(payload, r.Header.Get(SignatureHeader))
	if err != nil {
		log.Warn().Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Stripe webhook rejected: signature verification failed")
		respondError(webhookStatus(err), "invalid Stripe signature")
		return
	}
	eventType = string(event.Type)
	if logging.IsLevelEnabled(zerolog.DebugLevel) && event.Data != nil {
		log.Debug().
			Str("event_id", event.ID).
			Str("type", eventType).
			RawJSON("object", event.Data.Raw).
			Msg("Stripe webhook payload")
	}

	ev, err := ParseEvent(&event)
	if err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("Stripe webhook payload rejected")
		respondError(webhookStatus(err), internalerrors.PublicMessage(err))
		return
	}

	if _, ok := ev.(Ignored); ok {
		log.Info().
			Str("type", eventType).
			Str("event_id", event.ID).
			Msg("Stripe webhook ignored (unhandled type)")
		utils.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true, Status: StatusIgnored})
		return
	}

	already, err := h.ledger.Do(ev.EventID(), func() error {
		_, applyErr := h.reconciler.Apply(r.Context(), ev)
		return applyErr
	})
	if err != nil {
		if errors.Is(err, ErrEventInFlight) {
			log.Warn().
				Str("event_id", event.ID).
				Str("type", eventType).
				Msg("Stripe webhook event is already in-flight; returning non-2xx so Stripe retries")
			respondError(http.StatusConflict, "event is being processed; retry later")
			return
		}
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("Stripe webhook processing failed")
		respondError(http.StatusInternalServerError, "processing failed")
		return
	}

	if already {
		utils.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true, Status: StatusDuplicate})
		return
	}
	utils.WriteJSON(w, http.StatusOK, WebhookResponse{Received: true, Status: StatusProcessed})
}

// verify checks the signature over the raw payload and decodes the event.
func (h *WebhookHandler) verify(payload []byte, sigHeader string) (stripe.Event, error) {
	const op = "verify_webhook"
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, internalerrors.Authentication(op, errMissingSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, internalerrors.Authentication(op, err)
	}
	return event, nil
}

// webhookStatus maps err to the status Stripe sees. A delivery that fails
// signature verification is a bad request, not a missing session.
func webhookStatus(err error) int {
	if internalerrors.TypeOf(err) == internalerrors.ErrorTypeAuth {
		return http.StatusBadRequest
	}
	return internalerrors.StatusCode(err)
}
