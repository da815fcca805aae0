package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(store entitlement.Store) *WebhookHandler {
	return NewWebhookHandler(testWebhookSecret, NewReconciler(store), NewMemoryLedger())
}

func deliver(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, WebhookResponse) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp WebhookResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestWebhookCheckoutCompletedGrantsPremium(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "b@example.com")
	_, err := store.SetTier(t.Context(), account.ID, entitlement.TierFree, 0)
	require.NoError(t, err)

	h := newTestWebhook(store)
	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, checkoutCompletedJSON(t, "evt_b", account.ID, "cus_b1234")))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Received)
	assert.Equal(t, StatusProcessed, resp.Status)
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierPremium, Credits: entitlement.UnlimitedCredits},
		entitlementOf(t, store, account.ID))

	linked, err := store.GetAccountByStripeCustomer(t.Context(), "cus_b1234")
	require.NoError(t, err)
	assert.Equal(t, account.ID, linked.ID)
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "c@example.com")
	h := newTestWebhook(store)
	payload := checkoutCompletedJSON(t, "evt_c", account.ID, "cus_c1234")

	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusProcessed, resp.Status)
	first := entitlementOf(t, store, account.ID)

	rec, resp = deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusDuplicate, resp.Status)
	assert.Equal(t, first, entitlementOf(t, store, account.ID))
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierPremium, Credits: entitlement.UnlimitedCredits}, first)
}

func TestWebhookCancellationReturnsAccountToFree(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "d@example.com")
	_, err := store.SetTier(t.Context(), account.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	h := newTestWebhook(store)

	payload := subscriptionDeletedJSON(t, "evt_d", map[string]string{MetadataAccountID: account.ID}, "cus_d1234")
	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	want := entitlement.Entitlement{Tier: entitlement.TierFree, Credits: entitlement.FreeTierGrant}
	assert.Equal(t, want, entitlementOf(t, store, account.ID))

	// A distinct cancellation event for the same account is harmless.
	payload = subscriptionDeletedJSON(t, "evt_d2", map[string]string{MetadataAccountID: account.ID}, "cus_d1234")
	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusProcessed, resp.Status)
	assert.Equal(t, want, entitlementOf(t, store, account.ID))
}

func TestWebhookCancellationResolvesLinkedCustomer(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "linked@example.com")
	h := newTestWebhook(store)

	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, checkoutCompletedJSON(t, "evt_l1", account.ID, "cus_linked1")))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = deliver(h, signedWebhookRequest(t, testWebhookSecret, subscriptionDeletedJSON(t, "evt_l2", nil, "cus_linked1")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entitlement.TierFree, entitlementOf(t, store, account.ID).Tier)
}

func TestWebhookInvalidSignatureIsInert(t *testing.T) {
	base := entitlement.NewMemoryStore()
	store := &countingStore{Store: base}
	account := newAccount(t, base, "e@example.com")
	h := newTestWebhook(store)
	payload := checkoutCompletedJSON(t, "evt_e", account.ID, "cus_e1234")

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"wrong secret", func() *http.Request { return signedWebhookRequest(t, "whsec_other", payload) }},
		{"missing header", func() *http.Request {
			req := signedWebhookRequest(t, testWebhookSecret, payload)
			req.Header.Del(SignatureHeader)
			return req
		}},
		{"tampered body", func() *http.Request {
			req := signedWebhookRequest(t, testWebhookSecret, payload)
			tampered := httptest.NewRequest(http.MethodPost, "/api/payment/webhook",
				strings.NewReader(strings.Replace(payload, "evt_e", "evt_x", 1)))
			tampered.Header = req.Header
			return tampered
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := deliver(h, tt.req())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	assert.Zero(t, store.writes.Load())
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierFree, Credits: entitlement.FreeTierGrant},
		entitlementOf(t, base, account.ID))
}

func TestWebhookUnknownEventTypeIsNoop(t *testing.T) {
	base := entitlement.NewMemoryStore()
	store := &countingStore{Store: base}
	account := newAccount(t, base, "f@example.com")
	h := newTestWebhook(store)

	payload := eventJSON(t, "evt_f", "invoice.paid", map[string]any{
		"id":       "in_123",
		"object":   "invoice",
		"metadata": map[string]string{MetadataAccountID: account.ID},
	})
	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Received)
	assert.Equal(t, StatusIgnored, resp.Status)
	assert.Zero(t, store.writes.Load())
}

func TestWebhookUnknownAccountIsAcknowledged(t *testing.T) {
	store := entitlement.NewMemoryStore()
	h := newTestWebhook(store)

	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, checkoutCompletedJSON(t, "evt_g", "acct_gone", "cus_g1234")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusProcessed, resp.Status)

	counts, err := store.CountByTier(t.Context())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestWebhookStoreFailureIsRetried(t *testing.T) {
	base := entitlement.NewMemoryStore()
	account := newAccount(t, base, "h@example.com")
	store := &flakyStore{Store: base}
	store.failures.Store(1)
	h := newTestWebhook(store)
	payload := checkoutCompletedJSON(t, "evt_h", account.ID, "cus_h1234")

	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, entitlement.TierFree, entitlementOf(t, base, account.ID).Tier)

	// The failed attempt was not recorded, so redelivery processes it.
	rec, resp := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusProcessed, resp.Status)
	assert.Equal(t, entitlement.TierPremium, entitlementOf(t, base, account.ID).Tier)
	assert.Equal(t, int32(2), store.setCalls.Load())
}

type inFlightLedger struct{}

func (inFlightLedger) Do(string, func() error) (bool, error) { return false, ErrEventInFlight }

func TestWebhookInFlightReturnsConflict(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "i@example.com")
	h := NewWebhookHandler(testWebhookSecret, NewReconciler(store), inFlightLedger{})

	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, checkoutCompletedJSON(t, "evt_i", account.ID, "cus_i1234")))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhookUndecodableModeledPayload(t *testing.T) {
	store := entitlement.NewMemoryStore()
	h := newTestWebhook(store)

	payload := eventJSON(t, "evt_j", StripeEventCheckoutCompleted, map[string]any{
		"id":       "cs_j",
		"metadata": "not-a-map",
	})
	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequestGuards(t *testing.T) {
	store := entitlement.NewMemoryStore()

	rec := httptest.NewRecorder()
	newTestWebhook(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	unconfigured := NewWebhookHandler("", NewReconciler(store), nil)
	rec, _ = deliver(unconfigured, signedWebhookRequest(t, testWebhookSecret, `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookRecordsMetrics(t *testing.T) {
	store := entitlement.NewMemoryStore()
	account := newAccount(t, store, "m@example.com")
	h := newTestWebhook(store)

	counter := appmetrics.WebhookRequestsTotal.WithLabelValues(StripeEventCheckoutCompleted, "200")
	before := testutil.ToFloat64(counter)

	rec, _ := deliver(h, signedWebhookRequest(t, testWebhookSecret, checkoutCompletedJSON(t, "evt_m", account.ID, "cus_m1234")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestWebhookSignatureFailureIsAuthenticationError(t *testing.T) {
	h := newTestWebhook(entitlement.NewMemoryStore())
	payload := []byte(checkoutCompletedJSON(t, "evt_sig", "acct_sig", "cus_sig1234"))

	_, err := h.verify(payload, "")
	require.ErrorIs(t, err, internalerrors.ErrUnauthorized)
	assert.Equal(t, http.StatusBadRequest, webhookStatus(err))

	_, err = h.verify(payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, internalerrors.ErrUnauthorized)
	assert.Equal(t, http.StatusBadRequest, webhookStatus(err))

	signed := signedWebhookRequest(t, testWebhookSecret, string(payload))
	event, err := h.verify(payload, signed.Header.Get(SignatureHeader))
	require.NoError(t, err)
	assert.Equal(t, "evt_sig", event.ID)

	assert.Equal(t, http.StatusBadGateway, webhookStatus(internalerrors.PaymentProvider("op", assert.AnError)))
}
