package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set(SignatureHeader, signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func eventJSON(t *testing.T, id, eventType string, object map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-01-27.acacia",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return string(data)
}

func checkoutCompletedJSON(t *testing.T, eventID, accountID, customerID string) string {
	return eventJSON(t, eventID, StripeEventCheckoutCompleted, map[string]any{
		"id":                  "cs_test_" + eventID,
		"object":              "checkout.session",
		"mode":                "subscription",
		"customer":            customerID,
		"subscription":        "sub_" + eventID,
		"client_reference_id": accountID,
		"metadata": map[string]string{
			MetadataAccountID: accountID,
			MetadataPlanID:    string(PlanPremiumMonthly),
		},
	})
}

func subscriptionDeletedJSON(t *testing.T, eventID string, metadata map[string]string, customerID string) string {
	return eventJSON(t, eventID, StripeEventSubscriptionCancelled, map[string]any{
		"id":       "sub_" + eventID,
		"object":   "subscription",
		"customer": customerID,
		"status":   "canceled",
		"metadata": metadata,
	})
}

func newAccount(t *testing.T, store entitlement.Store, email string) *entitlement.Account {
	t.Helper()
	a := &entitlement.Account{Email: email}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a
}

func entitlementOf(t *testing.T, store entitlement.Store, accountID string) entitlement.Entitlement {
	t.Helper()
	a, err := store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return a.Entitlement()
}

// flakyStore fails SetTier while failures remain.
type flakyStore struct {
	entitlement.Store
	failures atomic.Int32
	setCalls atomic.Int32
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) SetTier(ctx context.Context, accountID string, tier entitlement.Tier, credits int64) (*entitlement.Account, error) {
	s.setCalls.Add(1)
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return nil, errDiskFull
	}
	return s.Store.SetTier(ctx, accountID, tier, credits)
}

// countingStore counts every call that can mutate entitlement state.
type countingStore struct {
	entitlement.Store
	writes atomic.Int32
}

func (s *countingStore) SetTier(ctx context.Context, accountID string, tier entitlement.Tier, credits int64) (*entitlement.Account, error) {
	s.writes.Add(1)
	return s.Store.SetTier(ctx, accountID, tier, credits)
}

func (s *countingStore) LinkStripeCustomer(ctx context.Context, accountID, customerID string) error {
	s.writes.Add(1)
	return s.Store.LinkStripeCustomer(ctx, accountID, customerID)
}
