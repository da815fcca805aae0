package usage

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFreeAccount(t *testing.T, store entitlement.Store) string {
	t.Helper()
	a := &entitlement.Account{Email: t.Name() + "@example.com"}
	require.NoError(t, store.CreateAccount(context.Background(), a))
	return a.ID
}

func creditsOf(t *testing.T, store entitlement.Store, id string) entitlement.Entitlement {
	t.Helper()
	a, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Entitlement()
}

func TestFreeQuotaRunsOut(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)

	for want := int64(2); want >= 0; want-- {
		d, err := gate.Consume(ctx, id, ActionGenerateFAQ)
		require.NoError(t, err)
		assert.True(t, d.Metered)
		assert.Equal(t, want, d.Remaining)
	}

	_, err := gate.Consume(ctx, id, ActionGenerateFAQ)
	require.ErrorIs(t, err, internalerrors.ErrQuotaExceeded)
	assert.Equal(t, http.StatusForbidden, internalerrors.StatusCode(err))
	assert.Equal(t, "No FAQ credits remaining. Please upgrade your subscription.", internalerrors.PublicMessage(err))
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierFree, Credits: 0}, creditsOf(t, store, id))
}

func TestPremiumBypassesMetering(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)
	_, err := store.SetTier(ctx, id, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		d, err := gate.Consume(ctx, id, ActionGenerateFAQ)
		require.NoError(t, err)
		assert.False(t, d.Metered)
	}
	assert.Equal(t, entitlement.UnlimitedCredits, creditsOf(t, store, id).Credits)
}

func TestUpgradeLiftsQuotaAndCancellationRestoresIt(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)
	_, err := store.SetTier(ctx, id, entitlement.TierFree, 0)
	require.NoError(t, err)

	_, err = gate.Consume(ctx, id, ActionGenerateFAQ)
	require.ErrorIs(t, err, internalerrors.ErrQuotaExceeded)

	_, err = store.SetTier(ctx, id, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	_, err = gate.Consume(ctx, id, ActionGenerateFAQ)
	require.NoError(t, err)

	_, err = store.SetTier(ctx, id, entitlement.TierFree, entitlement.FreeTierGrant)
	require.NoError(t, err)
	d, err := gate.Consume(ctx, id, ActionGenerateFAQ)
	require.NoError(t, err)
	assert.True(t, d.Metered)
	assert.Equal(t, int64(2), d.Remaining)
}

func TestConcurrentConsumeNeverOverspends(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)

	var allowed, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Consume(ctx, id, ActionGenerateFAQ)
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.Is(err, internalerrors.ErrQuotaExceeded):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), allowed.Load())
	assert.Equal(t, int32(22), denied.Load())
	assert.Equal(t, int64(0), creditsOf(t, store, id).Credits)
}

func TestConsumeUnknownAccount(t *testing.T) {
	gate := NewGate(entitlement.NewMemoryStore())
	_, err := gate.Consume(context.Background(), "acct_missing", ActionGenerateFAQ)
	assert.ErrorIs(t, err, internalerrors.ErrNotFound)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)

	d, err := gate.Consume(ctx, id, ActionGenerateFAQ)
	require.NoError(t, err)
	require.NoError(t, gate.Refund(ctx, d))
	assert.Equal(t, entitlement.FreeTierGrant, creditsOf(t, store, id).Credits)

	// An unmetered decision never touches the balance.
	require.NoError(t, gate.Refund(ctx, Decision{AccountID: id}))
	assert.Equal(t, entitlement.FreeTierGrant, creditsOf(t, store, id).Credits)

	// Upgraded before the refund: nothing to hand back.
	d, err = gate.Consume(ctx, id, ActionGenerateFAQ)
	require.NoError(t, err)
	_, err = store.SetTier(ctx, id, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	require.NoError(t, gate.Refund(ctx, d))
	assert.Equal(t, entitlement.UnlimitedCredits, creditsOf(t, store, id).Credits)
}

func TestRefundAfterCancellationKeepsFixedGrant(t *testing.T) {
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	gate := NewGate(store)
	id := newFreeAccount(t, store)
	_, err := store.SetTier(ctx, id, entitlement.TierFree, 1)
	require.NoError(t, err)

	d, err := gate.Consume(ctx, id, ActionGenerateFAQ)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Remaining)

	// The cancellation webhook lands while generation is still running.
	_, err = store.SetTier(ctx, id, entitlement.TierFree, entitlement.FreeTierGrant)
	require.NoError(t, err)

	require.NoError(t, gate.Refund(ctx, d))
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierFree, Credits: entitlement.FreeTierGrant},
		creditsOf(t, store, id))
}
