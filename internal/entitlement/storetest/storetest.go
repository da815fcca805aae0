// Package storetest holds behaviour checks shared by every entitlement.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) entitlement.Store

// Run exercises store against the behaviour every backend must share.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("SetTierReplacesBothFields", func(t *testing.T) { testSetTier(t, newStore(t)) })
	t.Run("DecrementStopsAtZero", func(t *testing.T) { testDecrementStopsAtZero(t, newStore(t)) })
	t.Run("DecrementPremiumIsUnmetered", func(t *testing.T) { testDecrementPremium(t, newStore(t)) })
	t.Run("ConcurrentDecrement", func(t *testing.T) { testConcurrentDecrement(t, newStore(t)) })
	t.Run("RestoreCredit", func(t *testing.T) { testRestoreCredit(t, newStore(t)) })
	t.Run("RestoreAfterTransitionIsDropped", func(t *testing.T) { testRestoreAfterTransition(t, newStore(t)) })
	t.Run("NilAccount", func(t *testing.T) { testNilAccount(t, newStore(t)) })
	t.Run("StripeCustomerLink", func(t *testing.T) { testStripeCustomerLink(t, newStore(t)) })
	t.Run("ListAndCount", func(t *testing.T) { testListAndCount(t, newStore(t)) })
	t.Run("MissingAccount", func(t *testing.T) { testMissingAccount(t, newStore(t)) })
}

func mustCreate(t *testing.T, s entitlement.Store, email string) *entitlement.Account {
	t.Helper()
	a := &entitlement.Account{Email: email, Name: "Test User", PasswordHash: "hash"}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	require.NotEmpty(t, a.ID)
	return a
}

func testCreateAndGet(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "  Alice@Example.com ")

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, entitlement.TierFree, got.Tier)
	assert.Equal(t, entitlement.FreeTierGrant, got.Credits)
	assert.Equal(t, "hash", got.PasswordHash)

	byEmail, err := s.GetAccountByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)
}

func testDuplicateEmail(t *testing.T, s entitlement.Store) {
	mustCreate(t, s, "dup@example.com")
	err := s.CreateAccount(context.Background(), &entitlement.Account{Email: "DUP@example.com"})
	assert.ErrorIs(t, err, entitlement.ErrAccountExists)
}

func testSetTier(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "tier@example.com")

	updated, err := s.SetTier(ctx, a.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, updated.Tier)
	assert.Equal(t, entitlement.UnlimitedCredits, updated.Credits)

	// Applying the same transition twice leaves the same state.
	again, err := s.SetTier(ctx, a.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	assert.Equal(t, updated.Entitlement(), again.Entitlement())

	down, err := s.SetTier(ctx, a.ID, entitlement.TierFree, entitlement.FreeTierGrant)
	require.NoError(t, err)
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierFree, Credits: 3}, down.Entitlement())

	_, err = s.SetTier(ctx, a.ID, entitlement.Tier("gold"), 1)
	assert.ErrorIs(t, err, entitlement.ErrInvalidTier)
}

func testDecrementStopsAtZero(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "debit@example.com")

	for want := entitlement.FreeTierGrant - 1; want >= 0; want-- {
		debit, err := s.DecrementCreditIfPositive(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, want, debit.Remaining)
	}

	_, err := s.DecrementCreditIfPositive(ctx, a.ID)
	assert.ErrorIs(t, err, entitlement.ErrNoCreditsRemaining)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Credits)
}

func testDecrementPremium(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "premium@example.com")
	_, err := s.SetTier(ctx, a.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.DecrementCreditIfPositive(ctx, a.ID)
		assert.ErrorIs(t, err, entitlement.ErrUnmetered)
	}

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.UnlimitedCredits, got.Credits)
}

func testConcurrentDecrement(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "race@example.com")

	const callers = 20
	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		denied  atomic.Int64
		unknown atomic.Int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.DecrementCreditIfPositive(ctx, a.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, entitlement.ErrNoCreditsRemaining):
				denied.Add(1)
			default:
				unknown.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, entitlement.FreeTierGrant, ok.Load())
	assert.Equal(t, callers-entitlement.FreeTierGrant, denied.Load())
	assert.Zero(t, unknown.Load())

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Credits)
}

func testRestoreCredit(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "restore@example.com")

	debit, err := s.DecrementCreditIfPositive(ctx, a.ID)
	require.NoError(t, err)
	remaining, err := s.RestoreCredit(ctx, a.ID, debit.Revision)
	require.NoError(t, err)
	assert.Equal(t, entitlement.FreeTierGrant, remaining)

	debit, err = s.DecrementCreditIfPositive(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.SetTier(ctx, a.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)
	_, err = s.RestoreCredit(ctx, a.ID, debit.Revision)
	assert.ErrorIs(t, err, entitlement.ErrUnmetered)
}

// A cancellation that lands between a debit and its refund sets an absolute
// balance; the refund must not add to it.
func testRestoreAfterTransition(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "interleave@example.com")
	_, err := s.SetTier(ctx, a.ID, entitlement.TierFree, 1)
	require.NoError(t, err)

	debit, err := s.DecrementCreditIfPositive(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), debit.Remaining)

	_, err = s.SetTier(ctx, a.ID, entitlement.TierFree, entitlement.FreeTierGrant)
	require.NoError(t, err)

	_, err = s.RestoreCredit(ctx, a.ID, debit.Revision)
	assert.ErrorIs(t, err, entitlement.ErrTierChanged)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.Entitlement{Tier: entitlement.TierFree, Credits: entitlement.FreeTierGrant}, got.Entitlement())
}

func testNilAccount(t *testing.T, s entitlement.Store) {
	assert.ErrorIs(t, s.CreateAccount(context.Background(), nil), entitlement.ErrNilAccount)
}

func testStripeCustomerLink(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "cus@example.com")

	_, err := s.GetAccountByStripeCustomer(ctx, "cus_123")
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)

	require.NoError(t, s.LinkStripeCustomer(ctx, a.ID, "cus_123"))
	got, err := s.GetAccountByStripeCustomer(ctx, "cus_123")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "cus_123", got.StripeCustomerID)

	assert.ErrorIs(t, s.LinkStripeCustomer(ctx, "acct_missing", "cus_999"), entitlement.ErrAccountNotFound)
}

func testListAndCount(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, "one@example.com")
	mustCreate(t, s, "two@example.com")
	mustCreate(t, s, "three@example.com")
	_, err := s.SetTier(ctx, a.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
	require.NoError(t, err)

	all, err := s.ListAccounts(ctx, entitlement.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	premium, err := s.ListAccounts(ctx, entitlement.ListOptions{Tier: entitlement.TierPremium})
	require.NoError(t, err)
	require.Len(t, premium, 1)
	assert.Equal(t, a.ID, premium[0].ID)

	limited, err := s.ListAccounts(ctx, entitlement.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	counts, err := s.CountByTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[entitlement.TierPremium])
	assert.Equal(t, 2, counts[entitlement.TierFree])
}

func testMissingAccount(t *testing.T, s entitlement.Store) {
	ctx := context.Background()
	_, err := s.GetAccount(ctx, "acct_missing")
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
	_, err = s.SetTier(ctx, "acct_missing", entitlement.TierFree, 3)
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
	_, err = s.DecrementCreditIfPositive(ctx, "acct_missing")
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
	_, err = s.RestoreCredit(ctx, "acct_missing", 0)
	assert.ErrorIs(t, err, entitlement.ErrAccountNotFound)
}
