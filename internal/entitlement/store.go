package entitlement

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound    = errors.New("entitlement: account not found")
	ErrAccountExists      = errors.New("entitlement: account already exists")
	ErrNoCreditsRemaining = errors.New("entitlement: no credits remaining")
	ErrInvalidTier        = errors.New("entitlement: invalid tier")
	ErrNilAccount         = errors.New("entitlement: account is nil")

	// ErrUnmetered is returned by credit operations on a premium account;
	// nothing was debited or restored.
	ErrUnmetered = errors.New("entitlement: account is not metered")

	// ErrTierChanged is returned by RestoreCredit when a tier transition
	// replaced the balance after the debit; nothing was restored.
	ErrTierChanged = errors.New("entitlement: tier changed since debit")
)

// Debit is the outcome of a successful DecrementCreditIfPositive.
type Debit struct {
	Remaining int64
	// Revision is the account's tier revision the credit was taken from.
	Revision int64
}

// Store is the single source of truth for account tier and credits.
//
// SetTier, DecrementCreditIfPositive and RestoreCredit must each be atomic
// per account: no reader may observe a half-applied transition and two
// concurrent debits may never both consume the last credit. Every SetTier
// bumps the account's tier revision.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByStripeCustomer(ctx context.Context, customerID string) (*Account, error)

	// SetTier replaces tier and credits together and bumps the tier revision.
	SetTier(ctx context.Context, accountID string, tier Tier, credits int64) (*Account, error)
	// LinkStripeCustomer records the provider customer for later event resolution.
	LinkStripeCustomer(ctx context.Context, accountID, customerID string) error

	// DecrementCreditIfPositive debits one credit from a metered account with
	// a positive balance and returns the remaining balance.
	DecrementCreditIfPositive(ctx context.Context, accountID string) (Debit, error)
	// RestoreCredit hands one credit back to a metered account whose tier
	// revision still equals revision. A later SetTier wins: the refund is
	// dropped with ErrTierChanged.
	RestoreCredit(ctx context.Context, accountID string, revision int64) (int64, error)

	ListAccounts(ctx context.Context, opts ListOptions) ([]*Account, error)
	CountByTier(ctx context.Context) (map[Tier]int, error)

	Ping(ctx context.Context) error
	Close() error
}
