package entitlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tier is the subscription level of an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

const (
	// FreeTierGrant is the credit allotment of a free account.
	FreeTierGrant int64 = 3

	// UnlimitedCredits is stored alongside TierPremium. The Usage Gate never
	// debits premium accounts, so the value only needs to read as "plenty".
	UnlimitedCredits int64 = 999999
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	default:
		return false
	}
}

// Metered reports whether actions taken by an account on this tier consume credits.
func (t Tier) Metered() bool {
	return t != TierPremium
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Account is the entitlement record of a subscriber.
type Account struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	PasswordHash     string    `json:"-"`
	Tier             Tier      `json:"tier"`
	Credits          int64     `json:"credits"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty"`
	// TierRevision counts tier transitions; credit refunds are pinned to it.
	TierRevision     int64     `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Entitlement is the (tier, credits) pair a transition writes.
type Entitlement struct {
	Tier    Tier
	Credits int64
}

// Entitlement returns the account's current (tier, credits) pair.
func (a *Account) Entitlement() Entitlement {
	return Entitlement{Tier: a.Tier, Credits: a.Credits}
}

// ApplyDefaults fills the signup defaults on a new account.
func (a *Account) ApplyDefaults(now time.Time) {
	if a.ID == "" {
		a.ID = GenerateAccountID()
	}
	a.Email = NormalizeEmail(a.Email)
	if a.Tier == "" {
		a.Tier = TierFree
		a.Credits = FreeTierGrant
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// GenerateAccountID returns an account ID of the form "acct_" followed by a ULID.
func GenerateAccountID() string {
	return "acct_" + ulid.Make().String()
}

// NormalizeEmail lowercases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListOptions filters ListAccounts.
type ListOptions struct {
	Tier  Tier
	Limit int
}
