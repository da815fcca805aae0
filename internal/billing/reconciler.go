package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
)

// Outcome describes what applying an event did.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeAccountNotFound Outcome = "account_not_found"
	OutcomeIgnored         Outcome = "ignored"
)

// Reconciler applies modeled billing events to the entitlement store. Both
// transitions are absolute writes, so applying an event twice leaves the same
// state as applying it once.
type Reconciler struct {
	store entitlement.Store
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store entitlement.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Apply runs the transition for ev. A missing account is acknowledged, not an
// error; any store failure is returned as a store-write error so the provider
// redelivers.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch e := ev.(type) {
	case CheckoutCompleted:
		outcome, err = r.applyCheckoutCompleted(ctx, e)
	case SubscriptionCancelled:
		outcome, err = r.applySubscriptionCancelled(ctx, e)
	case Ignored:
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("unsupported billing event %T", ev)
	}

	result := string(outcome)
	if err != nil {
		result = "error"
	}
	appmetrics.TierTransitionsTotal.WithLabelValues(string(ev.Kind()), result).Inc()
	return outcome, err
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, e CheckoutCompleted) (Outcome, error) {
	account, err := r.resolve(ctx, e.AccountRef)
	if err != nil {
		return "", err
	}
	if account == nil {
		r.logMissing(ctx, e.ID, e.Kind(), e.AccountRef)
		return OutcomeAccountNotFound, nil
	}

	// Linking first lets a later cancellation without metadata find the account.
	if e.CustomerID != "" && account.StripeCustomerID != e.CustomerID {
		if err := r.store.LinkStripeCustomer(ctx, account.ID, e.CustomerID); err != nil {
			if errors.Is(err, entitlement.ErrAccountNotFound) {
				r.logMissing(ctx, e.ID, e.Kind(), e.AccountRef)
				return OutcomeAccountNotFound, nil
			}
			return "", internalerrors.StoreWrite("apply_event", err)
		}
	}
	return r.setTier(ctx, e.ID, e.Kind(), account.ID, entitlement.TierPremium, entitlement.UnlimitedCredits)
}

func (r *Reconciler) applySubscriptionCancelled(ctx context.Context, e SubscriptionCancelled) (Outcome, error) {
	account, err := r.resolve(ctx, e.AccountRef)
	if err != nil {
		return "", err
	}
	if account == nil {
		r.logMissing(ctx, e.ID, e.Kind(), e.AccountRef)
		return OutcomeAccountNotFound, nil
	}
	return r.setTier(ctx, e.ID, e.Kind(), account.ID, entitlement.TierFree, entitlement.FreeTierGrant)
}

func (r *Reconciler) setTier(ctx context.Context, eventID string, kind EventKind, accountID string, tier entitlement.Tier, credits int64) (Outcome, error) {
	updated, err := r.store.SetTier(ctx, accountID, tier, credits)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			r.logMissing(ctx, eventID, kind, AccountRef{AccountID: accountID})
			return OutcomeAccountNotFound, nil
		}
		return "", internalerrors.StoreWrite("apply_event", err)
	}

	logging.FromContext(ctx).Info().
		Str("event_id", eventID).
		Str("event_kind", string(kind)).
		Str("account_id", updated.ID).
		Str("tier", string(updated.Tier)).
		Int64("credits", updated.Credits).
		Msg("Entitlement transition applied")
	return OutcomeApplied, nil
}

// resolve finds the account an event refers to: the metadata account ID
// first, then the linked Stripe customer. It returns nil when neither matches.
func (r *Reconciler) resolve(ctx context.Context, ref AccountRef) (*entitlement.Account, error) {
	if ref.AccountID != "" {
		account, err := r.store.GetAccount(ctx, ref.AccountID)
		switch {
		case err == nil:
			return account, nil
		case !errors.Is(err, entitlement.ErrAccountNotFound):
			return nil, internalerrors.StoreWrite("resolve_account", err)
		}
	}
	if ref.CustomerID != "" {
		account, err := r.store.GetAccountByStripeCustomer(ctx, ref.CustomerID)
		switch {
		case err == nil:
			return account, nil
		case !errors.Is(err, entitlement.ErrAccountNotFound):
			return nil, internalerrors.StoreWrite("resolve_account", err)
		}
	}
	return nil, nil
}

func (r *Reconciler) logMissing(ctx context.Context, eventID string, kind EventKind, ref AccountRef) {
	logging.FromContext(ctx).Warn().
		Str("event_id", eventID).
		Str("event_kind", string(kind)).
		Str("account_id", ref.AccountID).
		Str("customer_id", ref.CustomerID).
		Msg("Billing event references unknown account; acknowledging without change")
}
