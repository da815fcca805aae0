// Package usage meters credit-consuming actions against an account's
// entitlement.
package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
)

// Action names a protected, credit-consuming operation.
type Action string

const ActionGenerateFAQ Action = "generate_faq"

const (
	resultDebited   = "debited"
	resultUnmetered = "unmetered"
	resultDenied    = "denied"
	resultRefunded  = "refunded"
	resultSkipped   = "refund_skipped"
	resultError     = "error"
)

// Decision is the outcome of an allowed Consume call.
type Decision struct {
	AccountID string
	Action    Action
	// Metered is true when a credit was debited for this decision.
	Metered bool
	// Remaining is the balance after the debit; zero for unmetered decisions.
	Remaining int64
	// Revision is the tier revision the credit was debited under.
	Revision int64
}

// Gate enforces the metering policy in front of protected actions.
type Gate struct {
	store entitlement.Store
}

// NewGate creates a Gate over store.
func NewGate(store entitlement.Store) *Gate {
	return &Gate{store: store}
}

// Consume admits one action for accountID. Premium accounts pass without a
// store write; everyone else pays one credit through the store's atomic
// debit. A denial is a QuotaExceeded error and nothing was debited. Callers
// must not debit again on an allowed decision.
func (g *Gate) Consume(ctx context.Context, accountID string, action Action) (Decision, error) {
	const op = "consume_credit"
	decision := Decision{AccountID: accountID, Action: action}

	account, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		record(action, resultError)
		return decision, lookupError(op, err)
	}
	if !account.Tier.Metered() {
		record(action, resultUnmetered)
		return decision, nil
	}

	debit, err := g.store.DecrementCreditIfPositive(ctx, accountID)
	switch {
	case err == nil:
		decision.Metered = true
		decision.Remaining = debit.Remaining
		decision.Revision = debit.Revision
		record(action, resultDebited)
		return decision, nil
	case errors.Is(err, entitlement.ErrUnmetered):
		// Upgraded between the read and the debit.
		record(action, resultUnmetered)
		return decision, nil
	case errors.Is(err, entitlement.ErrNoCreditsRemaining):
		record(action, resultDenied)
		logging.FromContext(ctx).Info().
			Str("account_id", accountID).
			Str("action", string(action)).
			Msg("Usage denied, no credits remaining")
		return decision, internalerrors.QuotaExceeded(op)
	default:
		record(action, resultError)
		return decision, lookupError(op, err)
	}
}

// Refund hands back the credit of a metered decision whose protected effect
// failed after the debit. Unmetered decisions are a no-op. When a tier
// transition landed after the debit its balance stands and nothing is
// refunded.
func (g *Gate) Refund(ctx context.Context, d Decision) error {
	if !d.Metered {
		return nil
	}
	if _, err := g.store.RestoreCredit(ctx, d.AccountID, d.Revision); err != nil {
		if errors.Is(err, entitlement.ErrUnmetered) || errors.Is(err, entitlement.ErrTierChanged) {
			record(d.Action, resultSkipped)
			logging.FromContext(ctx).Info().
				Str("account_id", d.AccountID).
				Str("action", string(d.Action)).
				Msg("Refund skipped, tier changed since debit")
			return nil
		}
		return fmt.Errorf("refund credit for %s: %w", d.AccountID, err)
	}
	record(d.Action, resultRefunded)
	return nil
}

func lookupError(op string, err error) error {
	if errors.Is(err, entitlement.ErrAccountNotFound) {
		return internalerrors.NotFound(op, "User not found")
	}
	return internalerrors.New(internalerrors.ErrorTypeInternal, op, err)
}

func record(action Action, result string) {
	appmetrics.UsageDecisionsTotal.WithLabelValues(string(action), result).Inc()
}
