package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/stripe/stripe-go/v82"
)

// Stripe event types that drive entitlement transitions.
const (
	StripeEventCheckoutCompleted     = "checkout.session.completed"
	StripeEventSubscriptionCancelled = "customer.subscription.deleted"
)

// EventKind is the modeled kind of a billing event.
type EventKind string

const (
	KindCheckoutCompleted     EventKind = "checkout_completed"
	KindSubscriptionCancelled EventKind = "subscription_cancelled"
	KindIgnored               EventKind = "ignored"
)

// Event is a verified provider event mapped onto the closed set
// CheckoutCompleted | SubscriptionCancelled | Ignored.
type Event interface {
	EventID() string
	Kind() EventKind
	isBillingEvent()
}

// AccountRef carries what an event says about the account it concerns.
type AccountRef struct {
	// AccountID is taken from session or subscription metadata.
	AccountID string
	// CustomerID is the Stripe customer; used when no account ID is present.
	CustomerID string
}

// CheckoutCompleted is a finished subscription checkout.
type CheckoutCompleted struct {
	ID string
	AccountRef
	PlanID         PlanID
	SessionID      string
	SubscriptionID string
}

// SubscriptionCancelled is a subscription that has ended.
type SubscriptionCancelled struct {
	ID string
	AccountRef
	SubscriptionID string
}

// Ignored is any provider event type that does not change entitlements.
type Ignored struct {
	ID   string
	Type string
}

func (e CheckoutCompleted) EventID() string     { return e.ID }
func (e SubscriptionCancelled) EventID() string { return e.ID }
func (e Ignored) EventID() string               { return e.ID }

func (CheckoutCompleted) Kind() EventKind     { return KindCheckoutCompleted }
func (SubscriptionCancelled) Kind() EventKind { return KindSubscriptionCancelled }
func (Ignored) Kind() EventKind               { return KindIgnored }

func (CheckoutCompleted) isBillingEvent()     {}
func (SubscriptionCancelled) isBillingEvent() {}
func (Ignored) isBillingEvent()               {}

// checkoutSessionPayload is the subset of a Stripe checkout.session we read.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionPayload is the subset of a Stripe subscription we read.
type subscriptionPayload struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// ParseEvent maps a verified Stripe event onto the modeled event set.
// Unmodeled types yield Ignored; a modeled type whose payload cannot be
// decoded is a validation error.
func ParseEvent(event *stripe.Event) (Event, error) {
	const op = "parse_event"
	if event == nil || strings.TrimSpace(event.ID) == "" {
		return nil, internalerrors.Validation(op, "event id is required")
	}

	switch string(event.Type) {
	case StripeEventCheckoutCompleted:
		if event.Data == nil {
			return nil, internalerrors.Validation(op, "event has no data")
		}
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, internalerrors.Validation(op, fmt.Sprintf("decode checkout.session: %v", err))
		}
		return CheckoutCompleted{
			ID: event.ID,
			AccountRef: AccountRef{
				AccountID:  accountIDFromMetadata(session.Metadata, session.ClientReferenceID),
				CustomerID: safeCustomerID(session.Customer),
			},
			PlanID:         PlanID(strings.TrimSpace(session.Metadata[MetadataPlanID])),
			SessionID:      session.ID,
			SubscriptionID: strings.TrimSpace(session.Subscription),
		}, nil

	case StripeEventSubscriptionCancelled:
		if event.Data == nil {
			return nil, internalerrors.Validation(op, "event has no data")
		}
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, internalerrors.Validation(op, fmt.Sprintf("decode subscription: %v", err))
		}
		return SubscriptionCancelled{
			ID: event.ID,
			AccountRef: AccountRef{
				AccountID:  accountIDFromMetadata(sub.Metadata, ""),
				CustomerID: safeCustomerID(sub.Customer),
			},
			SubscriptionID: strings.TrimSpace(sub.ID),
		}, nil

	default:
		return Ignored{ID: event.ID, Type: string(event.Type)}, nil
	}
}

func accountIDFromMetadata(metadata map[string]string, clientReferenceID string) string {
	for _, key := range []string{MetadataAccountID, metadataLegacyUserID} {
		if v := strings.TrimSpace(metadata[key]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(clientReferenceID)
}

func safeCustomerID(customerID string) string {
	customerID = strings.TrimSpace(customerID)
	if !validStripeID(customerID) {
		return ""
	}
	return customerID
}
