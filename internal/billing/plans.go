package billing

import (
	"strings"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
)

// PlanID names a purchasable plan independent of the provider price behind it.
type PlanID string

const (
	PlanPremiumMonthly PlanID = "premium_monthly"
	PlanPremiumYearly  PlanID = "premium_yearly"
)

// Plan maps a plan ID to its Stripe price.
type Plan struct {
	ID       PlanID           `json:"id"`
	Name     string           `json:"name"`
	Interval string           `json:"interval"`
	Tier     entitlement.Tier `json:"tier"`
	PriceID  string           `json:"-"`
}

// Catalog is the set of plans that have a configured price. Plans without a
// price are not offered.
type Catalog struct {
	plans []Plan
}

// NewCatalog builds the catalog from the configured Stripe price IDs.
func NewCatalog(monthlyPriceID, yearlyPriceID string) *Catalog {
	c := &Catalog{}
	c.add(Plan{ID: PlanPremiumMonthly, Name: "Premium (monthly)", Interval: "month", Tier: entitlement.TierPremium, PriceID: monthlyPriceID})
	c.add(Plan{ID: PlanPremiumYearly, Name: "Premium (yearly)", Interval: "year", Tier: entitlement.TierPremium, PriceID: yearlyPriceID})
	return c
}

func (c *Catalog) add(p Plan) {
	p.PriceID = strings.TrimSpace(p.PriceID)
	if p.PriceID == "" {
		return
	}
	c.plans = append(c.plans, p)
}

// Lookup returns the plan with id if it is offered.
func (c *Catalog) Lookup(id PlanID) (Plan, bool) {
	id = PlanID(strings.ToLower(strings.TrimSpace(string(id))))
	for _, p := range c.plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// ByPriceID resolves a raw Stripe price ID back to its plan.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// List returns the offered plans in display order.
func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
