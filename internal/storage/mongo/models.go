package mongo

import (
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
)

// ==================== Account models ====================

type accountModel struct {
	ID               string    `bson:"_id"`
	Email            string    `bson:"email"`
	Name             string    `bson:"name"`
	PasswordHash     string    `bson:"password_hash"`
	Tier             string    `bson:"tier"`
	Credits          int64     `bson:"credits"`
	StripeCustomerID string    `bson:"stripe_customer_id,omitempty"`
	TierRevision     int64     `bson:"tier_revision"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func toAccountModel(a *entitlement.Account) *accountModel {
	return &accountModel{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		PasswordHash:     a.PasswordHash,
		Tier:             string(a.Tier),
		Credits:          a.Credits,
		StripeCustomerID: a.StripeCustomerID,
		TierRevision:     a.TierRevision,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *entitlement.Account {
	return &entitlement.Account{
		ID:               m.ID,
		Email:            m.Email,
		Name:             m.Name,
		PasswordHash:     m.PasswordHash,
		Tier:             entitlement.Tier(m.Tier),
		Credits:          m.Credits,
		StripeCustomerID: m.StripeCustomerID,
		TierRevision:     m.TierRevision,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

// ==================== FAQ models ====================

type faqModel struct {
	ID             string    `bson:"_id"`
	AccountID      string    `bson:"account_id"`
	CompanyName    string    `bson:"company_name"`
	ProductDetails string    `bson:"product_details"`
	GeneratedFAQ   string    `bson:"generated_faq"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toFAQModel(f *faq.FAQ) *faqModel {
	return &faqModel{
		ID:             f.ID,
		AccountID:      f.AccountID,
		CompanyName:    f.CompanyName,
		ProductDetails: f.ProductDetails,
		GeneratedFAQ:   f.GeneratedFAQ,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func fromFAQModel(m *faqModel) *faq.FAQ {
	return &faq.FAQ{
		ID:             m.ID,
		AccountID:      m.AccountID,
		CompanyName:    m.CompanyName,
		ProductDetails: m.ProductDetails,
		GeneratedFAQ:   m.GeneratedFAQ,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}
