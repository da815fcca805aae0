package faq

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrFAQNotFound is returned when no FAQ with the ID exists for the owner.
var ErrFAQNotFound = errors.New("faq: not found")

// FAQ is a generated FAQ document owned by one account.
type FAQ struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	CompanyName    string    `json:"companyName"`
	ProductDetails string    `json:"productDetails,omitempty"`
	GeneratedFAQ   string    `json:"generatedFAQ"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"lastModified"`
}

// Repository persists FAQs. Reads are always scoped to the owning account.
type Repository interface {
	CreateFAQ(ctx context.Context, f *FAQ) error
	GetFAQ(ctx context.Context, accountID, faqID string) (*FAQ, error)
	ListFAQs(ctx context.Context, accountID string) ([]*FAQ, error)
}

// GenerateFAQID returns an ID of the form "faq_" followed by a ULID.
func GenerateFAQID() string {
	return "faq_" + ulid.Make().String()
}

func (f *FAQ) applyDefaults(now time.Time) {
	if f.ID == "" {
		f.ID = GenerateFAQID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
}

// PrepareForInsert fills the ID and timestamps of a new FAQ. Repository
// backends call it before writing.
func PrepareForInsert(f *FAQ) {
	f.applyDefaults(time.Now().UTC())
}
