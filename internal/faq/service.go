package faq

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/quickfaqs/quickfaqs-api/internal/appmetrics"
	internalerrors "github.com/quickfaqs/quickfaqs-api/internal/errors"
	"github.com/quickfaqs/quickfaqs-api/internal/logging"
	"github.com/quickfaqs/quickfaqs-api/internal/usage"
)

const (
	maxCompanyNameLength    = 200
	maxProductDetailsLength = 5000
)

// CreditGate is the slice of the usage gate the service needs.
type CreditGate interface {
	Consume(ctx context.Context, accountID string, action usage.Action) (usage.Decision, error)
	Refund(ctx context.Context, d usage.Decision) error
}

// Service generates and stores FAQs. Every generation is paid for through
// the gate before the generator runs.
type Service struct {
	gate      CreditGate
	repo      Repository
	generator Generator
}

func NewService(gate CreditGate, repo Repository, generator Generator) *Service {
	return &Service{gate: gate, repo: repo, generator: generator}
}

// Generate validates p, consumes a credit for accountID, generates the FAQ
// and stores it. When generation or storage fails the credit is refunded.
func (s *Service) Generate(ctx context.Context, accountID string, p Prompt) (*FAQ, error) {
	const op = "generate_faq"
	log := logging.FromContext(ctx)

	p.CompanyName = strings.TrimSpace(p.CompanyName)
	p.ProductDetails = strings.TrimSpace(p.ProductDetails)
	if err := validatePrompt(op, p); err != nil {
		return nil, err
	}

	decision, err := s.gate.Consume(ctx, accountID, usage.ActionGenerateFAQ)
	if err != nil {
		return nil, err
	}

	refund := func(cause error) {
		if rerr := s.gate.Refund(ctx, decision); rerr != nil {
			log.Error().Err(rerr).AnErr("cause", cause).
				Str("account_id", accountID).
				Msg("Failed to refund FAQ credit")
		}
	}

	text, err := s.generator.Generate(ctx, p)
	if err != nil {
		appmetrics.FAQGenerationsTotal.WithLabelValues(s.generator.Name(), "generator_error").Inc()
		log.Error().Err(err).
			Str("account_id", accountID).
			Str("generator", s.generator.Name()).
			Msg("FAQ generation failed")
		refund(err)
		return nil, internalerrors.New(internalerrors.ErrorTypeInternal, op, err)
	}

	faq := &FAQ{
		AccountID:      accountID,
		CompanyName:    p.CompanyName,
		ProductDetails: p.ProductDetails,
		GeneratedFAQ:   text,
	}
	if err := s.repo.CreateFAQ(ctx, faq); err != nil {
		appmetrics.FAQGenerationsTotal.WithLabelValues(s.generator.Name(), "store_error").Inc()
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to store generated FAQ")
		refund(err)
		return nil, internalerrors.StoreWrite(op, err)
	}

	appmetrics.FAQGenerationsTotal.WithLabelValues(s.generator.Name(), "success").Inc()
	log.Info().
		Str("account_id", accountID).
		Str("faq_id", faq.ID).
		Bool("metered", decision.Metered).
		Int64("credits_remaining", decision.Remaining).
		Msg("FAQ generated")
	return faq, nil
}

// List returns the account's FAQs, newest first.
func (s *Service) List(ctx context.Context, accountID string) ([]*FAQ, error) {
	faqs, err := s.repo.ListFAQs(ctx, accountID)
	if err != nil {
		return nil, internalerrors.New(internalerrors.ErrorTypeInternal, "list_faqs", err)
	}
	return faqs, nil
}

// Get returns one FAQ owned by accountID. FAQs of other accounts are
// reported as not found.
func (s *Service) Get(ctx context.Context, accountID, faqID string) (*FAQ, error) {
	faq, err := s.repo.GetFAQ(ctx, accountID, strings.TrimSpace(faqID))
	if err != nil {
		if errors.Is(err, ErrFAQNotFound) {
			return nil, internalerrors.NotFound("get_faq", "FAQ not found")
		}
		return nil, internalerrors.New(internalerrors.ErrorTypeInternal, "get_faq", err)
	}
	return faq, nil
}

func validatePrompt(op string, p Prompt) error {
	switch {
	case p.CompanyName == "" || p.ProductDetails == "":
		return internalerrors.Validation(op, "Company name and product details are required")
	case utf8.RuneCountInString(p.CompanyName) > maxCompanyNameLength:
		return internalerrors.Validation(op, "Company name is too long")
	case utf8.RuneCountInString(p.ProductDetails) > maxProductDetailsLength:
		return internalerrors.Validation(op, "Product details are too long")
	}
	return nil
}
