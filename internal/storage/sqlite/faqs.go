package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/faq"
)

const faqColumns = `id, account_id, company_name, product_details, generated_faq, created_at, updated_at`

func (s *Store) CreateFAQ(ctx context.Context, f *faq.FAQ) error {
	if f == nil {
		return fmt.Errorf("faq is nil")
	}
	faq.PrepareForInsert(f)

	_, err := s.db.ExecContext(ctx, `INSERT INTO faqs (`+faqColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.AccountID, f.CompanyName, f.ProductDetails, f.GeneratedFAQ,
		f.CreatedAt.UnixMilli(), f.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create faq: %w", err)
	}
	return nil
}

func (s *Store) GetFAQ(ctx context.Context, accountID, faqID string) (*faq.FAQ, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = ? AND account_id = ?`,
		faqID, accountID)
	return scanFAQ(row)
}

func (s *Store) ListFAQs(ctx context.Context, accountID string) ([]*faq.FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+faqColumns+`
		FROM faqs WHERE account_id = ? ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()

	var out []*faq.FAQ
	for rows.Next() {
		f, err := scanFAQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFAQ(s scanner) (*faq.FAQ, error) {
	var f faq.FAQ
	var createdAt, updatedAt int64
	err := s.Scan(&f.ID, &f.AccountID, &f.CompanyName, &f.ProductDetails, &f.GeneratedFAQ, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faq.ErrFAQNotFound
		}
		return nil, fmt.Errorf("scan faq: %w", err)
	}
	f.CreatedAt = time.UnixMilli(createdAt).UTC()
	f.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &f, nil
}
