package faq

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps FAQs in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	faqs map[string]FAQ
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{faqs: make(map[string]FAQ)}
}

func (r *MemoryRepository) CreateFAQ(_ context.Context, f *FAQ) error {
	if f == nil {
		return errors.New("faq is nil")
	}
	PrepareForInsert(f)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.faqs[f.ID] = *f
	return nil
}

func (r *MemoryRepository) GetFAQ(_ context.Context, accountID, faqID string) (*FAQ, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.faqs[faqID]
	if !ok || f.AccountID != accountID {
		return nil, ErrFAQNotFound
	}
	return &f, nil
}

func (r *MemoryRepository) ListFAQs(_ context.Context, accountID string) ([]*FAQ, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*FAQ
	for _, f := range r.faqs {
		if f.AccountID != accountID {
			continue
		}
		cp := f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
