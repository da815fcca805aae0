package entitlement

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// compile-time interface check
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. The index lock only guards map
// structure; reads and writes of an account's entitlement take that
// account's own lock, so unrelated accounts never serialize.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*memoryAccount
	byEmail    map[string]string
	byCustomer map[string]string

	now func() time.Time
}

type memoryAccount struct {
	mu      sync.Mutex
	account Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*memoryAccount),
		byEmail:    make(map[string]string),
		byCustomer: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *Account) error {
	if a == nil {
		return ErrNilAccount
	}
	a.ApplyDefaults(s.now())
	if !a.Tier.Valid() {
		return ErrInvalidTier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return ErrAccountExists
	}
	if _, exists := s.byEmail[a.Email]; exists {
		return ErrAccountExists
	}
	s.accounts[a.ID] = &memoryAccount{account: *a}
	s.byEmail[a.Email] = a.ID
	if a.StripeCustomerID != "" {
		s.byCustomer[a.StripeCustomerID] = a.ID
	}
	return nil
}

func (s *MemoryStore) entry(accountID string) (*memoryAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[accountID]
	return e, ok
}

func (s *MemoryStore) snapshot(e *memoryAccount) *Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.account
	return &cp
}

func (s *MemoryStore) GetAccount(_ context.Context, accountID string) (*Account, error) {
	e, ok := s.entry(accountID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.snapshot(e), nil
}

func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *MemoryStore) GetAccountByStripeCustomer(ctx context.Context, customerID string) (*Account, error) {
	s.mu.RLock()
	id, ok := s.byCustomer[strings.TrimSpace(customerID)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *MemoryStore) SetTier(_ context.Context, accountID string, tier Tier, credits int64) (*Account, error) {
	if !tier.Valid() || credits < 0 {
		return nil, ErrInvalidTier
	}
	e, ok := s.entry(accountID)
	if !ok {
		return nil, ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.account.Tier = tier
	e.account.Credits = credits
	e.account.TierRevision++
	e.account.UpdatedAt = s.now()
	cp := e.account
	return &cp, nil
}

func (s *MemoryStore) LinkStripeCustomer(_ context.Context, accountID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	e.mu.Lock()
	previous := e.account.StripeCustomerID
	e.account.StripeCustomerID = customerID
	e.account.UpdatedAt = s.now()
	e.mu.Unlock()

	if previous != "" && previous != customerID {
		delete(s.byCustomer, previous)
	}
	s.byCustomer[customerID] = accountID
	return nil
}

func (s *MemoryStore) DecrementCreditIfPositive(_ context.Context, accountID string) (Debit, error) {
	e, ok := s.entry(accountID)
	if !ok {
		return Debit{}, ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.account.Tier.Metered() {
		return Debit{Remaining: e.account.Credits, Revision: e.account.TierRevision}, ErrUnmetered
	}
	if e.account.Credits <= 0 {
		return Debit{}, ErrNoCreditsRemaining
	}
	e.account.Credits--
	e.account.UpdatedAt = s.now()
	return Debit{Remaining: e.account.Credits, Revision: e.account.TierRevision}, nil
}

func (s *MemoryStore) RestoreCredit(_ context.Context, accountID string, revision int64) (int64, error) {
	e, ok := s.entry(accountID)
	if !ok {
		return 0, ErrAccountNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.account.Tier.Metered() {
		return e.account.Credits, ErrUnmetered
	}
	if e.account.TierRevision != revision {
		return e.account.Credits, ErrTierChanged
	}
	e.account.Credits++
	e.account.UpdatedAt = s.now()
	return e.account.Credits, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, opts ListOptions) ([]*Account, error) {
	s.mu.RLock()
	entries := make([]*memoryAccount, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Account, 0, len(entries))
	for _, e := range entries {
		a := s.snapshot(e)
		if opts.Tier != "" && a.Tier != opts.Tier {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountByTier(ctx context.Context) (map[Tier]int, error) {
	accounts, err := s.ListAccounts(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}
	counts := make(map[Tier]int)
	for _, a := range accounts {
		counts[a.Tier]++
	}
	return counts, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
