package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Put inserts or replaces an account as-is. Intended for seeding.
func (s *MemoryStore) Put(a Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Email = NormalizeEmail(a.Email)
	if a.Plan == "" {
		a.Plan = PlanFree
	}
	stored := a
	s.accounts[a.ID] = &stored
	copied := stored
	return &copied
}

func (s *MemoryStore) find(match func(*Account) bool) *Account {
	for _, a := range s.accounts {
		if match(a) {
			return a
		}
	}
	return nil
}

func (s *MemoryStore) get(match func(*Account) bool) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.find(match)
	if a == nil {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

// GetByID implements Store
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	return s.get(func(a *Account) bool { return a.ID == id })
}

// GetByExternalID implements Store
func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (*Account, error) {
	return s.get(func(a *Account) bool { return externalID != "" && a.ExternalIdentityID == externalID })
}

// GetByEmail implements Store
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	email = NormalizeEmail(email)
	return s.get(func(a *Account) bool { return a.Email == email })
}

// UpsertByExternalID implements Store
func (s *MemoryStore) UpsertByExternalID(_ context.Context, externalID, email string, quotaResetDate time.Time) (*Account, error) {
	if externalID == "" {
		return nil, errors.New("external identity id is required")
	}
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if a := s.find(func(a *Account) bool { return a.ExternalIdentityID == externalID }); a != nil {
		if other := s.find(func(o *Account) bool { return o.Email == email && o.ID != a.ID }); other != nil {
			return nil, fmt.Errorf("failed to upsert account: %w: %s", ErrEmailInUse, email)
		}
		a.Email = email
		a.UpdatedAt = now
		copied := *a
		return &copied, nil
	}

	if other := s.find(func(o *Account) bool { return o.Email == email }); other != nil {
		return nil, fmt.Errorf("failed to upsert account: %w: %s", ErrEmailInUse, email)
	}

	a := &Account{
		ID:                 uuid.NewString(),
		ExternalIdentityID: externalID,
		Email:              email,
		Plan:               PlanFree,
		QuotaResetDate:     quotaResetDate.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.accounts[a.ID] = a
	copied := *a
	return &copied, nil
}

// ResetQuotaIfDue implements Store
func (s *MemoryStore) ResetQuotaIfDue(_ context.Context, id string, now, next time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	if now.Before(a.QuotaResetDate) {
		return false, nil
	}
	a.QuoteCount = 0
	a.QuotaResetDate = next.UTC()
	a.UpdatedAt = now.UTC()
	return true, nil
}

// IncrementQuoteCount implements Store
func (s *MemoryStore) IncrementQuoteCount(_ context.Context, id string, freeLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Plan == PlanFree && a.QuoteCount >= freeLimit {
		return ErrLimitReached
	}
	a.QuoteCount++
	a.UpdatedAt = s.now()
	return nil
}

// DecrementQuoteCount implements Store
func (s *MemoryStore) DecrementQuoteCount(_ context.Context, id string, period time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok && a.QuoteCount > 0 && a.QuotaResetDate.Equal(period) {
		a.QuoteCount--
		a.UpdatedAt = s.now()
	}
	return nil
}

// SetPlanByEmail implements Store
func (s *MemoryStore) SetPlanByEmail(_ context.Context, email string, plan Plan) (bool, error) {
	if !plan.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.find(func(a *Account) bool { return a.Email == email })
	if a == nil {
		return false, nil
	}
	a.Plan = plan
	a.UpdatedAt = s.now()
	return true, nil
}

// Ping implements Store
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
