package account

import (
	"context"
	"sync"
	"time"
)

// memoryStore is an in-memory Store with the same conflict semantics as the
// Postgres implementation. Hooks let tests inject races between the read
// and the compare-and-set.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*Account

	// beforeUpdateStatus runs inside UpdateStatus before the CAS check.
	beforeUpdateStatus func()
	// beforeInsert runs inside InsertIfAbsent before the uniqueness check.
	beforeInsert func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[int64]*Account)}
}

func (s *memoryStore) add(acct Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acct.ID = s.nextID
	acct.Email = NormalizeEmail(acct.Email)
	s.accounts[acct.ID] = &acct
	return copyAccount(&acct)
}

func copyAccount(a *Account) *Account {
	c := *a
	return &c
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == NormalizeEmail(email) {
			return copyAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, ErrNotFound
}

func (s *memoryStore) InsertIfAbsent(ctx context.Context, draft Draft) (*Account, error) {
	if s.beforeInsert != nil {
		s.beforeInsert()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := NormalizeEmail(draft.Email)
	for _, a := range s.accounts {
		if a.Email == email {
			return nil, ErrConflict
		}
	}
	s.nextID++
	now := time.Now().UTC()
	acct := &Account{
		ID:           s.nextID,
		Email:        email,
		Name:         draft.Name,
		Role:         draft.Role,
		Status:       draft.Status,
		Provider:     draft.Provider,
		PasswordHash: draft.PasswordHash,
		LastLogin:    draft.LastLogin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[acct.ID] = acct
	return copyAccount(acct), nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id int64, expected, next Status) (*Account, error) {
	if s.beforeUpdateStatus != nil {
		s.beforeUpdateStatus()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != expected {
		return nil, ErrConflict
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return copyAccount(a), nil
}

func (s *memoryStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if at.After(a.LastLogin) {
		a.LastLogin = at
	}
	return nil
}

func (s *memoryStore) UpdateRole(ctx context.Context, id int64, role Role) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Role = role
	a.UpdatedAt = time.Now().UTC()
	return copyAccount(a), nil
}

func (s *memoryStore) List(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memoryStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int64)
	for _, a := range s.accounts {
		counts[a.Status]++
	}
	return counts, nil
}

func (s *memoryStore) status(id int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Status
}
