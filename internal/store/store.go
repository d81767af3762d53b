// Package store holds the in-memory pool of Dreamina accounts. The pool is
// the single source of truth for live dispatch; persistence is written
// through separately and only read back at startup.
//
// Iteration order is insertion order and stays stable between mutations,
// which the round-robin selector relies on.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

// AccountStore is an ordered, concurrency-safe collection of account records
// keyed by email.
type AccountStore struct {
	mu       sync.RWMutex
	accounts []*models.Account
	index    map[string]int
	rr       rrCounter
}

// New creates an empty account store.
func New() *AccountStore {
	return &AccountStore{
		index: make(map[string]int),
	}
}

// NormalizeEmail canonicalizes the unique key. Handlers use it too so the
// persistence layer is keyed identically to the pool.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add inserts a new account at the end of the pool. Adding an email that is
// already present is rejected without touching the existing record.
func (s *AccountStore) Add(account *models.Account) error {
	if account == nil {
		return errors.ValidationError("account is required")
	}
	email := NormalizeEmail(account.Email)
	if email == "" {
		return errors.ValidationError("account email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[email]; exists {
		return errors.ValidationError("account already exists").WithContext("email", email)
	}

	record := account.Clone()
	record.Email = email
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()

	s.index[email] = len(s.accounts)
	s.accounts = append(s.accounts, record)
	return nil
}

// Remove deletes the account with the given email.
func (s *AccountStore) Remove(email string) error {
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[email]
	if !exists {
		return errors.NotFoundError("account")
	}

	s.accounts = append(s.accounts[:pos], s.accounts[pos+1:]...)
	delete(s.index, email)
	for i := pos; i < len(s.accounts); i++ {
		s.index[s.accounts[i].Email] = i
	}
	return nil
}

// Get returns a copy of the account with the given email.
func (s *AccountStore) Get(email string) (*models.Account, error) {
	email = NormalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.index[email]
	if !exists {
		return nil, errors.NotFoundError("account")
	}
	return s.accounts[pos].Clone(), nil
}

// List returns a snapshot of the pool in insertion order. The returned
// records are copies; mutating them does not affect the pool.
func (s *AccountStore) List() []*models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]*models.Account, len(s.accounts))
	for i, account := range s.accounts {
		snapshot[i] = account.Clone()
	}
	return snapshot
}

// Len returns the number of accounts in the pool.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Replace swaps in an updated record for the given email, matched by key
// rather than position since concurrent add/remove may have shifted the
// pool. The swap is atomic with respect to readers.
func (s *AccountStore) Replace(email string, updated *models.Account) error {
	if updated == nil {
		return errors.ValidationError("account is required")
	}
	email = NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.index[email]
	if !exists {
		return errors.NotFoundError("account")
	}

	record := updated.Clone()
	record.Email = email
	record.CreatedAt = s.accounts[pos].CreatedAt
	record.UpdatedAt = time.Now()
	s.accounts[pos] = record
	return nil
}

// Seed loads accounts into an empty pool, typically from persistence at
// startup. Duplicates are skipped.
func (s *AccountStore) Seed(accounts []*models.Account) int {
	loaded := 0
	for _, account := range accounts {
		if err := s.Add(account); err == nil {
			loaded++
		}
	}
	return loaded
}
