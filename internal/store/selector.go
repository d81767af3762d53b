package store

import (
	"sync/atomic"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/common/errors"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

// rrCounter is the monotonically advancing round-robin cursor. It is never
// reset when pool membership changes, so a shrinking pool may show a short
// uneven bias but converges to round-robin over enough picks.
type rrCounter struct {
	n uint64
}

func (c *rrCounter) next() uint64 {
	return atomic.AddUint64(&c.n, 1) - 1
}

// NextAccount picks the next account holding a session token, cycling
// through the eligible set in insertion order. Returns a NoAccountError when
// no account in the pool has a session.
//
// The pick operates on a snapshot of the eligible set; fairness under
// concurrent add/remove is eventual, not strict.
func (s *AccountStore) NextAccount() (*models.Account, error) {
	s.mu.RLock()
	eligible := make([]*models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if account.HasSession() {
			eligible = append(eligible, account)
		}
	}
	s.mu.RUnlock()

	if len(eligible) == 0 {
		return nil, errors.NoAccountError()
	}

	pick := eligible[s.rr.next()%uint64(len(eligible))]
	return pick.Clone(), nil
}
