// Package models defines the shared data structures for the token manager.
package models

import (
	"strings"
	"time"
)

// Account represents a Dreamina account in the credential pool. The Email is
// the unique key within the pool; SessionID is the derived bearer credential
// used for upstream calls and stays empty until the first successful login.
type Account struct {
	Email      string     `json:"email"`
	Password   string     `json:"-"`
	SessionID  string     `json:"session_id,omitempty"`
	ExpireTime *time.Time `json:"expire_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a copy of the account. Refresh operations work on clones so
// the pool record is only ever swapped atomically, never mutated in place.
func (a *Account) Clone() *Account {
	clone := *a
	if a.ExpireTime != nil {
		t := *a.ExpireTime
		clone.ExpireTime = &t
	}
	return &clone
}

// HasSession reports whether the account holds a session token and is
// therefore eligible for request dispatch. Expiry is advisory only - it
// triggers proactive refresh but never blocks dispatch.
func (a *Account) HasSession() bool {
	return strings.TrimSpace(a.SessionID) != ""
}

// MaskedSession returns a redacted form of the session token safe for API
// responses and logs.
func (a *Account) MaskedSession() string {
	token := strings.TrimSpace(a.SessionID)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// AccountView is the API-facing representation of an account. It never
// carries the password or the full session token.
type AccountView struct {
	Email      string     `json:"email"`
	Session    string     `json:"session,omitempty"`
	ExpireTime *time.Time `json:"expire_time,omitempty"`
	HasSession bool       `json:"has_session"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// View converts the account to its redacted API representation.
func (a *Account) View() AccountView {
	return AccountView{
		Email:      a.Email,
		Session:    a.MaskedSession(),
		ExpireTime: a.ExpireTime,
		HasSession: a.HasSession(),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}
