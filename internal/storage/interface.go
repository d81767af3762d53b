// Package storage defines the persistence collaborator for the account pool.
// The core writes through after every successful add, refresh or batch
// refresh, and reads back only once at startup.
package storage

import (
	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

// Storage is the persistence interface for account records and runtime
// settings. Implementations exist for SQLite and PostgreSQL.
type Storage interface {
	// SaveAccount upserts a single account record keyed by email.
	SaveAccount(account *models.Account) error

	// SaveAllAccounts upserts a batch of account records.
	SaveAllAccounts(accounts []*models.Account) error

	// LoadAccounts returns all persisted accounts in insertion order.
	LoadAccounts() ([]*models.Account, error)

	// DeleteAccount removes the account with the given email.
	DeleteAccount(email string) error

	// GetSetting returns the value for a runtime setting, or an empty
	// string when the key is not present.
	GetSetting(key string) (string, error)

	// SetSetting upserts a runtime setting.
	SetSetting(key, value string) error

	// Health checks the underlying connection.
	Health() error

	// Close releases the underlying connection.
	Close() error
}

// Well-known setting keys.
const (
	// SettingUpstreamBaseURL is the runtime-configurable Dreamina API base
	// address the dispatcher forwards to.
	SettingUpstreamBaseURL = "upstream_base_url"
)
