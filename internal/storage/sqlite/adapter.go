// Package sqlite implements account persistence on an embedded SQLite
// database. It is the default backend.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/models"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			session_id TEXT DEFAULT '',
			expire_time DATETIME DEFAULT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (a *Adapter) SaveAccount(account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}

	var expire sql.NullTime
	if account.ExpireTime != nil {
		expire = sql.NullTime{Time: *account.ExpireTime, Valid: true}
	}

	_, err := a.db.Exec(`
		INSERT INTO accounts (email, password, session_id, expire_time, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(email) DO UPDATE SET
			password = excluded.password,
			session_id = excluded.session_id,
			expire_time = excluded.expire_time,
			updated_at = CURRENT_TIMESTAMP`,
		account.Email, account.Password, account.SessionID, expire)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (a *Adapter) SaveAllAccounts(accounts []*models.Account) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, account := range accounts {
		var expire sql.NullTime
		if account.ExpireTime != nil {
			expire = sql.NullTime{Time: *account.ExpireTime, Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO accounts (email, password, session_id, expire_time, updated_at)
			VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(email) DO UPDATE SET
				password = excluded.password,
				session_id = excluded.session_id,
				expire_time = excluded.expire_time,
				updated_at = CURRENT_TIMESTAMP`,
			account.Email, account.Password, account.SessionID, expire); err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.Email, err)
		}
	}

	return tx.Commit()
}

func (a *Adapter) LoadAccounts() ([]*models.Account, error) {
	rows, err := a.db.Query(`
		SELECT email, password, session_id, expire_time, created_at, updated_at
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		var expire sql.NullTime
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&account.Email, &account.Password, &account.SessionID,
			&expire, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if expire.Valid {
			t := expire.Time
			account.ExpireTime = &t
		}
		if createdAt.Valid {
			account.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			account.UpdatedAt = updatedAt.Time
		}
		accounts = append(accounts, &account)
	}
	return accounts, rows.Err()
}

func (a *Adapter) DeleteAccount(email string) error {
	result, err := a.db.Exec(`DELETE FROM accounts WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("account %s not found", email)
	}
	return nil
}

func (a *Adapter) GetSetting(key string) (string, error) {
	var value string
	err := a.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (a *Adapter) SetSetting(key, value string) error {
	_, err := a.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
