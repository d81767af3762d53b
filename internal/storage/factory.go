package storage

import (
	"fmt"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/config"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/storage/postgres"
	"github.com/gloryhry/Dreamina-Token-Manager/internal/storage/sqlite"
)

// New creates the storage backend selected by DATABASE_TYPE.
func New(cfg *config.Config) (Storage, error) {
	switch cfg.DatabaseType {
	case "sqlite", "":
		return sqlite.NewAdapter(&sqlite.Config{
			DatabasePath: cfg.DatabasePath,
		})
	case "postgres", "postgresql":
		return postgres.NewAdapter(&postgres.Config{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDB,
			Username: cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			SSLMode:  cfg.PostgresSSLMode,
		})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}
