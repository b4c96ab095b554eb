package database

import (
	"fmt"
	"os"
	"path/filepath"

	"eni-go/internal/config"
)

// FilePath returns the sqlite file holding gatewayID's property store, or ""
// when the config does not use a file.
func FilePath(cfg config.DatabaseConfig, gatewayID string) string {
	if cfg.Type != "sqlite" || cfg.DataDir == "" {
		return ""
	}
	return filepath.Join(cfg.DataDir, gatewayID+".db")
}

// NewDatabaseFromConfig creates the property store based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, gatewayID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(FilePath(cfg, gatewayID))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
