package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

// NewSQLiteStorage opens (creating if needed) a SQLite database file and applies the schema.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	storage := &SQLStorage{db: db, dialect: dialectSQLite, logger: logger}
	if err := storage.initializeSchema(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Opened SQLite database", zap.String("path", path))
	return storage, nil
}
