package storage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations/postgres.sql
var postgresSchema string

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	return OpenPostgres(config.ConnString(), logger)
}

// OpenPostgres connects with a lib/pq connection string or postgres:// URL and applies the schema.
func OpenPostgres(connStr string, logger *zap.Logger) (*SQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLStorage{db: db, dialect: dialectPostgres, logger: logger}
	if err := storage.initializeSchema(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL")
	return storage, nil
}
