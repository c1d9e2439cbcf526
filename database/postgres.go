package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ConnectionConfig holds connection pool settings for the lookup log store.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultConnectionConfig returns production-ready pool settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Connect establishes a database connection with default pool configuration.
func Connect(dbURL string) (*sql.DB, error) {
	return ConnectWithConfig(dbURL, DefaultConnectionConfig())
}

// ConnectWithConfig establishes a database connection with custom configuration.
func ConnectWithConfig(dbURL string, config ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns":    config.MaxOpenConns,
		"max_idle_conns":    config.MaxIdleConns,
		"conn_max_lifetime": config.ConnMaxLifetime,
	}).Info("Connected to database successfully")

	return db, nil
}

// EnsureSchema creates the lookup log table and its indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS vehicle_lookup_logs (
			id uuid PRIMARY KEY,
			reg_number varchar(20) NOT NULL,
			ip_address varchar(45) NOT NULL,
			user_agent text,
			lookup_time timestamptz NOT NULL DEFAULT now(),
			success boolean NOT NULL,
			error_message text,
			failure_type varchar(32),
			tier varchar(16) NOT NULL DEFAULT 'free',
			response_time_ms bigint,
			cached boolean NOT NULL DEFAULT false,
			error_code varchar(64),
			correlation_id varchar(64)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lookup_logs_reg_number ON vehicle_lookup_logs (reg_number)`,
		`CREATE INDEX IF NOT EXISTS idx_lookup_logs_lookup_time ON vehicle_lookup_logs (lookup_time)`,
		`CREATE INDEX IF NOT EXISTS idx_lookup_logs_success ON vehicle_lookup_logs (success)`,
		`CREATE INDEX IF NOT EXISTS idx_lookup_logs_ip_address ON vehicle_lookup_logs (ip_address)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	logrus.Info("Lookup log schema ensured")
	return nil
}
