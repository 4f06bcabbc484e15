package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xuecangming/file-manager/internal/common/types"
	"github.com/xuecangming/file-manager/internal/core/retry"
)

// connectRetry allows the database a short while to come up alongside the
// service
var connectRetry = &retry.Config{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
	Jitter:       true,
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(config types.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.Name,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := retry.DoWithContext(ctx, func(ctx context.Context) error {
		return db.PingContext(ctx)
	}, connectRetry); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrations lists the schema statements in the order they are applied
var Migrations = []string{
	createMediaIndexTable,
	createMediaIndexMimeIndex,
	createMediaIndexModTimeIndex,
	createMediaIndexPathPatternIndex,
}

// RunMigrations runs database migrations
func RunMigrations(db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const createMediaIndexTable = `
CREATE TABLE IF NOT EXISTS media_index (
    path            TEXT PRIMARY KEY,
    id              UUID NOT NULL,
    name            TEXT NOT NULL,
    bucket          TEXT NOT NULL,
    size            BIGINT NOT NULL DEFAULT 0,
    mime_type       VARCHAR(255) NOT NULL,
    mod_time        TIMESTAMPTZ NOT NULL,
    date_taken      TIMESTAMPTZ,
    trashed         BOOLEAN NOT NULL DEFAULT FALSE,
    indexed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createMediaIndexMimeIndex = `
CREATE INDEX IF NOT EXISTS idx_media_index_mime ON media_index (mime_type) WHERE NOT trashed;
`

const createMediaIndexModTimeIndex = `
CREATE INDEX IF NOT EXISTS idx_media_index_mod_time ON media_index (mod_time DESC) WHERE NOT trashed;
`

const createMediaIndexPathPatternIndex = `
CREATE INDEX IF NOT EXISTS idx_media_index_path_pattern ON media_index (path text_pattern_ops);
`
