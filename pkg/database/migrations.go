package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Allamymp/coinApiPortfolio/pkg/logger"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create initial schema",
		UpSQL: `
			-- Tracked coin market records; name is the reconciliation join key
			CREATE TABLE IF NOT EXISTS coins (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				price DECIMAL(30,12) NOT NULL,
				market_value DECIMAL(30,12) NOT NULL,
				last_24h_change DECIMAL(30,12) NOT NULL,
				last_update TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_coins_name ON coins(name);

			-- Registered accounts
			CREATE TABLE IF NOT EXISTS clients (
				id BIGSERIAL PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_clients_email ON clients(email);

			-- One wallet per client
			CREATE TABLE IF NOT EXISTS wallets (
				id BIGSERIAL PRIMARY KEY,
				client_id BIGINT NOT NULL UNIQUE REFERENCES clients(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			-- Coins tracked inside a wallet
			CREATE TABLE IF NOT EXISTS wallet_coins (
				wallet_id BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
				coin_id BIGINT NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
				added_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (wallet_id, coin_id)
			);

			CREATE INDEX IF NOT EXISTS idx_wallet_coins_coin_id ON wallet_coins(coin_id);

			-- Keep updated_at current on coin mutations
			CREATE OR REPLACE FUNCTION update_updated_at_column()
			RETURNS TRIGGER AS $$
			BEGIN
				NEW.updated_at = NOW();
				RETURN NEW;
			END;
			$$ language 'plpgsql';

			CREATE TRIGGER update_coins_updated_at BEFORE UPDATE ON coins
				FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
		`,
		DownSQL: `
			DROP TRIGGER IF EXISTS update_coins_updated_at ON coins;
			DROP FUNCTION IF EXISTS update_updated_at_column();
			DROP TABLE IF EXISTS wallet_coins;
			DROP TABLE IF EXISTS wallets;
			DROP TABLE IF EXISTS clients;
			DROP TABLE IF EXISTS coins;
		`,
	},
	{
		Version:     2,
		Description: "Add account activation to clients",
		UpSQL: `
			ALTER TABLE clients
				ADD COLUMN activated BOOLEAN NOT NULL DEFAULT FALSE,
				ADD COLUMN activation_token TEXT UNIQUE;
		`,
		DownSQL: `
			ALTER TABLE clients
				DROP COLUMN IF EXISTS activation_token,
				DROP COLUMN IF EXISTS activated;
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	// Create migrations table if it doesn't exist
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// Run pending migrations
	for _, migration := range Migrations {
		if applied[migration.Version] {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		logger.Log.Info("migration applied successfully", zap.Int("version", migration.Version))
	}

	logger.Log.Info("database migrations completed")
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// getAppliedMigrations returns a map of applied migration versions
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	query := `SELECT version FROM migrations ORDER BY version`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration applies a single migration
func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Execute migration SQL
	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Record migration as applied
	query := `INSERT INTO migrations (version, description) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, migration := range Migrations {
		ms := MigrationStatus{
			Version:     migration.Version,
			Applied:     applied[migration.Version],
			Description: migration.Description,
		}

		if ms.Applied {
			query := `SELECT applied_at FROM migrations WHERE version = $1`
			var appliedAt time.Time
			if err := db.QueryRowContext(ctx, query, migration.Version).Scan(&appliedAt); err == nil {
				ms.AppliedAt = appliedAt
			}
		}

		status = append(status, ms)
	}

	return status, nil
}
