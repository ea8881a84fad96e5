package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

// ErrCoinNotFound is returned when an update or lookup targets a coin that is
// not (or no longer) present in the store.
var ErrCoinNotFound = errors.New("coin not found")

// CoinRepository defines the interface for coin data access
type CoinRepository interface {
	FindAll(ctx context.Context) ([]models.Coin, error)
	FindByName(ctx context.Context, name string) (models.Coin, error)
	FindByID(ctx context.Context, id int64) (models.Coin, error)
	Create(ctx context.Context, coin *models.Coin) error
	Update(ctx context.Context, coin models.Coin) error
}

// coinRepository implements CoinRepository
type coinRepository struct {
	db *DB
}

// NewCoinRepository creates a new coin repository
func NewCoinRepository(db *DB) CoinRepository {
	return &coinRepository{db: db}
}

// FindAll retrieves every persisted coin
func (r *coinRepository) FindAll(ctx context.Context) ([]models.Coin, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("find_all_coins", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, name, price, market_value, last_24h_change, last_update
		FROM coins
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_all_coins").Inc()
		return nil, fmt.Errorf("failed to list coins: %w", err)
	}
	defer rows.Close()

	var coins []models.Coin
	for rows.Next() {
		var coin models.Coin
		if err := rows.Scan(&coin.ID, &coin.Name, &coin.Price, &coin.MarketValue, &coin.Last24hChange, &coin.LastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan coin: %w", err)
		}
		coins = append(coins, coin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coins: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_all_coins", "success").Inc()
	return coins, nil
}

// FindByName retrieves one coin by its unique name
func (r *coinRepository) FindByName(ctx context.Context, name string) (models.Coin, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("find_coin_by_name", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT id, name, price, market_value, last_24h_change, last_update
		FROM coins
		WHERE name = $1
	`

	var coin models.Coin
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&coin.ID, &coin.Name, &coin.Price, &coin.MarketValue, &coin.Last24hChange, &coin.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Coin{}, ErrCoinNotFound
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_coin_by_name").Inc()
		return models.Coin{}, fmt.Errorf("failed to find coin by name: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_coin_by_name", "success").Inc()
	return coin, nil
}

// FindByID retrieves one coin by its store-assigned id
func (r *coinRepository) FindByID(ctx context.Context, id int64) (models.Coin, error) {
	query := `
		SELECT id, name, price, market_value, last_24h_change, last_update
		FROM coins
		WHERE id = $1
	`

	var coin models.Coin
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&coin.ID, &coin.Name, &coin.Price, &coin.MarketValue, &coin.Last24hChange, &coin.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Coin{}, ErrCoinNotFound
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_coin_by_id").Inc()
		return models.Coin{}, fmt.Errorf("failed to find coin by id: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_coin_by_id", "success").Inc()
	return coin, nil
}

// Create inserts a new coin and fills in its assigned id
func (r *coinRepository) Create(ctx context.Context, coin *models.Coin) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("create_coin", "success").Observe(time.Since(start).Seconds())
	}()

	coin.Sanitize()
	if err := coin.Validate(); err != nil {
		metrics.DatabaseOperationDuration.WithLabelValues("create_coin", "validation_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("coin validation failed: %w", err)
	}

	query := `
		INSERT INTO coins (name, price, market_value, last_24h_change, last_update)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		coin.Name, coin.Price, coin.MarketValue, coin.Last24hChange, coin.LastUpdate).Scan(&coin.ID)
	if err != nil {
		metrics.DatabaseOperationDuration.WithLabelValues("create_coin", "error").Observe(time.Since(start).Seconds())
		metrics.DatabaseErrors.WithLabelValues("create_coin").Inc()
		return fmt.Errorf("failed to create coin: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("create_coin", "success").Inc()
	return nil
}

// Update rewrites the market fields of an existing coin, keyed by name.
// Returns ErrCoinNotFound when the row vanished between read and write.
func (r *coinRepository) Update(ctx context.Context, coin models.Coin) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("update_coin", "success").Observe(time.Since(start).Seconds())
	}()

	coin.Sanitize()
	if err := coin.Validate(); err != nil {
		metrics.DatabaseOperationDuration.WithLabelValues("update_coin", "validation_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("coin validation failed: %w", err)
	}

	query := `
		UPDATE coins
		SET price = $2, market_value = $3, last_24h_change = $4, last_update = $5
		WHERE name = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		coin.Name, coin.Price, coin.MarketValue, coin.Last24hChange, coin.LastUpdate)
	if err != nil {
		metrics.DatabaseOperationDuration.WithLabelValues("update_coin", "error").Observe(time.Since(start).Seconds())
		metrics.DatabaseErrors.WithLabelValues("update_coin").Inc()
		return fmt.Errorf("failed to update coin: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrCoinNotFound
	}

	metrics.DatabaseOperations.WithLabelValues("update_coin", "success").Inc()
	return nil
}
