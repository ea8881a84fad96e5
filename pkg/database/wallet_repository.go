package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Allamymp/coinApiPortfolio/pkg/metrics"
	"github.com/Allamymp/coinApiPortfolio/pkg/models"
)

var (
	// ErrWalletNotFound is returned when a wallet lookup matches nothing.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrCoinAlreadyInWallet is returned when a coin is added twice.
	ErrCoinAlreadyInWallet = errors.New("coin is already present in the wallet")
	// ErrCoinNotInWallet is returned when removing a coin the wallet lacks.
	ErrCoinNotInWallet = errors.New("coin not present in the wallet")
)

// WalletRepository defines the interface for wallet data access
type WalletRepository interface {
	FindByClientID(ctx context.Context, clientID int64) (models.Wallet, error)
	ListCoins(ctx context.Context, walletID int64) ([]models.Coin, error)
	AddCoin(ctx context.Context, walletID, coinID int64) error
	RemoveCoin(ctx context.Context, walletID, coinID int64) error
}

type walletRepository struct {
	db *DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *DB) WalletRepository {
	return &walletRepository{db: db}
}

// FindByClientID retrieves the wallet owned by a client
func (r *walletRepository) FindByClientID(ctx context.Context, clientID int64) (models.Wallet, error) {
	query := `SELECT id, client_id FROM wallets WHERE client_id = $1`

	var wallet models.Wallet
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(&wallet.ID, &wallet.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_wallet").Inc()
		return models.Wallet{}, fmt.Errorf("failed to find wallet: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_wallet", "success").Inc()
	return wallet, nil
}

// ListCoins retrieves the coins referenced by a wallet
func (r *walletRepository) ListCoins(ctx context.Context, walletID int64) ([]models.Coin, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("list_wallet_coins", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT c.id, c.name, c.price, c.market_value, c.last_24h_change, c.last_update
		FROM coins c
		JOIN wallet_coins wc ON wc.coin_id = c.id
		WHERE wc.wallet_id = $1
		ORDER BY c.name
	`

	rows, err := r.db.QueryContext(ctx, query, walletID)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("list_wallet_coins").Inc()
		return nil, fmt.Errorf("failed to list wallet coins: %w", err)
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
		return nil, fmt.Errorf("error iterating wallet coins: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("list_wallet_coins", "success").Inc()
	return coins, nil
}

// AddCoin links a coin into a wallet
func (r *walletRepository) AddCoin(ctx context.Context, walletID, coinID int64) error {
	query := `INSERT INTO wallet_coins (wallet_id, coin_id) VALUES ($1, $2)`

	_, err := r.db.ExecContext(ctx, query, walletID, coinID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrCoinAlreadyInWallet
		}
		metrics.DatabaseErrors.WithLabelValues("add_wallet_coin").Inc()
		return fmt.Errorf("failed to add coin to wallet: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("add_wallet_coin", "success").Inc()
	return nil
}

// RemoveCoin unlinks a coin from a wallet
func (r *walletRepository) RemoveCoin(ctx context.Context, walletID, coinID int64) error {
	query := `DELETE FROM wallet_coins WHERE wallet_id = $1 AND coin_id = $2`

	result, err := r.db.ExecContext(ctx, query, walletID, coinID)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("remove_wallet_coin").Inc()
		return fmt.Errorf("failed to remove coin from wallet: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrCoinNotInWallet
	}

	metrics.DatabaseOperations.WithLabelValues("remove_wallet_coin", "success").Inc()
	return nil
}
