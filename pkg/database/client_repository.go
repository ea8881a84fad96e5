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
	// ErrClientNotFound is returned when a client lookup matches nothing.
	ErrClientNotFound = errors.New("client not found")
	// ErrDuplicateEmail is returned when registration reuses an email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidActivationToken is returned when an activation token matches
	// no pending account.
	ErrInvalidActivationToken = errors.New("invalid activation token")
)

// uniqueViolation is the postgres error code for unique constraint breaches
const uniqueViolation = "23505"

// ClientRepository defines the interface for client data access
type ClientRepository interface {
	Create(ctx context.Context, client *models.Client) error
	FindByEmail(ctx context.Context, email string) (models.Client, error)
	FindByID(ctx context.Context, id int64) (models.Client, error)
	Activate(ctx context.Context, token string) (models.Client, error)
	Delete(ctx context.Context, id int64) error
}

type clientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *DB) ClientRepository {
	return &clientRepository{db: db}
}

// Create inserts a client and its wallet in one transaction
func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("create_client", "success").Observe(time.Since(start).Seconds())
	}()

	client.Sanitize()
	if err := client.Validate(); err != nil {
		metrics.DatabaseOperationDuration.WithLabelValues("create_client", "validation_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("client validation failed: %w", err)
	}

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO clients (email, password_hash, activation_token)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`
		if err := tx.QueryRowContext(ctx, query, client.Email, client.PasswordHash, client.ActivationToken).
			Scan(&client.ID, &client.CreatedAt); err != nil {
			return err
		}

		// every client owns exactly one wallet
		_, err := tx.ExecContext(ctx, `INSERT INTO wallets (client_id) VALUES ($1)`, client.ID)
		return err
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		metrics.DatabaseOperationDuration.WithLabelValues("create_client", "error").Observe(time.Since(start).Seconds())
		metrics.DatabaseErrors.WithLabelValues("create_client").Inc()
		return fmt.Errorf("failed to create client: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("create_client", "success").Inc()
	return nil
}

// FindByEmail retrieves a client by email
func (r *clientRepository) FindByEmail(ctx context.Context, email string) (models.Client, error) {
	query := `
		SELECT id, email, password_hash, activated, COALESCE(activation_token, ''), created_at
		FROM clients
		WHERE email = $1
	`

	var client models.Client
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&client.ID, &client.Email, &client.PasswordHash, &client.Activated, &client.ActivationToken, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, ErrClientNotFound
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_client_by_email").Inc()
		return models.Client{}, fmt.Errorf("failed to find client by email: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_client_by_email", "success").Inc()
	return client, nil
}

// FindByID retrieves a client by id
func (r *clientRepository) FindByID(ctx context.Context, id int64) (models.Client, error) {
	query := `
		SELECT id, email, password_hash, activated, COALESCE(activation_token, ''), created_at
		FROM clients
		WHERE id = $1
	`

	var client models.Client
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID, &client.Email, &client.PasswordHash, &client.Activated, &client.ActivationToken, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, ErrClientNotFound
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("find_client_by_id").Inc()
		return models.Client{}, fmt.Errorf("failed to find client by id: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("find_client_by_id", "success").Inc()
	return client, nil
}

// Activate redeems an activation token, unlocking the matching pending
// account. The token is single-use: it is cleared in the same statement.
func (r *clientRepository) Activate(ctx context.Context, token string) (models.Client, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("activate_client", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		UPDATE clients
		SET activated = TRUE, activation_token = NULL
		WHERE activation_token = $1 AND activated = FALSE
		RETURNING id, email, password_hash, activated, created_at
	`

	var client models.Client
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&client.ID, &client.Email, &client.PasswordHash, &client.Activated, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, ErrInvalidActivationToken
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("activate_client").Inc()
		return models.Client{}, fmt.Errorf("failed to activate client: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("activate_client", "success").Inc()
	return client, nil
}

// Delete removes a client; the wallet and its coin links cascade
func (r *clientRepository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("delete_client", "success").Observe(time.Since(start).Seconds())
	}()

	result, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("delete_client").Inc()
		return fmt.Errorf("failed to delete client: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrClientNotFound
	}

	metrics.DatabaseOperations.WithLabelValues("delete_client", "success").Inc()
	return nil
}
