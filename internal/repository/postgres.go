package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dexa-wallet/backend/internal/models"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

const uniqueViolation = "23505"

// PostgresStore persists users and the transaction ledger.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindUser(ctx context.Context, phoneNumber string) (*models.User, error) {
	var user models.User
	var lockedUntil sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT phone_number, public_key, private_key_enc, pin_hash, pin_retries, pin_locked_until, created_at, updated_at
		FROM users
		WHERE phone_number = $1`, phoneNumber).Scan(
		&user.PhoneNumber, &user.PublicKey, &user.PrivateKey, &user.PIN,
		&user.PinRetries, &lockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if lockedUntil.Valid {
		t := lockedUntil.Time
		user.PinLockedUntil = &t
	}
	return &user, nil
}

// CreateUser inserts a new user. A second insert for the same phone number
// fails with ErrUserExists.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (phone_number, public_key, private_key_enc, pin_hash, pin_retries, pin_locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.PhoneNumber, user.PublicKey, user.PrivateKey, user.PIN,
		user.PinRetries, nullTime(user.PinLockedUntil), now, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// SaveUser writes the mutable fields: PIN hash and lockout state.
func (s *PostgresStore) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET pin_hash = $1, pin_retries = $2, pin_locked_until = $3, updated_at = $4
		WHERE phone_number = $5`,
		user.PIN, user.PinRetries, nullTime(user.PinLockedUntil), now, user.PhoneNumber,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	user.UpdatedAt = now
	return nil
}

// DeleteUser removes the user row only. Ledger rows are kept.
func (s *PostgresStore) DeleteUser(ctx context.Context, phoneNumber string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE phone_number = $1`, phoneNumber)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (phone_number, type, from_address, to_address, token_address, token_symbol, amount, amount_raw, tx_hash, status, chain_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		tx.PhoneNumber, string(tx.Type), tx.From, tx.To, tx.TokenAddress, tx.TokenSymbol,
		tx.Amount, tx.AmountRaw, tx.TxHash, string(tx.Status), tx.ChainID, tx.CreatedAt,
	).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListRecentTransactions returns up to limit records, newest first.
func (s *PostgresStore) ListRecentTransactions(ctx context.Context, phoneNumber string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone_number, type, from_address, to_address, token_address, token_symbol, amount, amount_raw, tx_hash, status, chain_id, created_at
		FROM transactions
		WHERE phone_number = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, phoneNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var txType, status string
		var tokenAddress, tokenSymbol, txHash sql.NullString

		if err := rows.Scan(
			&tx.ID, &tx.PhoneNumber, &txType, &tx.From, &tx.To, &tokenAddress, &tokenSymbol,
			&tx.Amount, &tx.AmountRaw, &txHash, &status, &tx.ChainID, &tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		tx.Type = models.TransactionType(txType)
		tx.Status = models.TransactionStatus(status)
		tx.TokenAddress = nullString(tokenAddress)
		tx.TokenSymbol = nullString(tokenSymbol)
		tx.TxHash = nullString(txHash)
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
