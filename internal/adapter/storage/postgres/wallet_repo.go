package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, account_id, balance::text, reserved_balance::text, currency, disabled_at, created_at, updated_at`

// CreateIfNotExists inserts the wallet; an existing wallet for the account is left as is.
func (r *WalletRepo) CreateIfNotExists(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, account_id, balance, reserved_balance, currency, disabled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.ID, w.AccountID, w.Balance.String(), w.ReservedBalance.String(),
		w.Currency, w.DisabledAt, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByAccountID fetches a wallet by account ID (non-locking read).
func (r *WalletRepo) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by account id: %w", err)
	}
	return w, nil
}

// GetByAccountIDForUpdate fetches a wallet by account ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE account_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, accountID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// UpdateBalances writes both balances of a locked wallet.
func (r *WalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $1, reserved_balance = $2, updated_at = $3 WHERE id = $4`

	tag, err := tx.Exec(ctx, query, w.Balance.String(), w.ReservedBalance.String(), w.UpdatedAt, w.ID)
	if err != nil {
		return fmt.Errorf("update wallet balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	return nil
}

// SetDisabled sets or clears disabled_at for the account's wallet.
func (r *WalletRepo) SetDisabled(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, disabledAt *time.Time) error {
	query := `UPDATE wallets SET disabled_at = $1, updated_at = NOW() WHERE account_id = $2`

	tag, err := tx.Exec(ctx, query, disabledAt, accountID)
	if err != nil {
		return fmt.Errorf("set wallet disabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found for account: %s", accountID)
	}
	return nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var balance, reserved string
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.AccountID, &balance, &reserved,
		&w.Currency, &w.DisabledAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if w.ReservedBalance, err = decimal.NewFromString(reserved); err != nil {
		return nil, fmt.Errorf("parse reserved balance: %w", err)
	}
	return w, nil
}
