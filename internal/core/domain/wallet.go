package domain

import (
	"time"

	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is an account's commission wallet. Balance holds free funds only;
// funds held against pending offers live in ReservedBalance.
type Wallet struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	Balance         decimal.Decimal `json:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance"`
	Currency        string          `json:"currency"`
	DisabledAt      *time.Time      `json:"disabled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// WalletSnapshot is the externally visible state of a wallet.
type WalletSnapshot struct {
	Balance         decimal.Decimal `json:"balance"`
	ReservedBalance decimal.Decimal `json:"reserved_balance"`
	Currency        string          `json:"currency"`
}

// NewWallet returns an empty active wallet for the account.
func NewWallet(accountID uuid.UUID, currency string, now time.Time) *Wallet {
	return &Wallet{
		ID:              uuid.New(),
		AccountID:       accountID,
		Balance:         decimal.Zero,
		ReservedBalance: decimal.Zero,
		Currency:        currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (w *Wallet) IsActive() bool {
	return w.DisabledAt == nil
}

func (w *Wallet) Snapshot() WalletSnapshot {
	return WalletSnapshot{
		Balance:         w.Balance,
		ReservedBalance: w.ReservedBalance,
		Currency:        w.Currency,
	}
}

// ApplyDelta adds the deltas to both balances. Nothing is mutated when
// either result would be negative.
func (w *Wallet) ApplyDelta(balanceDelta, reservedDelta decimal.Decimal, at time.Time) error {
	balance := w.Balance.Add(balanceDelta)
	reserved := w.ReservedBalance.Add(reservedDelta)

	if balance.IsNegative() {
		return apperror.ErrInsufficientFunds()
	}
	if reserved.IsNegative() {
		return apperror.ErrLedgerMismatch(errNegativeReserved)
	}

	w.Balance = balance
	w.ReservedBalance = reserved
	w.UpdatedAt = at
	return nil
}
