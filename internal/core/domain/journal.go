package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the kind of wallet movement a journal entry records.
type EntryType string

const (
	EntryTypeDeposit           EntryType = "deposit"
	EntryTypeCommissionHold    EntryType = "commission_hold"
	EntryTypeCommissionCapture EntryType = "commission_capture"
	EntryTypeCommissionRelease EntryType = "commission_release"
)

const (
	ReferenceTypeOffer   = "offer"
	ReferenceTypeDeposit = "deposit"
)

var errNegativeReserved = errors.New("reserved balance would become negative")

// JournalEntry is an immutable record of one wallet movement.
type JournalEntry struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	BalanceBefore  decimal.Decimal `json:"balance_before"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	ReservedBefore decimal.Decimal `json:"reserved_before"`
	ReservedAfter  decimal.Decimal `json:"reserved_after"`
	ReferenceType  string          `json:"reference_type"`
	ReferenceID    uuid.UUID       `json:"reference_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Deltas returns the (balance, reserved) change the entry type implies for amount.
func (t EntryType) Deltas(amount decimal.Decimal) (balance, reserved decimal.Decimal, err error) {
	switch t {
	case EntryTypeDeposit:
		return amount, decimal.Zero, nil
	case EntryTypeCommissionHold:
		return amount.Neg(), amount, nil
	case EntryTypeCommissionCapture:
		return decimal.Zero, amount.Neg(), nil
	case EntryTypeCommissionRelease:
		return amount, amount.Neg(), nil
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown journal entry type %q", t)
	}
}

// ReplayJournal rebuilds a wallet snapshot from zero. Every entry must start
// where the previous one ended and move the balances as its type dictates.
func ReplayJournal(entries []JournalEntry) (WalletSnapshot, error) {
	balance, reserved := decimal.Zero, decimal.Zero

	for i, e := range entries {
		if !e.Amount.IsPositive() {
			return WalletSnapshot{}, fmt.Errorf("entry %d (%s): non-positive amount %s", i, e.ID, e.Amount)
		}
		if !e.BalanceBefore.Equal(balance) || !e.ReservedBefore.Equal(reserved) {
			return WalletSnapshot{}, fmt.Errorf("entry %d (%s): starts at %s/%s, running total is %s/%s",
				i, e.ID, e.BalanceBefore, e.ReservedBefore, balance, reserved)
		}

		db, dr, err := e.Type.Deltas(e.Amount)
		if err != nil {
			return WalletSnapshot{}, fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		balance = balance.Add(db)
		reserved = reserved.Add(dr)

		if !e.BalanceAfter.Equal(balance) || !e.ReservedAfter.Equal(reserved) {
			return WalletSnapshot{}, fmt.Errorf("entry %d (%s): ends at %s/%s, expected %s/%s",
				i, e.ID, e.BalanceAfter, e.ReservedAfter, balance, reserved)
		}
		if balance.IsNegative() || reserved.IsNegative() {
			return WalletSnapshot{}, fmt.Errorf("entry %d (%s): balances went negative", i, e.ID)
		}
	}

	return WalletSnapshot{Balance: balance, ReservedBalance: reserved}, nil
}
