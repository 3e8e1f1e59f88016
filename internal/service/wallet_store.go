package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var errWalletMissing = errors.New("wallet does not exist for an existing hold")

// Posting is one wallet movement: the journal entry type decides the deltas.
type Posting struct {
	AccountID     uuid.UUID
	Type          domain.EntryType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   uuid.UUID
}

// opensFunds reports whether the posting may create a wallet and needs it active.
func (p Posting) opensFunds() bool {
	return p.Type == domain.EntryTypeDeposit || p.Type == domain.EntryTypeCommissionHold
}

// WalletStore owns every write to a wallet. Post is the only mutating path
// and always appends the matching journal entry in the same transaction.
type WalletStore struct {
	wallets  ports.WalletRepository
	journal  *Journal
	currency string
	now      func() time.Time
}

// NewWalletStore creates a WalletStore for wallets in currency.
func NewWalletStore(wallets ports.WalletRepository, journal *Journal, currency string) *WalletStore {
	return &WalletStore{
		wallets:  wallets,
		journal:  journal,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Post locks the wallet, applies the posting and appends its journal entry.
// On error nothing has been written by this call.
func (s *WalletStore) Post(ctx context.Context, tx pgx.Tx, p Posting) (*domain.JournalEntry, error) {
	if !p.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	balanceDelta, reservedDelta, err := p.Type.Deltas(p.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	wallet, err := s.lock(ctx, tx, p.AccountID, p.opensFunds())
	if err != nil {
		return nil, err
	}
	if p.opensFunds() && !wallet.IsActive() {
		return nil, apperror.ErrWalletDisabled()
	}

	now := s.now()
	before := wallet.Snapshot()
	if err := wallet.ApplyDelta(balanceDelta, reservedDelta, now); err != nil {
		return nil, err
	}

	if err := s.wallets.UpdateBalances(ctx, tx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet balances: %w", err))
	}

	entry := &domain.JournalEntry{
		ID:             uuid.New(),
		AccountID:      p.AccountID,
		Type:           p.Type,
		Amount:         p.Amount,
		BalanceBefore:  before.Balance,
		BalanceAfter:   wallet.Balance,
		ReservedBefore: before.ReservedBalance,
		ReservedAfter:  wallet.ReservedBalance,
		ReferenceType:  p.ReferenceType,
		ReferenceID:    p.ReferenceID,
		CreatedAt:      now,
	}
	if err := s.journal.append(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Open creates the account's wallet if it has none and returns it locked.
func (s *WalletStore) Open(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, error) {
	return s.lock(ctx, tx, accountID, true)
}

// SetDisabled flips the soft-disable flag. Disabling an unknown account creates its wallet first.
func (s *WalletStore) SetDisabled(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, disabled bool) (*domain.Wallet, error) {
	wallet, err := s.lock(ctx, tx, accountID, true)
	if err != nil {
		return nil, err
	}

	var at *time.Time
	if disabled {
		if wallet.DisabledAt != nil {
			return wallet, nil
		}
		now := s.now()
		at = &now
	}
	if err := s.wallets.SetDisabled(ctx, tx, accountID, at); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set wallet disabled: %w", err))
	}
	wallet.DisabledAt = at
	return wallet, nil
}

// Snapshot reads the committed wallet. An account without a wallet has zero balances.
func (s *WalletStore) Snapshot(ctx context.Context, accountID uuid.UUID) (*domain.WalletSnapshot, error) {
	wallet, err := s.wallets.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return &domain.WalletSnapshot{Balance: decimal.Zero, ReservedBalance: decimal.Zero, Currency: s.currency}, nil
	}
	snap := wallet.Snapshot()
	return &snap, nil
}

func (s *WalletStore) lock(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, create bool) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByAccountIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}
	if !create {
		return nil, apperror.ErrLedgerMismatch(fmt.Errorf("account %s: %w", accountID, errWalletMissing))
	}

	if err := s.wallets.CreateIfNotExists(ctx, tx, domain.NewWallet(accountID, s.currency, s.now())); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	// Re-read under lock: a concurrent creator may have won the insert.
	wallet, err = s.wallets.GetByAccountIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet for account %s vanished after create", accountID))
	}
	return wallet, nil
}
