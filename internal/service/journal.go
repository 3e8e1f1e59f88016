package service

import (
	"context"
	"fmt"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Journal wraps the append-only journal repository. Appends are unexported:
// only WalletStore writes entries, alongside the wallet update they describe.
type Journal struct {
	repo ports.JournalRepository
}

// NewJournal creates a Journal over repo.
func NewJournal(repo ports.JournalRepository) *Journal {
	return &Journal{repo: repo}
}

func (j *Journal) append(ctx context.Context, tx pgx.Tx, entry *domain.JournalEntry) error {
	if err := j.repo.Append(ctx, tx, entry); err != nil {
		return apperror.InternalError(fmt.Errorf("append journal entry: %w", err))
	}
	return nil
}

// History lists an account's entries in append order.
func (j *Journal) History(ctx context.Context, params ports.JournalListParams) ([]domain.JournalEntry, int64, error) {
	entries, total, err := j.repo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list journal: %w", err))
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	return entries, total, nil
}

// Replay rebuilds the account's wallet from its full journal.
func (j *Journal) Replay(ctx context.Context, accountID uuid.UUID) (domain.WalletSnapshot, error) {
	entries, _, err := j.History(ctx, ports.JournalListParams{AccountID: accountID})
	if err != nil {
		return domain.WalletSnapshot{}, err
	}
	snap, err := domain.ReplayJournal(entries)
	if err != nil {
		return domain.WalletSnapshot{}, apperror.ErrLedgerMismatch(err)
	}
	return snap, nil
}
