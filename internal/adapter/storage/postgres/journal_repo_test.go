package postgres

import (
	"context"
	"testing"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalColumnNames() []string {
	return []string{"id", "account_id", "entry_type", "amount",
		"balance_before", "balance_after", "reserved_before", "reserved_after",
		"reference_type", "reference_id", "created_at"}
}

func TestJournalRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJournalRepo(mock)
	e := &domain.JournalEntry{
		ID:             uuid.New(),
		AccountID:      uuid.New(),
		Type:           domain.EntryTypeCommissionHold,
		Amount:         decimal.RequireFromString("5.00"),
		BalanceBefore:  decimal.RequireFromString("100.00"),
		BalanceAfter:   decimal.RequireFromString("95.00"),
		ReservedBefore: decimal.Zero,
		ReservedAfter:  decimal.RequireFromString("5.00"),
		ReferenceType:  domain.ReferenceTypeOffer,
		ReferenceID:    uuid.New(),
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(e.ID, e.AccountID, "commission_hold", "5", "100", "95", "0", "5",
			"offer", e.ReferenceID, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Append(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJournalRepo(mock)
	accountID := uuid.New()
	offerID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE account_id").
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE account_id = \\$1 ORDER BY seq ASC$").
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows(journalColumnNames()).
			AddRow(uuid.New(), accountID, "deposit", "100.00000000", "0.00000000", "100.00000000", "0.00000000", "0.00000000", "deposit", uuid.New(), now).
			AddRow(uuid.New(), accountID, "commission_hold", "5.00000000", "100.00000000", "95.00000000", "0.00000000", "5.00000000", "offer", offerID, now))

	entries, total, err := repo.List(context.Background(), ports.JournalListParams{AccountID: accountID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTypeDeposit, entries[0].Type)
	assert.Equal(t, domain.EntryTypeCommissionHold, entries[1].Type)
	assert.True(t, decimal.RequireFromString("95").Equal(entries[1].BalanceAfter))
	assert.Equal(t, offerID, entries[1].ReferenceID)

	snap, err := domain.ReplayJournal(entries)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("5").Equal(snap.ReservedBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalRepo_List_FilterAndPage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJournalRepo(mock)
	accountID := uuid.New()
	typ := domain.EntryTypeCommissionRelease

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE account_id = \\$1 AND entry_type = \\$2").
		WithArgs(accountID, "commission_release").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

	mock.ExpectQuery("ORDER BY seq ASC LIMIT \\$3 OFFSET \\$4").
		WithArgs(accountID, "commission_release", 20, 40).
		WillReturnRows(pgxmock.NewRows(journalColumnNames()))

	entries, total, err := repo.List(context.Background(), ports.JournalListParams{
		AccountID: accountID,
		Type:      &typ,
		Limit:     20,
		Offset:    40,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
