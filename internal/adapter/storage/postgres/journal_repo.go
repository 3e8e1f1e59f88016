package postgres

import (
	"context"
	"fmt"
	"strings"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// JournalRepo implements ports.JournalRepository on the transactions table.
// Rows are insert-only; seq gives the append order.
type JournalRepo struct {
	pool Pool
}

// NewJournalRepo creates a new JournalRepo.
func NewJournalRepo(pool Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

// Append inserts a journal entry within a database transaction.
func (r *JournalRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.JournalEntry) error {
	query := `INSERT INTO transactions (id, account_id, entry_type, amount,
		balance_before, balance_after, reserved_before, reserved_after,
		reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.AccountID, string(e.Type), e.Amount.String(),
		e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.ReservedBefore.String(), e.ReservedAfter.String(),
		e.ReferenceType, e.ReferenceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// List fetches an account's entries in append order with optional type filter and pagination.
func (r *JournalRepo) List(ctx context.Context, params ports.JournalListParams) ([]domain.JournalEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("entry_type = $%d", argIdx))
		args = append(args, string(*params.Type))
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count journal entries: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT id, account_id, entry_type, amount::text,
		balance_before::text, balance_after::text, reserved_before::text, reserved_after::text,
		reference_type, reference_id, created_at
		FROM transactions %s ORDER BY seq ASC`, where)
	if params.Limit > 0 {
		dataQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		e, err := scanJournalEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, total, nil
}

func scanJournalEntry(row pgx.Row) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	var typ string
	var amounts [5]string
	err := row.Scan(
		&e.ID, &e.AccountID, &typ, &amounts[0],
		&amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&e.ReferenceType, &e.ReferenceID, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}
	e.Type = domain.EntryType(typ)

	targets := []*decimal.Decimal{&e.Amount, &e.BalanceBefore, &e.BalanceAfter, &e.ReservedBefore, &e.ReservedAfter}
	for i, s := range amounts {
		if *targets[i], err = decimal.NewFromString(s); err != nil {
			return e, fmt.Errorf("parse amount column %d: %w", i, err)
		}
	}
	return e, nil
}
