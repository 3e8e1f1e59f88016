package postgres

import (
	"context"
	"errors"
	"fmt"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ReservationRepo implements ports.ReservationRepository.
type ReservationRepo struct {
	pool Pool
}

// NewReservationRepo creates a new ReservationRepo.
func NewReservationRepo(pool Pool) *ReservationRepo {
	return &ReservationRepo{pool: pool}
}

const reservationColumns = `offer_id, account_id, amount::text, state, created_at, resolved_at`

// Create inserts a held reservation within a database transaction.
func (r *ReservationRepo) Create(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	query := `INSERT INTO reservations (offer_id, account_id, amount, state, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		res.OfferID, res.AccountID, res.Amount.String(), string(res.State), res.CreatedAt, res.ResolvedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reservation for offer %s already exists: %w", res.OfferID, err)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetByOfferID fetches the reservation of an offer (non-locking read).
func (r *ReservationRepo) GetByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE offer_id = $1`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, offerID))
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// GetByOfferIDForUpdate fetches the reservation of an offer with pessimistic locking.
func (r *ReservationRepo) GetByOfferIDForUpdate(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE offer_id = $1 FOR UPDATE`

	res, err := scanReservation(tx.QueryRow(ctx, query, offerID))
	if err != nil {
		return nil, fmt.Errorf("get reservation for update: %w", err)
	}
	return res, nil
}

// UpdateState resolves a held reservation. A row that is no longer held is not touched.
func (r *ReservationRepo) UpdateState(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	query := `UPDATE reservations SET state = $1, resolved_at = $2 WHERE offer_id = $3 AND state = 'held'`

	tag, err := tx.Exec(ctx, query, string(res.State), res.ResolvedAt, res.OfferID)
	if err != nil {
		return fmt.Errorf("update reservation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s is not held", res.OfferID)
	}
	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var amount, state string
	res := &domain.Reservation{}
	err := row.Scan(&res.OfferID, &res.AccountID, &amount, &state, &res.CreatedAt, &res.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	res.State = domain.ReservationState(state)
	if res.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse reservation amount: %w", err)
	}
	return res, nil
}
