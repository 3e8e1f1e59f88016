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

// OfferRepo implements ports.OfferRepository.
type OfferRepo struct {
	pool Pool
}

// NewOfferRepo creates a new OfferRepo.
func NewOfferRepo(pool Pool) *OfferRepo {
	return &OfferRepo{pool: pool}
}

const offerColumns = `id, shipment_id, carrier_id, price::text, message, status, valid_until, created_at, responded_at`

// Create inserts a new offer within a database transaction.
func (r *OfferRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Offer) error {
	query := `INSERT INTO offers (id, shipment_id, carrier_id, price, message, status, valid_until, created_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.ShipmentID, o.CarrierID, o.Price.String(), o.Message,
		string(o.Status), o.ValidUntil, o.CreatedAt, o.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// GetByID fetches an offer by UUID (non-locking read).
func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	o, err := scanOffer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// GetByIDForUpdate fetches an offer with pessimistic locking.
func (r *OfferRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`

	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get offer for update: %w", err)
	}
	return o, nil
}

// UpdateStatus writes the new status only if the row is still in from.
func (r *OfferRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, o *domain.Offer, from domain.OfferStatus) (bool, error) {
	query := `UPDATE offers SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, string(o.Status), o.RespondedAt, o.ID, string(from))
	if err != nil {
		return false, fmt.Errorf("update offer status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPendingByShipmentForUpdate locks every pending offer of a shipment, oldest first.
func (r *OfferRepo) ListPendingByShipmentForUpdate(ctx context.Context, tx pgx.Tx, shipmentID uuid.UUID) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE shipment_id = $1 AND status = 'pending'
		ORDER BY created_at, id FOR UPDATE`

	rows, err := tx.Query(ctx, query, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list pending offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		offers = append(offers, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer rows: %w", err)
	}
	return offers, nil
}

// ListExpiredPending returns up to limit pending offers whose validity ended at or before now.
func (r *OfferRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM offers
		WHERE status = 'pending' AND valid_until <= $1
		ORDER BY valid_until LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan offer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer ids: %w", err)
	}
	return ids, nil
}

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var price, status string
	o := &domain.Offer{}
	err := row.Scan(
		&o.ID, &o.ShipmentID, &o.CarrierID, &price, &o.Message,
		&status, &o.ValidUntil, &o.CreatedAt, &o.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatus(status)
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse offer price: %w", err)
	}
	return o, nil
}
