package postgres

import (
	"context"
	"errors"
	"fmt"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ShipmentRepo implements ports.ShipmentRepository.
type ShipmentRepo struct {
	pool Pool
}

// NewShipmentRepo creates a new ShipmentRepo.
func NewShipmentRepo(pool Pool) *ShipmentRepo {
	return &ShipmentRepo{pool: pool}
}

const shipmentColumns = `id, owner_id, status, accepted_offer_id, carrier_id, created_at, updated_at`

// Create inserts a shipment within a database transaction.
func (r *ShipmentRepo) Create(ctx context.Context, tx pgx.Tx, s *domain.Shipment) error {
	query := `INSERT INTO shipments (id, owner_id, status, accepted_offer_id, carrier_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		s.ID, s.OwnerID, string(s.Status), s.AcceptedOfferID, s.CarrierID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// GetByID fetches a shipment by UUID (non-locking read).
func (r *ShipmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`

	s, err := scanShipment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return s, nil
}

// GetByIDForUpdate fetches a shipment with pessimistic locking.
func (r *ShipmentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1 FOR UPDATE`

	s, err := scanShipment(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get shipment for update: %w", err)
	}
	return s, nil
}

// Assign stores the accepted offer and carrier unless one is already recorded.
func (r *ShipmentRepo) Assign(ctx context.Context, tx pgx.Tx, s *domain.Shipment) (bool, error) {
	query := `UPDATE shipments
		SET accepted_offer_id = $1, carrier_id = $2, status = $3, updated_at = $4
		WHERE id = $5 AND accepted_offer_id IS NULL`

	tag, err := tx.Exec(ctx, query, s.AcceptedOfferID, s.CarrierID, string(s.Status), s.UpdatedAt, s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("assign shipment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanShipment(row pgx.Row) (*domain.Shipment, error) {
	var status string
	s := &domain.Shipment{}
	err := row.Scan(&s.ID, &s.OwnerID, &status, &s.AcceptedOfferID, &s.CarrierID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Status = domain.ShipmentStatus(status)
	return s, nil
}
