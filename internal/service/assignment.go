package service

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AssignmentCoordinator implements ports.ShipmentAssigner.
type AssignmentCoordinator struct {
	shipments ports.ShipmentRepository
	now       func() time.Time
}

// NewAssignmentCoordinator creates a new AssignmentCoordinator.
func NewAssignmentCoordinator(shipments ports.ShipmentRepository) *AssignmentCoordinator {
	return &AssignmentCoordinator{
		shipments: shipments,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.ShipmentAssigner = (*AssignmentCoordinator)(nil)

// Assign records offerID as the shipment's accepted offer. The loser of a
// race gets SHIP_001 and must roll back its unit of work.
func (c *AssignmentCoordinator) Assign(ctx context.Context, tx pgx.Tx, shipmentID, offerID, carrierID uuid.UUID) error {
	shipment, err := c.shipments.GetByIDForUpdate(ctx, tx, shipmentID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock shipment: %w", err))
	}
	if shipment == nil {
		return apperror.ErrNotFound("Shipment")
	}

	if err := shipment.Assign(offerID, carrierID, c.now()); err != nil {
		return err
	}

	ok, err := c.shipments.Assign(ctx, tx, shipment)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("assign shipment: %w", err))
	}
	if !ok {
		return apperror.ErrAlreadyAssigned()
	}
	return nil
}
