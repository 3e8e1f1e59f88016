package service

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ShipmentServiceImpl implements ports.ShipmentService.
type ShipmentServiceImpl struct {
	uow       ports.UnitOfWork
	shipments ports.ShipmentRepository
	log       zerolog.Logger
	now       func() time.Time
}

// NewShipmentService creates a new ShipmentServiceImpl.
func NewShipmentService(uow ports.UnitOfWork, shipments ports.ShipmentRepository, log zerolog.Logger) *ShipmentServiceImpl {
	return &ShipmentServiceImpl{
		uow:       uow,
		shipments: shipments,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ShipmentServiceImpl) RegisterShipment(ctx context.Context, ownerID uuid.UUID) (*domain.Shipment, error) {
	if ownerID == uuid.Nil {
		return nil, apperror.Validation("owner_id is required")
	}

	now := s.now()
	shipment := &domain.Shipment{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Status:    domain.ShipmentStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.shipments.Create(ctx, tx, shipment); err != nil {
			return apperror.InternalError(fmt.Errorf("create shipment: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("shipment_id", shipment.ID.String()).
		Str("account_id", ownerID.String()).
		Msg("Shipment registered")

	return shipment, nil
}

func (s *ShipmentServiceImpl) GetShipment(ctx context.Context, id uuid.UUID) (*domain.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get shipment: %w", err))
	}
	if shipment == nil {
		return nil, apperror.ErrNotFound("Shipment")
	}
	return shipment, nil
}
