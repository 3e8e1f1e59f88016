package domain

import (
	"time"

	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// ShipmentStatus is the assignment state of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusOpen     ShipmentStatus = "open"
	ShipmentStatusAssigned ShipmentStatus = "assigned"
)

// Shipment carries only the fields the ledger needs.
type Shipment struct {
	ID              uuid.UUID      `json:"id"`
	OwnerID         uuid.UUID      `json:"owner_id"`
	Status          ShipmentStatus `json:"status"`
	AcceptedOfferID *uuid.UUID     `json:"accepted_offer_id,omitempty"`
	CarrierID       *uuid.UUID     `json:"carrier_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (s *Shipment) IsOpen() bool {
	return s.Status == ShipmentStatusOpen && s.AcceptedOfferID == nil
}

// Assign records the accepted offer. Once set it never changes.
func (s *Shipment) Assign(offerID, carrierID uuid.UUID, at time.Time) error {
	if s.AcceptedOfferID != nil {
		return apperror.ErrAlreadyAssigned()
	}
	s.AcceptedOfferID = &offerID
	s.CarrierID = &carrierID
	s.Status = ShipmentStatusAssigned
	s.UpdatedAt = at
	return nil
}
