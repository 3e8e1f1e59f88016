package domain

import (
	"time"

	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfferStatus represents the life-cycle state of a carrier's price offer.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// OfferEvent is something that happens to an offer.
type OfferEvent string

const (
	OfferEventAccept OfferEvent = "accept"
	OfferEventReject OfferEvent = "reject"
	OfferEventCancel OfferEvent = "cancel"
	OfferEventExpire OfferEvent = "expire"
)

// ActorRole is the party an event must come from.
type ActorRole string

const (
	RoleShipmentOwner ActorRole = "shipment_owner"
	RoleCarrier       ActorRole = "carrier"
	RoleSystem        ActorRole = "system"
)

// Effect is what a transition does to the offer's reservation.
type Effect int

const (
	EffectNone Effect = iota
	EffectCaptureAndAssign
	EffectRelease
)

// Actor identifies who triggers an event. The system actor has no account.
type Actor struct {
	AccountID uuid.UUID
	System    bool
}

func SystemActor() Actor { return Actor{System: true} }

func AccountActor(id uuid.UUID) Actor { return Actor{AccountID: id} }

// Transition is one row of the offer state table.
type Transition struct {
	From   OfferStatus
	Event  OfferEvent
	To     OfferStatus
	Role   ActorRole
	Effect Effect
}

type transitionKey struct {
	from  OfferStatus
	event OfferEvent
}

var offerTransitions = map[transitionKey]Transition{
	{OfferStatusPending, OfferEventAccept}: {OfferStatusPending, OfferEventAccept, OfferStatusAccepted, RoleShipmentOwner, EffectCaptureAndAssign},
	{OfferStatusPending, OfferEventReject}: {OfferStatusPending, OfferEventReject, OfferStatusRejected, RoleShipmentOwner, EffectRelease},
	{OfferStatusPending, OfferEventCancel}: {OfferStatusPending, OfferEventCancel, OfferStatusCancelled, RoleCarrier, EffectRelease},
	{OfferStatusPending, OfferEventExpire}: {OfferStatusPending, OfferEventExpire, OfferStatusExpired, RoleSystem, EffectRelease},
}

// LookupTransition returns the table entry for (from, event) or
// InvalidStateTransition when there is none.
func LookupTransition(from OfferStatus, event OfferEvent) (Transition, error) {
	t, ok := offerTransitions[transitionKey{from, event}]
	if !ok {
		return Transition{}, apperror.ErrInvalidStateTransition(string(from), string(event))
	}
	return t, nil
}

// Permits reports whether actor holds the transition's role for this offer and shipment.
func (t Transition) Permits(actor Actor, offer *Offer, shipment *Shipment) bool {
	switch t.Role {
	case RoleSystem:
		return actor.System
	case RoleShipmentOwner:
		return !actor.System && shipment != nil && actor.AccountID == shipment.OwnerID
	case RoleCarrier:
		return !actor.System && actor.AccountID == offer.CarrierID
	default:
		return false
	}
}

// Offer is a carrier's price proposal for a shipment.
type Offer struct {
	ID          uuid.UUID       `json:"id"`
	ShipmentID  uuid.UUID       `json:"shipment_id"`
	CarrierID   uuid.UUID       `json:"carrier_id"`
	Price       decimal.Decimal `json:"price"`
	Message     string          `json:"message,omitempty"`
	Status      OfferStatus     `json:"status"`
	ValidUntil  time.Time       `json:"valid_until"`
	CreatedAt   time.Time       `json:"created_at"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
}

func (o *Offer) IsTerminal() bool {
	return o.Status != OfferStatusPending
}

func (o *Offer) IsExpired(now time.Time) bool {
	return !o.ValidUntil.After(now)
}

// Apply moves the offer along t. The offer must be in t.From.
func (o *Offer) Apply(t Transition, at time.Time) error {
	if o.Status != t.From {
		return apperror.ErrInvalidStateTransition(string(o.Status), string(t.Event))
	}
	o.Status = t.To
	o.RespondedAt = &at
	return nil
}
