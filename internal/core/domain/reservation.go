package domain

import (
	"time"

	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationState is the life-cycle state of a commission hold.
type ReservationState string

const (
	ReservationHeld     ReservationState = "held"
	ReservationCaptured ReservationState = "captured"
	ReservationReleased ReservationState = "released"
)

// Reservation is the commission held for exactly one offer.
type Reservation struct {
	OfferID    uuid.UUID        `json:"offer_id"`
	AccountID  uuid.UUID        `json:"account_id"`
	Amount     decimal.Decimal  `json:"amount"`
	State      ReservationState `json:"state"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

func (r *Reservation) IsHeld() bool {
	return r.State == ReservationHeld
}

// Resolve moves a held reservation to captured or released. Resolving to the
// state it already has is a no-op and reports changed=false.
func (r *Reservation) Resolve(to ReservationState, at time.Time) (changed bool, err error) {
	if r.State == to {
		return false, nil
	}
	if r.State != ReservationHeld || to == ReservationHeld {
		return false, apperror.ErrInvalidStateTransition(string(r.State), to.Action())
	}
	r.State = to
	r.ResolvedAt = &at
	return true, nil
}

// EntryType returns the journal entry written when the reservation reaches to.
func (s ReservationState) EntryType() EntryType {
	switch s {
	case ReservationCaptured:
		return EntryTypeCommissionCapture
	case ReservationReleased:
		return EntryTypeCommissionRelease
	default:
		return EntryTypeCommissionHold
	}
}

// Action names the operation that moves a reservation into s.
func (s ReservationState) Action() string {
	switch s {
	case ReservationCaptured:
		return "capture"
	case ReservationReleased:
		return "release"
	default:
		return "hold"
	}
}
