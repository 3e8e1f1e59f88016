package dto

import (
	"time"

	"freight-commission-ledger/internal/core/domain"
)

// CreateOfferRequest is the request body for offer submission.
type CreateOfferRequest struct {
	ShipmentID string `json:"shipment_id" binding:"required,uuid"`
	Price      string `json:"price" binding:"required,decimal_amount"`
	Message    string `json:"message,omitempty" binding:"max=500"`
}

// DepositRequest is the request body for a wallet top-up.
type DepositRequest struct {
	Amount    string `json:"amount" binding:"required,decimal_amount"`
	Reference string `json:"reference,omitempty" binding:"omitempty,uuid"`
}

// ListTransactionsQuery holds paging and filter query parameters.
type ListTransactionsQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Type     string `form:"type" binding:"omitempty,oneof=deposit commission_hold commission_capture commission_release"`
}

// OfferResponse is the response body for an offer.
type OfferResponse struct {
	ID          string  `json:"id"`
	ShipmentID  string  `json:"shipment_id"`
	CarrierID   string  `json:"carrier_id"`
	Price       string  `json:"price"`
	Message     string  `json:"message,omitempty"`
	Status      string  `json:"status"`
	ValidUntil  string  `json:"valid_until"`
	CreatedAt   string  `json:"created_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

// WalletResponse is the response body for a wallet snapshot.
type WalletResponse struct {
	Balance         string `json:"balance"`
	ReservedBalance string `json:"reserved_balance"`
	Currency        string `json:"currency"`
}

// JournalEntryResponse is one journal line.
type JournalEntryResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	BalanceBefore  string `json:"balance_before"`
	BalanceAfter   string `json:"balance_after"`
	ReservedBefore string `json:"reserved_before"`
	ReservedAfter  string `json:"reserved_after"`
	ReferenceType  string `json:"reference_type"`
	ReferenceID    string `json:"reference_id"`
	CreatedAt      string `json:"created_at"`
}

// JournalListResponse wraps a paginated journal listing.
type JournalListResponse struct {
	Items      []JournalEntryResponse `json:"items"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

// ShipmentResponse is the response body for a shipment.
type ShipmentResponse struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	Status          string  `json:"status"`
	AcceptedOfferID *string `json:"accepted_offer_id,omitempty"`
	CarrierID       *string `json:"carrier_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func ToOfferResponse(o *domain.Offer) OfferResponse {
	resp := OfferResponse{
		ID:         o.ID.String(),
		ShipmentID: o.ShipmentID.String(),
		CarrierID:  o.CarrierID.String(),
		Price:      o.Price.String(),
		Message:    o.Message,
		Status:     string(o.Status),
		ValidUntil: formatTime(o.ValidUntil),
		CreatedAt:  formatTime(o.CreatedAt),
	}
	if o.RespondedAt != nil {
		s := formatTime(*o.RespondedAt)
		resp.RespondedAt = &s
	}
	return resp
}

// ToWalletResponse renders amounts at the currency scale.
func ToWalletResponse(s *domain.WalletSnapshot, scale int32) WalletResponse {
	return WalletResponse{
		Balance:         s.Balance.StringFixed(scale),
		ReservedBalance: s.ReservedBalance.StringFixed(scale),
		Currency:        s.Currency,
	}
}

func ToJournalEntryResponse(e domain.JournalEntry, scale int32) JournalEntryResponse {
	return JournalEntryResponse{
		ID:             e.ID.String(),
		Type:           string(e.Type),
		Amount:         e.Amount.StringFixed(scale),
		BalanceBefore:  e.BalanceBefore.StringFixed(scale),
		BalanceAfter:   e.BalanceAfter.StringFixed(scale),
		ReservedBefore: e.ReservedBefore.StringFixed(scale),
		ReservedAfter:  e.ReservedAfter.StringFixed(scale),
		ReferenceType:  e.ReferenceType,
		ReferenceID:    e.ReferenceID.String(),
		CreatedAt:      formatTime(e.CreatedAt),
	}
}

func ToShipmentResponse(s *domain.Shipment) ShipmentResponse {
	resp := ShipmentResponse{
		ID:        s.ID.String(),
		OwnerID:   s.OwnerID.String(),
		Status:    string(s.Status),
		CreatedAt: formatTime(s.CreatedAt),
	}
	if s.AcceptedOfferID != nil {
		id := s.AcceptedOfferID.String()
		resp.AcceptedOfferID = &id
	}
	if s.CarrierID != nil {
		id := s.CarrierID.String()
		resp.CarrierID = &id
	}
	return resp
}
