package handler

import (
	"context"

	"freight-commission-ledger/internal/adapter/http/dto"
	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerIdempotencyKey = "Idempotency-Key"

// OfferHandler handles offer submission and responses.
type OfferHandler struct {
	offerSvc    ports.OfferService
	shipmentSvc ports.ShipmentService
}

// NewOfferHandler creates a new OfferHandler.
func NewOfferHandler(offerSvc ports.OfferService, shipmentSvc ports.ShipmentService) *OfferHandler {
	return &OfferHandler{offerSvc: offerSvc, shipmentSvc: shipmentSvc}
}

// CreateOffer handles POST /api/v1/offers.
func (h *OfferHandler) CreateOffer(c *gin.Context) {
	carrierID, ok := mustAccount(c)
	if !ok {
		return
	}

	key := c.GetHeader(headerIdempotencyKey)
	if key != "" && !dto.IsSafeID(key) {
		response.Error(c, apperror.Validation("Idempotency-Key may contain only letters, digits, '_', '-' and '.'"))
		return
	}

	var req dto.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	shipmentID, err := uuid.Parse(req.ShipmentID)
	if err != nil {
		response.Error(c, apperror.Validation("shipment_id must be a UUID"))
		return
	}
	price, err := dto.ParseAmount(req.Price)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	offer, err := h.offerSvc.CreateOffer(c.Request.Context(), ports.CreateOfferRequest{
		ShipmentID:     shipmentID,
		CarrierID:      carrierID,
		Price:          price,
		Message:        req.Message,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToOfferResponse(offer))
}

// AcceptOffer handles POST /api/v1/offers/:id/accept.
func (h *OfferHandler) AcceptOffer(c *gin.Context) {
	h.respond(c, h.offerSvc.AcceptOffer)
}

// RejectOffer handles POST /api/v1/offers/:id/reject.
func (h *OfferHandler) RejectOffer(c *gin.Context) {
	h.respond(c, h.offerSvc.RejectOffer)
}

// CancelOffer handles POST /api/v1/offers/:id/cancel.
func (h *OfferHandler) CancelOffer(c *gin.Context) {
	h.respond(c, h.offerSvc.CancelOffer)
}

func (h *OfferHandler) respond(c *gin.Context, op func(ctx context.Context, offerID, actorID uuid.UUID) (*domain.Offer, error)) {
	actorID, ok := mustAccount(c)
	if !ok {
		return
	}
	offerID, ok := pathID(c)
	if !ok {
		return
	}

	offer, err := op(c.Request.Context(), offerID, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToOfferResponse(offer))
}

// GetOffer handles GET /api/v1/offers/:id. Only the carrier and the
// shipment owner may read an offer; anyone else gets 404.
func (h *OfferHandler) GetOffer(c *gin.Context) {
	accountID, ok := mustAccount(c)
	if !ok {
		return
	}
	offerID, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	offer, err := h.offerSvc.GetOffer(ctx, offerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if offer.CarrierID != accountID {
		shipment, err := h.shipmentSvc.GetShipment(ctx, offer.ShipmentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if shipment.OwnerID != accountID {
			response.Error(c, apperror.ErrNotFound("offer"))
			return
		}
	}

	response.OK(c, dto.ToOfferResponse(offer))
}
