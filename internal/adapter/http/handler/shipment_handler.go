package handler

import (
	"freight-commission-ledger/internal/adapter/http/dto"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ShipmentHandler registers and reads shipments.
type ShipmentHandler struct {
	shipmentSvc ports.ShipmentService
}

// NewShipmentHandler creates a new ShipmentHandler.
func NewShipmentHandler(shipmentSvc ports.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{shipmentSvc: shipmentSvc}
}

// CreateShipment handles POST /api/v1/shipments. The caller becomes the owner.
func (h *ShipmentHandler) CreateShipment(c *gin.Context) {
	ownerID, ok := mustAccount(c)
	if !ok {
		return
	}

	shipment, err := h.shipmentSvc.RegisterShipment(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToShipmentResponse(shipment))
}

// GetShipment handles GET /api/v1/shipments/:id.
func (h *ShipmentHandler) GetShipment(c *gin.Context) {
	if _, ok := mustAccount(c); !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	shipment, err := h.shipmentSvc.GetShipment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToShipmentResponse(shipment))
}
