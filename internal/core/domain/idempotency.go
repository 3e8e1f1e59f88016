package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyLog records the offer created for a client-supplied key so a
// retried create returns the same offer instead of holding funds twice.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "carrier_id:offer:client_key"
	OfferID      uuid.UUID `json:"offer_id"`
	RequestHash  string    `json:"request_hash"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildOfferIdempotencyKey scopes a client key to the submitting carrier.
func BuildOfferIdempotencyKey(carrierID uuid.UUID, clientKey string) string {
	return carrierID.String() + ":offer:" + clientKey
}

// OfferRequestHash fingerprints the fields of a create-offer request. Equal
// prices hash equally whatever their trailing zeros.
func OfferRequestHash(shipmentID uuid.UUID, price decimal.Decimal, message string) string {
	h := sha256.New()
	h.Write(shipmentID[:])
	h.Write([]byte{0})
	h.Write([]byte(price.String()))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash fingerprints the request that created o.
func (o *Offer) RequestHash() string {
	return OfferRequestHash(o.ShipmentID, o.Price, o.Message)
}
