package ports

import (
	"context"
	"time"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// RoleOperator marks platform staff allowed to fund any wallet.
const RoleOperator = "operator"

// TokenClaims holds the parsed JWT claims. Role is empty for marketplace users.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SweepLock elects a single expiry sweeper per tick across replicas.
type SweepLock interface {
	// TryAcquire returns true if this caller now holds name for ttl.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// Release drops name if this caller still holds it.
	Release(ctx context.Context, name string) error
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// CommissionLedger is the public face of wallets, holds and the journal.
// Each call is its own unit of work.
type CommissionLedger interface {
	ReserveCommission(ctx context.Context, req ReserveRequest) (*domain.Reservation, error)
	CaptureCommission(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error)
	ReleaseCommission(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error)
	GetWalletSnapshot(ctx context.Context, accountID uuid.UUID) (*domain.WalletSnapshot, error)
	Deposit(ctx context.Context, req DepositRequest) (*domain.JournalEntry, error)
	OpenWallet(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error)
	DisableWallet(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error)
	History(ctx context.Context, params JournalListParams) ([]domain.JournalEntry, int64, error)
	// VerifyWallet replays the journal and compares it with the stored wallet.
	VerifyWallet(ctx context.Context, accountID uuid.UUID) (*domain.WalletSnapshot, error)
}

// ReservationEngine performs hold operations inside a caller's unit of work.
type ReservationEngine interface {
	Reserve(ctx context.Context, tx pgx.Tx, req ReserveRequest) (*domain.Reservation, error)
	Capture(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error)
	Release(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error)
}

// ShipmentAssigner records the winning offer on a shipment inside a caller's unit of work.
type ShipmentAssigner interface {
	Assign(ctx context.Context, tx pgx.Tx, shipmentID, offerID, carrierID uuid.UUID) error
}

// ReserveRequest holds validated input for a commission hold.
type ReserveRequest struct {
	OfferID   uuid.UUID
	AccountID uuid.UUID
	Price     decimal.Decimal
}

// DepositRequest holds validated input for a wallet top-up.
type DepositRequest struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reference uuid.UUID // uuid.Nil generates one
}

// OfferService drives the offer life cycle.
type OfferService interface {
	CreateOffer(ctx context.Context, req CreateOfferRequest) (*domain.Offer, error)
	Transition(ctx context.Context, offerID uuid.UUID, event domain.OfferEvent, actor domain.Actor) (*domain.Offer, error)
	AcceptOffer(ctx context.Context, offerID, ownerID uuid.UUID) (*domain.Offer, error)
	RejectOffer(ctx context.Context, offerID, ownerID uuid.UUID) (*domain.Offer, error)
	CancelOffer(ctx context.Context, offerID, carrierID uuid.UUID) (*domain.Offer, error)
	ExpireOffer(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error)
	GetOffer(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error)
}

// CreateOfferRequest holds validated input for offer submission.
type CreateOfferRequest struct {
	ShipmentID     uuid.UUID
	CarrierID      uuid.UUID
	Price          decimal.Decimal
	Message        string
	IdempotencyKey string // optional
}

// ShipmentService is the thin shipment surface the ledger needs.
type ShipmentService interface {
	RegisterShipment(ctx context.Context, ownerID uuid.UUID) (*domain.Shipment, error)
	GetShipment(ctx context.Context, id uuid.UUID) (*domain.Shipment, error)
}
