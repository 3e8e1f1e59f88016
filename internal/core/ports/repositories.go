package ports

import (
	"context"
	"time"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside a unit of work for pessimistic locking.
type WalletRepository interface {
	// CreateIfNotExists inserts the wallet unless the account already has one.
	CreateIfNotExists(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error)
	GetByAccountIDForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	SetDisabled(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, disabledAt *time.Time) error
}

// JournalRepository is the append-only store of wallet movements.
type JournalRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.JournalEntry) error
	// List returns entries in append order together with the total match count.
	List(ctx context.Context, params JournalListParams) ([]domain.JournalEntry, int64, error)
}

// JournalListParams holds filter + pagination for listing journal entries.
// Limit 0 returns every matching entry.
type JournalListParams struct {
	AccountID uuid.UUID
	Type      *domain.EntryType
	Limit     int
	Offset    int
}

// ReservationRepository persists one commission hold per offer.
type ReservationRepository interface {
	Create(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error
	GetByOfferID(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error)
	GetByOfferIDForUpdate(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error)
	// UpdateState writes the resolved state; only rows still held are touched.
	UpdateState(ctx context.Context, tx pgx.Tx, reservation *domain.Reservation) error
}

// OfferRepository defines persistence operations for offers.
type OfferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, offer *domain.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Offer, error)
	// UpdateStatus writes offer.Status and RespondedAt only if the stored
	// status still equals from. It reports whether a row was updated.
	UpdateStatus(ctx context.Context, tx pgx.Tx, offer *domain.Offer, from domain.OfferStatus) (bool, error)
	ListPendingByShipmentForUpdate(ctx context.Context, tx pgx.Tx, shipmentID uuid.UUID) ([]domain.Offer, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ShipmentRepository covers the shipment fields the ledger owns.
type ShipmentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Shipment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Shipment, error)
	// Assign stores the accepted offer if none is set yet and reports whether it did.
	Assign(ctx context.Context, tx pgx.Tx, shipment *domain.Shipment) (bool, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// TxFunc is the body of a unit of work. It may run more than once when the
// storage layer retries a transient conflict.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// UnitOfWork runs fn in a transaction: commit when fn returns nil, roll back otherwise.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}
