// Package memory is an in-process implementation of the storage ports.
// Units of work are serialized and run against a private copy of the data
// that replaces the committed copy only when the unit succeeds.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var errForeignTx = errors.New("memory store: transaction was not opened by this store")

type state struct {
	wallets      map[uuid.UUID]domain.Wallet // keyed by account id
	journal      []domain.JournalEntry
	reservations map[uuid.UUID]domain.Reservation // keyed by offer id
	offers       map[uuid.UUID]domain.Offer
	offerOrder   []uuid.UUID
	shipments    map[uuid.UUID]domain.Shipment
	idempotency  map[string]domain.IdempotencyLog
}

func newState() *state {
	return &state{
		wallets:      make(map[uuid.UUID]domain.Wallet),
		reservations: make(map[uuid.UUID]domain.Reservation),
		offers:       make(map[uuid.UUID]domain.Offer),
		shipments:    make(map[uuid.UUID]domain.Shipment),
		idempotency:  make(map[string]domain.IdempotencyLog),
	}
}

// clone copies the maps. Append-only slices are capped so that appends in the
// copy never write into the committed backing array.
func (s *state) clone() *state {
	return &state{
		wallets:      maps.Clone(s.wallets),
		journal:      s.journal[:len(s.journal):len(s.journal)],
		reservations: maps.Clone(s.reservations),
		offers:       maps.Clone(s.offers),
		offerOrder:   s.offerOrder[:len(s.offerOrder):len(s.offerOrder)],
		shipments:    maps.Clone(s.shipments),
		idempotency:  maps.Clone(s.idempotency),
	}
}

// memTx is the pgx.Tx handed to repositories. Only the working state is
// used; the embedded interface is nil and must not be called.
type memTx struct {
	pgx.Tx
	st *state
}

// Store implements ports.UnitOfWork and hands out repositories over the same data.
type Store struct {
	txMu      sync.Mutex
	mu        sync.RWMutex
	committed *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{committed: newState()}
}

var _ ports.UnitOfWork = (*Store)(nil)

// WithinTx runs fn against a private copy and publishes it if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

func txState(tx pgx.Tx) (*state, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt == nil {
		return nil, errForeignTx
	}
	return mt.st, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

func (s *Store) Wallets() *WalletRepo           { return &WalletRepo{store: s} }
func (s *Store) Journal() *JournalRepo          { return &JournalRepo{store: s} }
func (s *Store) Reservations() *ReservationRepo { return &ReservationRepo{store: s} }
func (s *Store) Offers() *OfferRepo             { return &OfferRepo{store: s} }
func (s *Store) Shipments() *ShipmentRepo       { return &ShipmentRepo{store: s} }
func (s *Store) Idempotency() *IdempotencyRepo  { return &IdempotencyRepo{store: s} }
