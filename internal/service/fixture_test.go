package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"freight-commission-ledger/internal/adapter/storage/memory"
	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ledgerFixture wires every service over one in-memory store.
type ledgerFixture struct {
	store     *memory.Store
	clock     *testClock
	ledger    *LedgerService
	offers    *OfferServiceImpl
	shipments *ShipmentServiceImpl
	sweeper   *ExpirySweeper
}

const testOfferValidity = 72 * time.Hour

func newLedgerFixture(t *testing.T, releaseCompeting bool) *ledgerFixture {
	t.Helper()

	policy, err := domain.NewCommissionPolicy("0.01", 2, "USD")
	require.NoError(t, err)

	store := memory.NewStore()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()

	ledger := NewLedgerService(store, store.Wallets(), store.Journal(), store.Reservations(), store.Offers(), policy, log)
	ledger.now = clock.Now
	ledger.store.now = clock.Now

	assigner := NewAssignmentCoordinator(store.Shipments())
	assigner.now = clock.Now

	offers := NewOfferService(store, store.Offers(), store.Shipments(), store.Idempotency(), nil,
		ledger, assigner, OfferOptions{Validity: testOfferValidity, ReleaseCompetingOnAccept: releaseCompeting}, log)
	offers.now = clock.Now

	shipments := NewShipmentService(store, store.Shipments(), log)
	shipments.now = clock.Now

	sweeper := NewExpirySweeper(store.Offers(), offers, nil, time.Minute, 10, log)
	sweeper.now = clock.Now

	return &ledgerFixture{
		store:     store,
		clock:     clock,
		ledger:    ledger,
		offers:    offers,
		shipments: shipments,
		sweeper:   sweeper,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *ledgerFixture) fund(t *testing.T, accountID uuid.UUID, amount string) {
	t.Helper()
	_, err := f.ledger.Deposit(context.Background(), ports.DepositRequest{AccountID: accountID, Amount: dec(amount)})
	require.NoError(t, err)
}

func (f *ledgerFixture) shipment(t *testing.T, ownerID uuid.UUID) *domain.Shipment {
	t.Helper()
	s, err := f.shipments.RegisterShipment(context.Background(), ownerID)
	require.NoError(t, err)
	return s
}

func (f *ledgerFixture) offer(t *testing.T, shipmentID, carrierID uuid.UUID, price string) *domain.Offer {
	t.Helper()
	o, err := f.offers.CreateOffer(context.Background(), ports.CreateOfferRequest{
		ShipmentID: shipmentID,
		CarrierID:  carrierID,
		Price:      dec(price),
	})
	require.NoError(t, err)
	return o
}

func (f *ledgerFixture) snapshot(t *testing.T, accountID uuid.UUID) *domain.WalletSnapshot {
	t.Helper()
	snap, err := f.ledger.GetWalletSnapshot(context.Background(), accountID)
	require.NoError(t, err)
	return snap
}

func (f *ledgerFixture) entries(t *testing.T, accountID uuid.UUID, typ domain.EntryType) []domain.JournalEntry {
	t.Helper()
	entries, _, err := f.ledger.History(context.Background(), ports.JournalListParams{AccountID: accountID, Type: &typ})
	require.NoError(t, err)
	return entries
}

func (f *ledgerFixture) reservation(t *testing.T, offerID uuid.UUID) *domain.Reservation {
	t.Helper()
	res, err := f.store.Reservations().GetByOfferID(context.Background(), offerID)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func requireBalances(t *testing.T, snap *domain.WalletSnapshot, balance, reserved string) {
	t.Helper()
	require.Truef(t, snap.Balance.Equal(dec(balance)), "balance: want %s, got %s", balance, snap.Balance)
	require.Truef(t, snap.ReservedBalance.Equal(dec(reserved)), "reserved: want %s, got %s", reserved, snap.ReservedBalance)
}
