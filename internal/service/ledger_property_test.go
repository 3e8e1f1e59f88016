package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedger_JournalReplayMatchesWallets drives a random mix of operations and
// then checks that every wallet equals the replay of its journal.
func TestLedger_JournalReplayMatchesWallets(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			f := newLedgerFixture(t, seed%2 == 0)
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(seed, seed*7919))

			owners := []uuid.UUID{uuid.New(), uuid.New()}
			carriers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
			var shipments []*domain.Shipment
			var pending []*domain.Offer

			for step := 0; step < 200; step++ {
				switch op := rng.IntN(6); {
				case op == 0:
					c := carriers[rng.IntN(len(carriers))]
					amount := fmt.Sprintf("%d.%02d", rng.IntN(50), rng.IntN(100))
					_, _ = f.ledger.Deposit(ctx, ports.DepositRequest{AccountID: c, Amount: dec(amount)})
				case op == 1 || len(shipments) == 0:
					shipments = append(shipments, f.shipment(t, owners[rng.IntN(len(owners))]))
				case op == 2:
					s := shipments[rng.IntN(len(shipments))]
					price := fmt.Sprintf("%d.%02d", 1+rng.IntN(2000), rng.IntN(100))
					o, err := f.offers.CreateOffer(ctx, ports.CreateOfferRequest{
						ShipmentID: s.ID, CarrierID: carriers[rng.IntN(len(carriers))], Price: dec(price),
					})
					if err == nil {
						pending = append(pending, o)
					}
				case len(pending) > 0:
					i := rng.IntN(len(pending))
					o := pending[i]
					s, err := f.shipments.GetShipment(ctx, o.ShipmentID)
					require.NoError(t, err)
					switch op {
					case 3:
						_, _ = f.offers.AcceptOffer(ctx, o.ID, s.OwnerID)
					case 4:
						_, _ = f.offers.RejectOffer(ctx, o.ID, s.OwnerID)
					default:
						_, _ = f.offers.CancelOffer(ctx, o.ID, o.CarrierID)
					}
					pending = append(pending[:i], pending[i+1:]...)
				}
			}

			for _, c := range carriers {
				snap := f.snapshot(t, c)
				assert.False(t, snap.Balance.IsNegative())
				assert.False(t, snap.ReservedBalance.IsNegative())

				verified, err := f.ledger.VerifyWallet(ctx, c)
				require.NoError(t, err)
				assert.True(t, verified.Balance.Equal(snap.Balance))
				assert.True(t, verified.ReservedBalance.Equal(snap.ReservedBalance))
			}
			for _, s := range shipments {
				assertSingleAcceptedOffer(t, f, s.ID)
			}
		})
	}
}

func assertSingleAcceptedOffer(t *testing.T, f *ledgerFixture, shipmentID uuid.UUID) {
	t.Helper()
	s, err := f.shipments.GetShipment(context.Background(), shipmentID)
	require.NoError(t, err)
	if s.AcceptedOfferID == nil {
		assert.Equal(t, domain.ShipmentStatusOpen, s.Status)
		return
	}
	accepted, err := f.offers.GetOffer(context.Background(), *s.AcceptedOfferID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusAccepted, accepted.Status)
	assert.Equal(t, domain.ReservationCaptured, f.reservation(t, accepted.ID).State)
}

func TestLedger_ConcurrentHoldsNeverOverdraw(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	f.fund(t, carrier, "100.00")

	const workers = 50
	shipments := make([]*domain.Shipment, workers)
	for i := range shipments {
		shipments[i] = f.shipment(t, owner)
	}

	// Each offer holds 5.00, so only 20 of them fit into 100.00.
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.offers.CreateOffer(ctx, ports.CreateOfferRequest{
				ShipmentID: shipments[i].ID, CarrierID: carrier, Price: dec("500.00"),
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientFunds), "unexpected error: %v", err)
	}
	assert.Equal(t, 20, succeeded)

	requireBalances(t, f.snapshot(t, carrier), "0.00", "100.00")
	_, err := f.ledger.VerifyWallet(ctx, carrier)
	require.NoError(t, err)
}

func TestLedger_ConcurrentCaptureAndReleaseResolveOnce(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	carrier := uuid.New()
	offerID := uuid.New()
	f.fund(t, carrier, "100.00")

	_, err := f.ledger.ReserveCommission(ctx, ports.ReserveRequest{OfferID: offerID, AccountID: carrier, Price: dec("500.00")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.ledger.CaptureCommission(ctx, offerID)
			} else {
				_, _ = f.ledger.ReleaseCommission(ctx, offerID)
			}
		}()
	}
	wg.Wait()

	captures := f.entries(t, carrier, domain.EntryTypeCommissionCapture)
	releases := f.entries(t, carrier, domain.EntryTypeCommissionRelease)
	assert.Equal(t, 1, len(captures)+len(releases))

	snap := f.snapshot(t, carrier)
	assert.True(t, snap.ReservedBalance.IsZero())
	_, err = f.ledger.VerifyWallet(ctx, carrier)
	require.NoError(t, err)
}
