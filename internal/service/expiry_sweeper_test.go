package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports/mocks"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestExpirySweeper_ReleasesLapsedOffers(t *testing.T) {
	f := newLedgerFixture(t, true)
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	f.fund(t, carrier, "100.00")
	shipment := f.shipment(t, owner)

	stale := f.offer(t, shipment.ID, carrier, "500.00")
	f.clock.Advance(time.Hour)
	fresh := f.offer(t, shipment.ID, carrier, "300.00")
	requireBalances(t, f.snapshot(t, carrier), "92.00", "8.00")

	f.clock.Advance(testOfferValidity - time.Hour)

	expired, err := f.sweeper.Sweep(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := f.offers.GetOffer(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusExpired, got.Status)
	requireBalances(t, f.snapshot(t, carrier), "97.00", "3.00")

	stillPending, err := f.offers.GetOffer(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusPending, stillPending.Status)

	again, err := f.sweeper.Sweep(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, again)
	assert.Len(t, f.entries(t, carrier, domain.EntryTypeCommissionRelease), 1)
}

func TestExpirySweeper_SkipsConflictsAndContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	offers := mocks.NewMockOfferRepository(ctrl)
	offerSvc := mocks.NewMockOfferService(ctrl)
	sweeper := NewExpirySweeper(offers, offerSvc, nil, time.Minute, 3, zerolog.Nop())

	ctx := context.Background()
	now := time.Now().UTC()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	offers.EXPECT().ListExpiredPending(ctx, now, 3).Return(ids, nil)
	offerSvc.EXPECT().ExpireOffer(ctx, ids[0]).Return(nil, apperror.ErrInvalidStateTransition("accepted", "expire"))
	offerSvc.EXPECT().ExpireOffer(ctx, ids[1]).Return(nil, apperror.InternalError(errors.New("boom")))
	offerSvc.EXPECT().ExpireOffer(ctx, ids[2]).Return(&domain.Offer{ID: ids[2], Status: domain.OfferStatusExpired}, nil)

	expired, err := sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
}

func TestExpirySweeper_ListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	offers := mocks.NewMockOfferRepository(ctrl)
	sweeper := NewExpirySweeper(offers, mocks.NewMockOfferService(ctrl), nil, time.Minute, 0, zerolog.Nop())

	offers.EXPECT().ListExpiredPending(gomock.Any(), gomock.Any(), 100).Return(nil, errors.New("db down"))

	_, err := sweeper.Sweep(context.Background(), time.Now())
	assertCode(t, err, apperror.CodeInternal)
}

func TestExpirySweeper_TickRespectsLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	offers := mocks.NewMockOfferRepository(ctrl)
	lock := mocks.NewMockSweepLock(ctrl)
	sweeper := NewExpirySweeper(offers, mocks.NewMockOfferService(ctrl), lock, time.Minute, 10, zerolog.Nop())
	ctx := context.Background()

	lock.EXPECT().TryAcquire(ctx, sweepLockName, 54*time.Second).Return(false, nil)
	sweeper.tick(ctx)

	lock.EXPECT().TryAcquire(ctx, sweepLockName, 54*time.Second).Return(false, errors.New("redis down"))
	sweeper.tick(ctx)

	gomock.InOrder(
		lock.EXPECT().TryAcquire(ctx, sweepLockName, 54*time.Second).Return(true, nil),
		offers.EXPECT().ListExpiredPending(ctx, gomock.Any(), 10).Return(nil, nil),
		lock.EXPECT().Release(gomock.Any(), sweepLockName).Return(nil),
	)
	sweeper.tick(ctx)
}

func TestExpirySweeper_TickReleasesLockAfterFailedSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	offers := mocks.NewMockOfferRepository(ctrl)
	lock := mocks.NewMockSweepLock(ctrl)
	sweeper := NewExpirySweeper(offers, mocks.NewMockOfferService(ctrl), lock, time.Minute, 10, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	lock.EXPECT().TryAcquire(ctx, sweepLockName, 54*time.Second).Return(true, nil)
	offers.EXPECT().ListExpiredPending(ctx, gomock.Any(), 10).
		DoAndReturn(func(_ context.Context, _ time.Time, _ int) ([]uuid.UUID, error) {
			cancel()
			return nil, errors.New("db down")
		})
	lock.EXPECT().Release(gomock.Any(), sweepLockName).
		DoAndReturn(func(releaseCtx context.Context, _ string) error {
			assert.NoError(t, releaseCtx.Err(), "release must survive shutdown")
			return errors.New("redis down")
		})

	sweeper.tick(ctx)
}

func TestExpirySweeper_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	offers := mocks.NewMockOfferRepository(ctrl)
	offers.EXPECT().ListExpiredPending(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	sweeper := NewExpirySweeper(offers, mocks.NewMockOfferService(ctrl), nil, 5*time.Millisecond, 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
