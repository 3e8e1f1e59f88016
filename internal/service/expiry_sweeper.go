package service

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	sweepLockName       = "offer-expiry-sweep"
	sweepReleaseTimeout = 2 * time.Second
)

// ExpirySweeper expires pending offers whose validity has lapsed and so
// releases their holds.
type ExpirySweeper struct {
	offers    ports.OfferRepository
	offerSvc  ports.OfferService
	lock      ports.SweepLock // optional; nil in single-replica setups
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
	now       func() time.Time
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(
	offers ports.OfferRepository,
	offerSvc ports.OfferService,
	lock ports.SweepLock,
	interval time.Duration,
	batchSize int,
	log zerolog.Logger,
) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirySweeper{
		offers:    offers,
		offerSvc:  offerSvc,
		lock:      lock,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep expires one batch of offers due at now and returns how many it expired.
// Offers resolved by someone else in the meantime are skipped.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.offers.ListExpiredPending(ctx, now, s.batchSize)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list expired offers: %w", err))
	}

	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		_, err := s.offerSvc.ExpireOffer(ctx, id)
		switch {
		case err == nil:
			expired++
		case apperror.HasCode(err, apperror.CodeInvalidStateTransition):
			s.log.Debug().Str("offer_id", id.String()).Msg("Offer already resolved, skipping expiry")
		default:
			s.log.Error().Err(err).Str("offer_id", id.String()).Msg("Failed to expire offer")
		}
	}

	if expired > 0 {
		s.log.Info().Int("expired", expired).Int("due", len(ids)).Msg("Expiry sweep finished")
	}
	return expired, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Warn().Msg("Expiry sweeper disabled: interval is not positive")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("batch_size", s.batchSize).Msg("Expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ExpirySweeper) tick(ctx context.Context) {
	if s.lock != nil {
		// Expires before the next tick so any replica can take it then.
		ok, err := s.lock.TryAcquire(ctx, sweepLockName, s.interval*9/10)
		if err != nil {
			s.log.Warn().Err(err).Msg("Sweep lock unavailable, skipping tick")
			return
		}
		if !ok {
			return
		}
		defer s.releaseLock(ctx)
	}

	if _, err := s.Sweep(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("Expiry sweep failed")
	}
}

// releaseLock runs even after shutdown cancels ctx; the TTL covers a failed release.
func (s *ExpirySweeper) releaseLock(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepReleaseTimeout)
	defer cancel()

	if err := s.lock.Release(ctx, sweepLockName); err != nil {
		s.log.Warn().Err(err).Msg("Failed to release sweep lock")
	}
}
