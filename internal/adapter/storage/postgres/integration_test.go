//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"freight-commission-ledger/internal/adapter/storage/postgres"
	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/internal/service"
	"freight-commission-ledger/migrations"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Every test shares one migrated container and isolates itself with fresh ids.
var integrationDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("commission_ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				fmt.Fprintf(os.Stderr, "terminate postgres container: %v\n", err)
			}
		}()

		integrationDSN, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "container dsn: %v\n", err)
			return 1
		}
		if err := postgres.Migrate(migrations.FS, integrationDSN, zerolog.Nop()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return 1
		}
		return m.Run()
	}()
	os.Exit(code)
}

type stackOptions struct {
	lockTimeout      time.Duration
	maxAttempts      int
	validity         time.Duration
	releaseCompeting bool
}

// stack wires the services over the real repositories, as cmd/api does.
type stack struct {
	pool      *pgxpool.Pool
	ledger    *service.LedgerService
	offers    *service.OfferServiceImpl
	shipments *service.ShipmentServiceImpl
	sweeper   *service.ExpirySweeper
}

func newStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()
	if opts.lockTimeout == 0 {
		opts.lockTimeout = 5 * time.Second
	}
	if opts.maxAttempts == 0 {
		opts.maxAttempts = 5
	}
	if opts.validity == 0 {
		opts.validity = 72 * time.Hour
	}

	pool, err := pgxpool.New(context.Background(), integrationDSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	policy, err := domain.NewCommissionPolicy("0.01", 2, "USD")
	require.NoError(t, err)
	log := zerolog.Nop()

	uow := postgres.NewTransactor(pool, opts.lockTimeout, postgres.RetryPolicy{
		MaxAttempts: opts.maxAttempts,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}, log)
	offerRepo := postgres.NewOfferRepo(pool)
	shipmentRepo := postgres.NewShipmentRepo(pool)

	ledger := service.NewLedgerService(uow, postgres.NewWalletRepo(pool), postgres.NewJournalRepo(pool),
		postgres.NewReservationRepo(pool), offerRepo, policy, log)
	offers := service.NewOfferService(uow, offerRepo, shipmentRepo, postgres.NewIdempotencyRepo(pool), nil,
		ledger, service.NewAssignmentCoordinator(shipmentRepo),
		service.OfferOptions{Validity: opts.validity, ReleaseCompetingOnAccept: opts.releaseCompeting}, log)

	return &stack{
		pool:      pool,
		ledger:    ledger,
		offers:    offers,
		shipments: service.NewShipmentService(uow, shipmentRepo, log),
		sweeper:   service.NewExpirySweeper(offerRepo, offers, nil, time.Minute, 100, log),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (s *stack) fund(t *testing.T, accountID uuid.UUID, amount string) {
	t.Helper()
	_, err := s.ledger.Deposit(context.Background(), ports.DepositRequest{AccountID: accountID, Amount: dec(amount)})
	require.NoError(t, err)
}

func (s *stack) shipment(t *testing.T, ownerID uuid.UUID) *domain.Shipment {
	t.Helper()
	sh, err := s.shipments.RegisterShipment(context.Background(), ownerID)
	require.NoError(t, err)
	return sh
}

func (s *stack) offer(t *testing.T, shipmentID, carrierID uuid.UUID, price string) *domain.Offer {
	t.Helper()
	o, err := s.offers.CreateOffer(context.Background(), ports.CreateOfferRequest{
		ShipmentID: shipmentID, CarrierID: carrierID, Price: dec(price),
	})
	require.NoError(t, err)
	return o
}

func (s *stack) requireBalances(t *testing.T, accountID uuid.UUID, balance, reserved string) {
	t.Helper()
	snap, err := s.ledger.GetWalletSnapshot(context.Background(), accountID)
	require.NoError(t, err)
	require.Truef(t, snap.Balance.Equal(dec(balance)), "balance: want %s, got %s", balance, snap.Balance)
	require.Truef(t, snap.ReservedBalance.Equal(dec(reserved)), "reserved: want %s, got %s", reserved, snap.ReservedBalance)
}

func (s *stack) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func (s *stack) reservationState(t *testing.T, offerID uuid.UUID) domain.ReservationState {
	t.Helper()
	res, err := postgres.NewReservationRepo(s.pool).GetByOfferID(context.Background(), offerID)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res.State
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, code), "expected %s, got %v", code, err)
}

// ==================== Scenarios ====================

func TestIntegration_HoldThenCaptureOnAccept(t *testing.T) {
	s := newStack(t, stackOptions{releaseCompeting: true})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")
	sh := s.shipment(t, owner)

	offer := s.offer(t, sh.ID, carrier, "500.00")
	s.requireBalances(t, carrier, "95.00", "5.00")

	_, err := s.offers.AcceptOffer(ctx, offer.ID, owner)
	require.NoError(t, err)

	s.requireBalances(t, carrier, "95.00", "0")
	assert.Equal(t, 1, s.count(t,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND entry_type = 'commission_capture' AND amount = 5`, carrier))
	assert.Equal(t, domain.ReservationCaptured, s.reservationState(t, offer.ID))

	got, err := s.shipments.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AcceptedOfferID)
	assert.Equal(t, offer.ID, *got.AcceptedOfferID)

	_, err = s.ledger.VerifyWallet(ctx, carrier)
	assert.NoError(t, err)
}

func TestIntegration_InsufficientFundsLeavesNoRows(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "2.00")
	sh := s.shipment(t, owner)

	_, err := s.offers.CreateOffer(ctx, ports.CreateOfferRequest{ShipmentID: sh.ID, CarrierID: carrier, Price: dec("500.00")})
	requireCode(t, err, apperror.CodeInsufficientFunds)

	s.requireBalances(t, carrier, "2.00", "0")
	assert.Zero(t, s.count(t, `SELECT COUNT(*) FROM offers WHERE shipment_id = $1`, sh.ID))
	assert.Zero(t, s.count(t, `SELECT COUNT(*) FROM reservations WHERE account_id = $1`, carrier))
	assert.Equal(t, 1, s.count(t, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, carrier), "only the deposit")
}

func TestIntegration_ConcurrentAcceptsOnlyOneWins(t *testing.T) {
	s := newStack(t, stackOptions{releaseCompeting: false})
	ctx := context.Background()
	owner := uuid.New()
	sh := s.shipment(t, owner)

	carriers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	offers := make([]*domain.Offer, len(carriers))
	for i, c := range carriers {
		s.fund(t, c, "100.00")
		offers[i] = s.offer(t, sh.ID, c, "500.00")
	}

	errs := make([]error, len(offers))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, o := range offers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = s.offers.AcceptOffer(ctx, o.ID, owner)
		}()
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one accept succeeded")
			winner = i
			continue
		}
		requireCode(t, err, apperror.CodeAlreadyAssigned)
	}
	require.NotEqual(t, -1, winner)

	assert.Equal(t, 1, s.count(t, `SELECT COUNT(*) FROM offers WHERE shipment_id = $1 AND status = 'accepted'`, sh.ID))
	for i, o := range offers {
		if i == winner {
			assert.Equal(t, domain.ReservationCaptured, s.reservationState(t, o.ID))
			s.requireBalances(t, carriers[i], "95.00", "0")
			continue
		}
		assert.Equal(t, domain.ReservationHeld, s.reservationState(t, o.ID))
		s.requireBalances(t, carriers[i], "95.00", "5.00")

		_, err := s.offers.RejectOffer(ctx, o.ID, owner)
		require.NoError(t, err)
		s.requireBalances(t, carriers[i], "100.00", "0")
	}
}

func TestIntegration_RejectReleasesHold(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")
	sh := s.shipment(t, owner)
	offer := s.offer(t, sh.ID, carrier, "500.00")

	_, err := s.offers.RejectOffer(ctx, offer.ID, owner)
	require.NoError(t, err)

	s.requireBalances(t, carrier, "100.00", "0")
	assert.Equal(t, 1, s.count(t,
		`SELECT COUNT(*) FROM transactions WHERE reference_id = $1 AND entry_type = 'commission_release' AND amount = 5`, offer.ID))
	assert.Equal(t, domain.ReservationReleased, s.reservationState(t, offer.ID))
}

// ==================== Ledger on its own ====================

func TestIntegration_ReserveForOfferOwnedElsewhere(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	carrier, externalOffer := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")

	res, err := s.ledger.ReserveCommission(ctx, ports.ReserveRequest{OfferID: externalOffer, AccountID: carrier, Price: dec("500.00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, res.State)
	s.requireBalances(t, carrier, "95.00", "5.00")

	res, err = s.ledger.CaptureCommission(ctx, externalOffer)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCaptured, res.State)
	s.requireBalances(t, carrier, "95.00", "0")
}

func TestIntegration_DirectCaptureOfPendingOfferRefused(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")
	offer := s.offer(t, s.shipment(t, owner).ID, carrier, "500.00")

	_, err := s.ledger.CaptureCommission(ctx, offer.ID)
	requireCode(t, err, apperror.CodeInvalidStateTransition)
	assert.Equal(t, domain.ReservationHeld, s.reservationState(t, offer.ID))

	_, err = s.offers.RejectOffer(ctx, offer.ID, owner)
	require.NoError(t, err)
	s.requireBalances(t, carrier, "100.00", "0")
}

func TestIntegration_ConcurrentHoldsNeverOverdraw(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	carrier := uuid.New()
	s.fund(t, carrier, "20.00")

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.ledger.ReserveCommission(ctx, ports.ReserveRequest{
				OfferID: uuid.New(), AccountID: carrier, Price: dec("500.00"),
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
		requireCode(t, err, apperror.CodeInsufficientFunds)
	}
	assert.Equal(t, 4, succeeded)
	s.requireBalances(t, carrier, "0", "20.00")

	_, err := s.ledger.VerifyWallet(ctx, carrier)
	assert.NoError(t, err)
}

func TestIntegration_ExpirySweepReleasesHold(t *testing.T) {
	s := newStack(t, stackOptions{validity: 200 * time.Millisecond})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")
	offer := s.offer(t, s.shipment(t, owner).ID, carrier, "300.00")
	s.requireBalances(t, carrier, "97.00", "3.00")

	time.Sleep(300 * time.Millisecond)
	_, err := s.sweeper.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)

	got, err := s.offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusExpired, got.Status)
	s.requireBalances(t, carrier, "100.00", "0")
}

func TestIntegration_IdempotencyKeyStoresFingerprint(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	owner, carrier := uuid.New(), uuid.New()
	s.fund(t, carrier, "100.00")
	sh := s.shipment(t, owner)

	req := ports.CreateOfferRequest{ShipmentID: sh.ID, CarrierID: carrier, Price: dec("500.00"), IdempotencyKey: "bid-1"}
	first, err := s.offers.CreateOffer(ctx, req)
	require.NoError(t, err)
	again, err := s.offers.CreateOffer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	req.Price = dec("450.00")
	_, err = s.offers.CreateOffer(ctx, req)
	requireCode(t, err, apperror.CodeDuplicateRequest)

	var stored string
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT request_hash FROM idempotency_logs WHERE key = $1`,
		domain.BuildOfferIdempotencyKey(carrier, "bid-1")).Scan(&stored))
	assert.Equal(t, domain.OfferRequestHash(sh.ID, dec("500"), ""), stored)
	s.requireBalances(t, carrier, "95.00", "5.00")
}

// ==================== Schema guards ====================

func TestIntegration_JournalIsImmutable(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	account := uuid.New()
	s.fund(t, account, "10.00")

	_, err := s.pool.Exec(ctx, `UPDATE transactions SET amount = 1 WHERE account_id = $1`, account)
	assert.ErrorContains(t, err, "journal entries are immutable")
	_, err = s.pool.Exec(ctx, `DELETE FROM transactions WHERE account_id = $1`, account)
	assert.ErrorContains(t, err, "journal entries are immutable")
}

func TestIntegration_SecondAcceptedOfferRejectedBySchema(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()
	owner := uuid.New()
	sh := s.shipment(t, owner)
	a, b := uuid.New(), uuid.New()
	s.fund(t, a, "100.00")
	s.fund(t, b, "100.00")
	offerA := s.offer(t, sh.ID, a, "100.00")
	offerB := s.offer(t, sh.ID, b, "100.00")

	_, err := s.offers.AcceptOffer(ctx, offerA.ID, owner)
	require.NoError(t, err)

	_, err = s.pool.Exec(ctx, `UPDATE offers SET status = 'accepted' WHERE id = $1`, offerB.ID)
	assert.ErrorContains(t, err, "uq_offers_one_accepted_per_shipment")

	_, err = s.pool.Exec(ctx, `UPDATE shipments SET accepted_offer_id = $1 WHERE id = $2`, offerB.ID, sh.ID)
	assert.ErrorContains(t, err, "accepted_offer_id is immutable")
}

func TestIntegration_LockTimeoutSurfacesAfterRetries(t *testing.T) {
	s := newStack(t, stackOptions{lockTimeout: 100 * time.Millisecond, maxAttempts: 2})
	ctx := context.Background()
	account := uuid.New()
	s.fund(t, account, "10.00")

	blocker, err := s.pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = blocker.Rollback(ctx) }()
	_, err = blocker.Exec(ctx, `SELECT 1 FROM wallets WHERE account_id = $1 FOR UPDATE`, account)
	require.NoError(t, err)

	_, err = s.ledger.Deposit(ctx, ports.DepositRequest{AccountID: account, Amount: dec("5.00")})
	requireCode(t, err, apperror.CodeLockTimeout)

	require.NoError(t, blocker.Rollback(ctx))
	s.requireBalances(t, account, "10.00", "0")
}

func TestIntegration_HealthCheckSeesCleanSchema(t *testing.T) {
	s := newStack(t, stackOptions{})
	assert.NoError(t, postgres.NewHealthCheck(s.pool).Ping(context.Background()))
}
