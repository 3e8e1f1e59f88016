package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freight-commission-ledger/config"
	httpHandler "freight-commission-ledger/internal/adapter/http/handler"
	memStorage "freight-commission-ledger/internal/adapter/storage/memory"
	pgStorage "freight-commission-ledger/internal/adapter/storage/postgres"
	redisStorage "freight-commission-ledger/internal/adapter/storage/redis"
	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/internal/service"
	"freight-commission-ledger/migrations"
	"freight-commission-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

// storage bundles the persistence ports of the selected driver.
type storage struct {
	uow          ports.UnitOfWork
	wallets      ports.WalletRepository
	journal      ports.JournalRepository
	reservations ports.ReservationRepository
	offers       ports.OfferRepository
	shipments    ports.ShipmentRepository
	idempotency  ports.IdempotencyRepository
	health       ports.HealthChecker
	close        func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		st := memStorage.NewStore()
		return &storage{
			uow:          st,
			wallets:      st.Wallets(),
			journal:      st.Journal(),
			reservations: st.Reservations(),
			offers:       st.Offers(),
			shipments:    st.Shipments(),
			idempotency:  st.Idempotency(),
			health:       st,
			close:        func() {},
		}, nil

	case "postgres", "":
		if cfg.Database.MigrateOnStart {
			if err := pgStorage.Migrate(migrations.FS, cfg.Database.DSN(), log); err != nil {
				return nil, err
			}
		}

		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		retry := pgStorage.RetryPolicy{
			MaxAttempts: cfg.Ledger.Retry.MaxAttempts,
			BaseDelay:   cfg.Ledger.Retry.BaseDelay,
			MaxDelay:    cfg.Ledger.Retry.MaxDelay,
		}
		return &storage{
			uow:          pgStorage.NewTransactor(pool, cfg.Database.LockTimeout, retry, logger.Component(log, "transactor")),
			wallets:      pgStorage.NewWalletRepo(pool),
			journal:      pgStorage.NewJournalRepo(pool),
			reservations: pgStorage.NewReservationRepo(pool),
			offers:       pgStorage.NewOfferRepo(pool),
			shipments:    pgStorage.NewShipmentRepo(pool),
			idempotency:  pgStorage.NewIdempotencyRepo(pool),
			health:       pgStorage.NewHealthCheck(pool),
			close:        pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting Freight Commission Ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := domain.NewCommissionPolicy(cfg.Ledger.CommissionRate, cfg.Ledger.CurrencyScale, cfg.Ledger.Currency)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid commission policy")
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	checkers := []ports.HealthChecker{store.health}

	// Redis-backed helpers stay nil when Redis is disabled.
	var (
		idempCache  ports.IdempotencyCache
		sweepLock   ports.SweepLock
		rateLimiter ports.RateLimiter
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		sweepLock = redisStorage.NewSweepLock(rdb)
		rateLimiter = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	ledgerSvc := service.NewLedgerService(
		store.uow,
		store.wallets,
		store.journal,
		store.reservations,
		store.offers,
		policy,
		logger.Component(log, "ledger"),
	)
	assigner := service.NewAssignmentCoordinator(store.shipments)
	shipmentSvc := service.NewShipmentService(store.uow, store.shipments, logger.Component(log, "shipments"))
	offerSvc := service.NewOfferService(
		store.uow,
		store.offers,
		store.shipments,
		store.idempotency,
		idempCache,
		ledgerSvc,
		assigner,
		service.OfferOptions{
			Validity:                 cfg.Ledger.OfferValidity,
			ReleaseCompetingOnAccept: cfg.Ledger.ReleaseCompetingOnAccept,
		},
		logger.Component(log, "offers"),
	)

	sweeper := service.NewExpirySweeper(
		store.offers,
		offerSvc,
		sweepLock,
		cfg.Ledger.ExpirySweepInterval,
		cfg.Ledger.ExpiryBatchSize,
		logger.Component(log, "expiry_sweeper"),
	)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		OfferSvc:       offerSvc,
		ShipmentSvc:    shipmentSvc,
		TokenSvc:       tokenSvc,
		RateLimiter:    rateLimiter,
		HealthCheckers: checkers,
		CurrencyScale:  policy.Scale(),
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-sweeperDone

	log.Info().Msg("Server exited")
}
