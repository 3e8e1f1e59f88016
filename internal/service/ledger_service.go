package service

import (
	"context"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerService implements ports.CommissionLedger and ports.ReservationEngine.
// The engine methods run inside a caller's unit of work; the ledger methods
// open their own.
type LedgerService struct {
	uow          ports.UnitOfWork
	wallets      ports.WalletRepository
	reservations ports.ReservationRepository
	offers       ports.OfferRepository
	store        *WalletStore
	journal      *Journal
	policy       domain.CommissionPolicy
	log          zerolog.Logger
	now          func() time.Time
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	uow ports.UnitOfWork,
	wallets ports.WalletRepository,
	journalRepo ports.JournalRepository,
	reservations ports.ReservationRepository,
	offers ports.OfferRepository,
	policy domain.CommissionPolicy,
	log zerolog.Logger,
) *LedgerService {
	journal := NewJournal(journalRepo)
	return &LedgerService{
		uow:          uow,
		wallets:      wallets,
		reservations: reservations,
		offers:       offers,
		store:        NewWalletStore(wallets, journal, policy.Currency()),
		journal:      journal,
		policy:       policy,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ ports.CommissionLedger  = (*LedgerService)(nil)
	_ ports.ReservationEngine = (*LedgerService)(nil)
)

// ---- ReservationEngine ----

// Reserve holds the commission for req.Price against the account's free balance.
// A second call for the same offer returns the hold that already exists.
func (s *LedgerService) Reserve(ctx context.Context, tx pgx.Tx, req ports.ReserveRequest) (*domain.Reservation, error) {
	amount, err := s.policy.Commission(req.Price)
	if err != nil {
		return nil, err
	}

	existing, err := s.reservations.GetByOfferIDForUpdate(ctx, tx, req.OfferID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock reservation: %w", err))
	}
	if existing != nil {
		if !existing.IsHeld() {
			return nil, apperror.ErrInvalidStateTransition(string(existing.State), "hold")
		}
		if existing.AccountID != req.AccountID || !existing.Amount.Equal(amount) {
			return nil, apperror.ErrDuplicateRequest()
		}
		return existing, nil
	}

	if _, err := s.store.Post(ctx, tx, Posting{
		AccountID:     req.AccountID,
		Type:          domain.EntryTypeCommissionHold,
		Amount:        amount,
		ReferenceType: domain.ReferenceTypeOffer,
		ReferenceID:   req.OfferID,
	}); err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		OfferID:   req.OfferID,
		AccountID: req.AccountID,
		Amount:    amount,
		State:     domain.ReservationHeld,
		CreatedAt: s.now(),
	}
	if err := s.reservations.Create(ctx, tx, res); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create reservation: %w", err))
	}

	s.log.Info().
		Str("offer_id", req.OfferID.String()).
		Str("account_id", req.AccountID.String()).
		Str("amount", amount.String()).
		Msg("Commission held")

	return res, nil
}

// Capture keeps the held commission for the platform.
func (s *LedgerService) Capture(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error) {
	return s.resolve(ctx, tx, offerID, domain.ReservationCaptured)
}

// Release returns the held commission to the account's free balance.
func (s *LedgerService) Release(ctx context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error) {
	return s.resolve(ctx, tx, offerID, domain.ReservationReleased)
}

func (s *LedgerService) resolve(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, to domain.ReservationState) (*domain.Reservation, error) {
	res, err := s.reservations.GetByOfferIDForUpdate(ctx, tx, offerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock reservation: %w", err))
	}
	if res == nil {
		return nil, apperror.ErrNotFound("Reservation")
	}

	changed, err := res.Resolve(to, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return res, nil
	}

	if _, err := s.store.Post(ctx, tx, Posting{
		AccountID:     res.AccountID,
		Type:          to.EntryType(),
		Amount:        res.Amount,
		ReferenceType: domain.ReferenceTypeOffer,
		ReferenceID:   offerID,
	}); err != nil {
		return nil, err
	}

	if err := s.reservations.UpdateState(ctx, tx, res); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update reservation: %w", err))
	}

	s.log.Info().
		Str("offer_id", offerID.String()).
		Str("account_id", res.AccountID.String()).
		Str("amount", res.Amount.String()).
		Str("state", string(to)).
		Msg("Commission resolved")

	return res, nil
}

// ---- CommissionLedger ----

func (s *LedgerService) ReserveCommission(ctx context.Context, req ports.ReserveRequest) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		res, err = s.Reserve(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CaptureCommission resolves a hold directly. When the offer is managed here
// it must already be accepted, so the hold always follows the offer's status.
func (s *LedgerService) CaptureCommission(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error) {
	return s.resolveInTx(ctx, offerID, domain.ReservationCaptured)
}

// ReleaseCommission resolves a hold directly. A locally managed offer must
// already be rejected, cancelled or expired.
func (s *LedgerService) ReleaseCommission(ctx context.Context, offerID uuid.UUID) (*domain.Reservation, error) {
	return s.resolveInTx(ctx, offerID, domain.ReservationReleased)
}

func (s *LedgerService) resolveInTx(ctx context.Context, offerID uuid.UUID, to domain.ReservationState) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		offer, err := s.offers.GetByIDForUpdate(ctx, tx, offerID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock offer: %w", err))
		}
		if offer != nil && !offerAllows(offer.Status, to) {
			return apperror.ErrInvalidStateTransition(string(offer.Status), to.Action())
		}

		res, err = s.resolve(ctx, tx, offerID, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func offerAllows(status domain.OfferStatus, to domain.ReservationState) bool {
	switch to {
	case domain.ReservationCaptured:
		return status == domain.OfferStatusAccepted
	case domain.ReservationReleased:
		return status == domain.OfferStatusRejected ||
			status == domain.OfferStatusCancelled ||
			status == domain.OfferStatusExpired
	}
	return false
}

// GetWalletSnapshot returns committed balances; unknown accounts read as zero.
func (s *LedgerService) GetWalletSnapshot(ctx context.Context, accountID uuid.UUID) (*domain.WalletSnapshot, error) {
	return s.store.Snapshot(ctx, accountID)
}

// Deposit credits free balance and records a deposit entry.
func (s *LedgerService) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.JournalEntry, error) {
	if err := s.policy.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	ref := req.Reference
	if ref == uuid.Nil {
		ref = uuid.New()
	}

	var entry *domain.JournalEntry
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		entry, err = s.store.Post(ctx, tx, Posting{
			AccountID:     req.AccountID,
			Type:          domain.EntryTypeDeposit,
			Amount:        req.Amount,
			ReferenceType: domain.ReferenceTypeDeposit,
			ReferenceID:   ref,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", req.AccountID.String()).
		Str("amount", req.Amount.String()).
		Msg("Deposit recorded")

	return entry, nil
}

func (s *LedgerService) OpenWallet(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		wallet, err = s.store.Open(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// DisableWallet stops new holds and deposits. Existing holds can still be resolved.
func (s *LedgerService) DisableWallet(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		wallet, err = s.store.SetDisabled(ctx, tx, accountID, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn().Str("account_id", accountID.String()).Msg("Wallet disabled")
	return wallet, nil
}

func (s *LedgerService) History(ctx context.Context, params ports.JournalListParams) ([]domain.JournalEntry, int64, error) {
	return s.journal.History(ctx, params)
}

// VerifyWallet replays the journal under the wallet lock and compares the
// result with the stored balances.
func (s *LedgerService) VerifyWallet(ctx context.Context, accountID uuid.UUID) (*domain.WalletSnapshot, error) {
	var snap domain.WalletSnapshot
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		wallet, err := s.wallets.GetByAccountIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}

		replayed, err := s.journal.Replay(ctx, accountID)
		if err != nil {
			return err
		}
		replayed.Currency = s.policy.Currency()

		if wallet == nil {
			if !replayed.Balance.IsZero() || !replayed.ReservedBalance.IsZero() {
				return apperror.ErrLedgerMismatch(fmt.Errorf("account %s has journal entries but no wallet", accountID))
			}
			snap = replayed
			return nil
		}

		if !replayed.Balance.Equal(wallet.Balance) || !replayed.ReservedBalance.Equal(wallet.ReservedBalance) {
			return apperror.ErrLedgerMismatch(fmt.Errorf(
				"account %s: wallet %s/%s, journal %s/%s", accountID,
				wallet.Balance, wallet.ReservedBalance, replayed.Balance, replayed.ReservedBalance))
		}
		snap = wallet.Snapshot()
		return nil
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeLedgerMismatch) {
			s.log.Error().Err(err).Str("account_id", accountID.String()).Msg("Wallet failed journal verification")
		}
		return nil, err
	}
	return &snap, nil
}
