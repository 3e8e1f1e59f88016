package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// OfferOptions configures the offer life cycle.
type OfferOptions struct {
	Validity time.Duration
	// ReleaseCompetingOnAccept rejects the shipment's other pending offers
	// and releases their holds in the accepting unit of work.
	ReleaseCompetingOnAccept bool
}

// OfferServiceImpl implements ports.OfferService.
type OfferServiceImpl struct {
	uow        ports.UnitOfWork
	offers     ports.OfferRepository
	shipments  ports.ShipmentRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache // optional
	engine     ports.ReservationEngine
	assigner   ports.ShipmentAssigner
	opts       OfferOptions
	log        zerolog.Logger
	now        func() time.Time
}

// NewOfferService creates a new OfferServiceImpl. idempCache may be nil.
func NewOfferService(
	uow ports.UnitOfWork,
	offers ports.OfferRepository,
	shipments ports.ShipmentRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	engine ports.ReservationEngine,
	assigner ports.ShipmentAssigner,
	opts OfferOptions,
	log zerolog.Logger,
) *OfferServiceImpl {
	return &OfferServiceImpl{
		uow:        uow,
		offers:     offers,
		shipments:  shipments,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		engine:     engine,
		assigner:   assigner,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ ports.OfferService = (*OfferServiceImpl)(nil)

// CreateOffer holds the carrier's commission and inserts the offer in one
// unit of work, so an offer row exists only if the hold succeeded.
func (s *OfferServiceImpl) CreateOffer(ctx context.Context, req ports.CreateOfferRequest) (*domain.Offer, error) {
	if !req.Price.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	var idempKey, reqHash string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildOfferIdempotencyKey(req.CarrierID, req.IdempotencyKey)
		reqHash = domain.OfferRequestHash(req.ShipmentID, req.Price, req.Message)
		if offer, err := s.lookupIdempotent(ctx, idempKey, reqHash); offer != nil || err != nil {
			return offer, err
		}
	}

	now := s.now()
	offer := &domain.Offer{
		ID:         uuid.New(),
		ShipmentID: req.ShipmentID,
		CarrierID:  req.CarrierID,
		Price:      req.Price,
		Message:    req.Message,
		Status:     domain.OfferStatusPending,
		ValidUntil: now.Add(s.opts.Validity),
		CreatedAt:  now,
	}

	var respJSON []byte
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		shipment, err := s.shipments.GetByIDForUpdate(ctx, tx, req.ShipmentID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock shipment: %w", err))
		}
		if shipment == nil {
			return apperror.ErrNotFound("Shipment")
		}
		if !shipment.IsOpen() {
			return apperror.ErrShipmentNotOpen()
		}
		if shipment.OwnerID == req.CarrierID {
			return apperror.ErrOwnShipment()
		}

		if _, err := s.engine.Reserve(ctx, tx, ports.ReserveRequest{
			OfferID:   offer.ID,
			AccountID: req.CarrierID,
			Price:     req.Price,
		}); err != nil {
			return err
		}

		if err := s.offers.Create(ctx, tx, offer); err != nil {
			return apperror.InternalError(fmt.Errorf("create offer: %w", err))
		}

		if idempKey == "" {
			return nil
		}
		respJSON, err = json.Marshal(offer)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, tx, &domain.IdempotencyLog{
			Key:          idempKey,
			OfferID:      offer.ID,
			RequestHash:  reqHash,
			ResponseJSON: respJSON,
			CreatedAt:    now,
		}); err != nil {
			return apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
		return nil
	})
	if err != nil {
		// A concurrent request with the same key may have committed first.
		if idempKey != "" && apperror.HasCode(err, apperror.CodeInternal) {
			prior, lookupErr := s.lookupIdempotent(ctx, idempKey, reqHash)
			if apperror.HasCode(lookupErr, apperror.CodeDuplicateRequest) {
				return nil, lookupErr
			}
			if prior != nil && lookupErr == nil {
				return prior, nil
			}
		}
		return nil, err
	}

	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("offer_id", offer.ID.String()).
		Str("shipment_id", offer.ShipmentID.String()).
		Str("account_id", offer.CarrierID.String()).
		Str("price", offer.Price.String()).
		Msg("Offer created")

	return offer, nil
}

// lookupIdempotent checks Redis first, then the database log. A key reused
// with a different request is a duplicate, not a replay.
func (s *OfferServiceImpl) lookupIdempotent(ctx context.Context, key, reqHash string) (*domain.Offer, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			offer, err := unmarshalOffer(cached)
			if err != nil {
				return nil, err
			}
			if offer.RequestHash() != reqHash {
				return nil, s.keyReused(key)
			}
			return offer, nil
		}
	}

	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog == nil {
		return nil, nil
	}
	if idempLog.RequestHash != reqHash {
		return nil, s.keyReused(key)
	}
	return unmarshalOffer(idempLog.ResponseJSON)
}

func (s *OfferServiceImpl) keyReused(key string) error {
	s.log.Warn().Str("key", key).Msg("Idempotency key reused with a different request")
	return apperror.ErrDuplicateRequest()
}

func unmarshalOffer(data []byte) (*domain.Offer, error) {
	var offer domain.Offer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached offer: %w", err))
	}
	return &offer, nil
}

// Transition applies event to the offer on behalf of actor. The table entry's
// side effect, the status change and any competing rejections commit together.
func (s *OfferServiceImpl) Transition(ctx context.Context, offerID uuid.UUID, event domain.OfferEvent, actor domain.Actor) (*domain.Offer, error) {
	var result *domain.Offer
	var released int

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		released = 0

		// shipment_id never changes, so an unlocked read is enough to find
		// which shipment to lock first.
		peek, err := s.offers.GetByID(ctx, offerID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("get offer: %w", err))
		}
		if peek == nil {
			return apperror.ErrNotFound("Offer")
		}

		shipment, err := s.shipments.GetByIDForUpdate(ctx, tx, peek.ShipmentID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock shipment: %w", err))
		}
		if shipment == nil {
			return apperror.ErrNotFound("Shipment")
		}

		offer, err := s.offers.GetByIDForUpdate(ctx, tx, offerID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock offer: %w", err))
		}
		if offer == nil {
			return apperror.ErrNotFound("Offer")
		}

		t, err := domain.LookupTransition(offer.Status, event)
		if err != nil {
			return err
		}
		if !t.Permits(actor, offer, shipment) {
			return apperror.ErrActorNotPermitted(string(event))
		}

		now := s.now()
		switch event {
		case domain.OfferEventAccept:
			if offer.IsExpired(now) {
				return apperror.ErrInvalidStateTransition(string(domain.OfferStatusExpired), string(event))
			}
		case domain.OfferEventExpire:
			if !offer.IsExpired(now) {
				return apperror.ErrInvalidStateTransition("not yet due", string(event))
			}
		}

		var competitors []domain.Offer
		if t.Effect == domain.EffectCaptureAndAssign && s.opts.ReleaseCompetingOnAccept {
			competitors, err = s.offers.ListPendingByShipmentForUpdate(ctx, tx, shipment.ID)
			if err != nil {
				return apperror.InternalError(fmt.Errorf("lock competing offers: %w", err))
			}
		}

		if err := s.runEffect(ctx, tx, t.Effect, offer); err != nil {
			return err
		}
		if err := s.applyStatus(ctx, tx, offer, t, now); err != nil {
			return err
		}

		if len(competitors) > 0 {
			reject, err := domain.LookupTransition(domain.OfferStatusPending, domain.OfferEventReject)
			if err != nil {
				return err
			}
			for i := range competitors {
				other := &competitors[i]
				if other.ID == offer.ID {
					continue
				}
				if err := s.runEffect(ctx, tx, reject.Effect, other); err != nil {
					return err
				}
				if err := s.applyStatus(ctx, tx, other, reject, now); err != nil {
					return err
				}
				released++
			}
		}

		result = offer
		return nil
	})
	if err != nil {
		return nil, err
	}

	logEvent := s.log.Info().
		Str("offer_id", result.ID.String()).
		Str("shipment_id", result.ShipmentID.String()).
		Str("event", string(event)).
		Str("status", string(result.Status))
	if released > 0 {
		logEvent = logEvent.Int("competing_rejected", released)
	}
	logEvent.Msg("Offer transitioned")

	return result, nil
}

func (s *OfferServiceImpl) runEffect(ctx context.Context, tx pgx.Tx, effect domain.Effect, offer *domain.Offer) error {
	switch effect {
	case domain.EffectCaptureAndAssign:
		if err := s.assigner.Assign(ctx, tx, offer.ShipmentID, offer.ID, offer.CarrierID); err != nil {
			return err
		}
		_, err := s.engine.Capture(ctx, tx, offer.ID)
		return err
	case domain.EffectRelease:
		_, err := s.engine.Release(ctx, tx, offer.ID)
		return err
	default:
		return nil
	}
}

func (s *OfferServiceImpl) applyStatus(ctx context.Context, tx pgx.Tx, offer *domain.Offer, t domain.Transition, at time.Time) error {
	if err := offer.Apply(t, at); err != nil {
		return err
	}
	ok, err := s.offers.UpdateStatus(ctx, tx, offer, t.From)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("update offer status: %w", err))
	}
	if !ok {
		return apperror.ErrInvalidStateTransition("no longer "+string(t.From), string(t.Event))
	}
	return nil
}

func (s *OfferServiceImpl) AcceptOffer(ctx context.Context, offerID, ownerID uuid.UUID) (*domain.Offer, error) {
	return s.Transition(ctx, offerID, domain.OfferEventAccept, domain.AccountActor(ownerID))
}

func (s *OfferServiceImpl) RejectOffer(ctx context.Context, offerID, ownerID uuid.UUID) (*domain.Offer, error) {
	return s.Transition(ctx, offerID, domain.OfferEventReject, domain.AccountActor(ownerID))
}

func (s *OfferServiceImpl) CancelOffer(ctx context.Context, offerID, carrierID uuid.UUID) (*domain.Offer, error) {
	return s.Transition(ctx, offerID, domain.OfferEventCancel, domain.AccountActor(carrierID))
}

func (s *OfferServiceImpl) ExpireOffer(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	return s.Transition(ctx, offerID, domain.OfferEventExpire, domain.SystemActor())
}

func (s *OfferServiceImpl) GetOffer(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get offer: %w", err))
	}
	if offer == nil {
		return nil, apperror.ErrNotFound("Offer")
	}
	return offer, nil
}
