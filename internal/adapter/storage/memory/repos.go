package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"freight-commission-ledger/internal/core/domain"
	"freight-commission-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct{ store *Store }

var _ ports.WalletRepository = (*WalletRepo)(nil)

func (r *WalletRepo) CreateIfNotExists(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.wallets[w.AccountID]; !ok {
		st.wallets[w.AccountID] = *w
	}
	return nil
}

func (r *WalletRepo) GetByAccountID(_ context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	var out *domain.Wallet
	r.store.read(func(st *state) {
		if w, ok := st.wallets[accountID]; ok {
			out = &w
		}
	})
	return out, nil
}

func (r *WalletRepo) GetByAccountIDForUpdate(_ context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[accountID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) UpdateBalances(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	cur, ok := st.wallets[w.AccountID]
	if !ok || cur.ID != w.ID {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	if w.Balance.IsNegative() || w.ReservedBalance.IsNegative() {
		return fmt.Errorf("wallet %s: balances must not be negative", w.ID)
	}
	cur.Balance = w.Balance
	cur.ReservedBalance = w.ReservedBalance
	cur.UpdatedAt = w.UpdatedAt
	st.wallets[w.AccountID] = cur
	return nil
}

func (r *WalletRepo) SetDisabled(_ context.Context, tx pgx.Tx, accountID uuid.UUID, disabledAt *time.Time) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	cur, ok := st.wallets[accountID]
	if !ok {
		return fmt.Errorf("wallet not found for account: %s", accountID)
	}
	cur.DisabledAt = disabledAt
	st.wallets[accountID] = cur
	return nil
}

// JournalRepo implements ports.JournalRepository.
type JournalRepo struct{ store *Store }

var _ ports.JournalRepository = (*JournalRepo)(nil)

func (r *JournalRepo) Append(_ context.Context, tx pgx.Tx, e *domain.JournalEntry) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if e.ReferenceType == domain.ReferenceTypeOffer {
		for _, existing := range st.journal {
			if existing.ReferenceID == e.ReferenceID && existing.Type == e.Type {
				return fmt.Errorf("journal already has %s for offer %s", e.Type, e.ReferenceID)
			}
		}
	}
	st.journal = append(st.journal, *e)
	return nil
}

func (r *JournalRepo) List(_ context.Context, params ports.JournalListParams) ([]domain.JournalEntry, int64, error) {
	var matched []domain.JournalEntry
	r.store.read(func(st *state) {
		for _, e := range st.journal {
			if e.AccountID != params.AccountID {
				continue
			}
			if params.Type != nil && e.Type != *params.Type {
				continue
			}
			matched = append(matched, e)
		}
	})

	total := int64(len(matched))
	if params.Limit > 0 {
		start := min(params.Offset, len(matched))
		end := min(start+params.Limit, len(matched))
		matched = matched[start:end]
	}
	return matched, total, nil
}

// ReservationRepo implements ports.ReservationRepository.
type ReservationRepo struct{ store *Store }

var _ ports.ReservationRepository = (*ReservationRepo)(nil)

func (r *ReservationRepo) Create(_ context.Context, tx pgx.Tx, res *domain.Reservation) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.reservations[res.OfferID]; ok {
		return fmt.Errorf("reservation for offer %s already exists", res.OfferID)
	}
	st.reservations[res.OfferID] = *res
	return nil
}

func (r *ReservationRepo) GetByOfferID(_ context.Context, offerID uuid.UUID) (*domain.Reservation, error) {
	var out *domain.Reservation
	r.store.read(func(st *state) {
		if res, ok := st.reservations[offerID]; ok {
			out = &res
		}
	})
	return out, nil
}

func (r *ReservationRepo) GetByOfferIDForUpdate(_ context.Context, tx pgx.Tx, offerID uuid.UUID) (*domain.Reservation, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	res, ok := st.reservations[offerID]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (r *ReservationRepo) UpdateState(_ context.Context, tx pgx.Tx, res *domain.Reservation) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	cur, ok := st.reservations[res.OfferID]
	if !ok || cur.State != domain.ReservationHeld {
		return fmt.Errorf("reservation %s is not held", res.OfferID)
	}
	cur.State = res.State
	cur.ResolvedAt = res.ResolvedAt
	st.reservations[res.OfferID] = cur
	return nil
}

// OfferRepo implements ports.OfferRepository.
type OfferRepo struct{ store *Store }

var _ ports.OfferRepository = (*OfferRepo)(nil)

func (r *OfferRepo) Create(_ context.Context, tx pgx.Tx, o *domain.Offer) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.offers[o.ID]; ok {
		return fmt.Errorf("offer %s already exists", o.ID)
	}
	if _, ok := st.shipments[o.ShipmentID]; !ok {
		return fmt.Errorf("offer %s: shipment %s does not exist", o.ID, o.ShipmentID)
	}
	st.offers[o.ID] = *o
	st.offerOrder = append(st.offerOrder, o.ID)
	return nil
}

func (r *OfferRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Offer, error) {
	var out *domain.Offer
	r.store.read(func(st *state) {
		if o, ok := st.offers[id]; ok {
			out = &o
		}
	})
	return out, nil
}

func (r *OfferRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Offer, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	o, ok := st.offers[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OfferRepo) UpdateStatus(_ context.Context, tx pgx.Tx, o *domain.Offer, from domain.OfferStatus) (bool, error) {
	st, err := txState(tx)
	if err != nil {
		return false, err
	}
	cur, ok := st.offers[o.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	if o.Status == domain.OfferStatusAccepted {
		for _, other := range st.offers {
			if other.ID != o.ID && other.ShipmentID == cur.ShipmentID && other.Status == domain.OfferStatusAccepted {
				return false, fmt.Errorf("shipment %s already has an accepted offer", cur.ShipmentID)
			}
		}
	}
	cur.Status = o.Status
	cur.RespondedAt = o.RespondedAt
	st.offers[o.ID] = cur
	return true, nil
}

func (r *OfferRepo) ListPendingByShipmentForUpdate(_ context.Context, tx pgx.Tx, shipmentID uuid.UUID) ([]domain.Offer, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	var out []domain.Offer
	for _, id := range st.offerOrder {
		o := st.offers[id]
		if o.ShipmentID == shipmentID && o.Status == domain.OfferStatusPending {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Offer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *OfferRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var due []domain.Offer
	r.store.read(func(st *state) {
		for _, id := range st.offerOrder {
			o := st.offers[id]
			if o.Status == domain.OfferStatusPending && o.IsExpired(now) {
				due = append(due, o)
			}
		}
	})
	slices.SortStableFunc(due, func(a, b domain.Offer) int { return cmp.Compare(a.ValidUntil.UnixNano(), b.ValidUntil.UnixNano()) })

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, 0, len(due))
	for _, o := range due {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// ShipmentRepo implements ports.ShipmentRepository.
type ShipmentRepo struct{ store *Store }

var _ ports.ShipmentRepository = (*ShipmentRepo)(nil)

func (r *ShipmentRepo) Create(_ context.Context, tx pgx.Tx, s *domain.Shipment) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.shipments[s.ID]; ok {
		return fmt.Errorf("shipment %s already exists", s.ID)
	}
	st.shipments[s.ID] = *s
	return nil
}

func (r *ShipmentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Shipment, error) {
	var out *domain.Shipment
	r.store.read(func(st *state) {
		if s, ok := st.shipments[id]; ok {
			out = &s
		}
	})
	return out, nil
}

func (r *ShipmentRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Shipment, error) {
	st, err := txState(tx)
	if err != nil {
		return nil, err
	}
	s, ok := st.shipments[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *ShipmentRepo) Assign(_ context.Context, tx pgx.Tx, s *domain.Shipment) (bool, error) {
	st, err := txState(tx)
	if err != nil {
		return false, err
	}
	cur, ok := st.shipments[s.ID]
	if !ok || cur.AcceptedOfferID != nil {
		return false, nil
	}
	cur.AcceptedOfferID = s.AcceptedOfferID
	cur.CarrierID = s.CarrierID
	cur.Status = s.Status
	cur.UpdatedAt = s.UpdatedAt
	st.shipments[s.ID] = cur
	return true, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct{ store *Store }

var _ ports.IdempotencyRepository = (*IdempotencyRepo)(nil)

func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	st, err := txState(tx)
	if err != nil {
		return err
	}
	if _, ok := st.idempotency[log.Key]; ok {
		return fmt.Errorf("idempotency key %q already exists", log.Key)
	}
	st.idempotency[log.Key] = *log
	return nil
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	var out *domain.IdempotencyLog
	r.store.read(func(st *state) {
		if l, ok := st.idempotency[key]; ok {
			out = &l
		}
	})
	return out, nil
}
