package postgres

import (
	"context"
	"testing"
	"time"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offerColumnNames() []string {
	return []string{"id", "shipment_id", "carrier_id", "price", "message", "status", "valid_until", "created_at", "responded_at"}
}

func newTestOffer() *domain.Offer {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Offer{
		ID:         uuid.New(),
		ShipmentID: uuid.New(),
		CarrierID:  uuid.New(),
		Price:      decimal.RequireFromString("500.00"),
		Message:    "can pick up tomorrow",
		Status:     domain.OfferStatusPending,
		ValidUntil: now.Add(72 * time.Hour),
		CreatedAt:  now,
	}
}

func offerRow(rows *pgxmock.Rows, o *domain.Offer) *pgxmock.Rows {
	return rows.AddRow(o.ID, o.ShipmentID, o.CarrierID, o.Price.StringFixed(8), o.Message,
		string(o.Status), o.ValidUntil, o.CreatedAt, o.RespondedAt)
}

func TestOfferRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOfferRepo(mock)
	o := newTestOffer()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO offers").
		WithArgs(o.ID, o.ShipmentID, o.CarrierID, "500", o.Message, "pending", o.ValidUntil, o.CreatedAt, o.RespondedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOfferRepo(mock)
	o := newTestOffer()

	mock.ExpectQuery("SELECT .+ FROM offers WHERE id").
		WithArgs(o.ID).
		WillReturnRows(offerRow(pgxmock.NewRows(offerColumnNames()), o))

	got, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.ShipmentID, got.ShipmentID)
	assert.True(t, o.Price.Equal(got.Price))
	assert.Equal(t, domain.OfferStatusPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOfferRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM offers WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(offerColumnNames()))

	got, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOfferRepo_UpdateStatus(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"still pending", 1, true},
		{"already resolved", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewOfferRepo(mock)
			o := newTestOffer()
			at := time.Now().UTC()
			o.Status = domain.OfferStatusRejected
			o.RespondedAt = &at

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE offers SET status .+ WHERE id = \\$3 AND status = \\$4").
				WithArgs("rejected", o.RespondedAt, o.ID, "pending").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			ok, err := repo.UpdateStatus(context.Background(), tx, o, domain.OfferStatusPending)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOfferRepo_ListPendingByShipmentForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOfferRepo(mock)
	a, b := newTestOffer(), newTestOffer()
	b.ShipmentID = a.ShipmentID

	rows := pgxmock.NewRows(offerColumnNames())
	offerRow(rows, a)
	offerRow(rows, b)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM offers WHERE shipment_id = \\$1 AND status = 'pending' .+ FOR UPDATE").
		WithArgs(a.ShipmentID).
		WillReturnRows(rows)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	offers, err := repo.ListPendingByShipmentForUpdate(context.Background(), tx, a.ShipmentID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, a.ID, offers[0].ID)
	assert.Equal(t, b.ID, offers[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfferRepo_ListExpiredPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOfferRepo(mock)
	now := time.Now().UTC()
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT id FROM offers WHERE status = 'pending' AND valid_until <= \\$1").
		WithArgs(now, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id1).AddRow(id2))

	ids, err := repo.ListExpiredPending(context.Background(), now, 50)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id1, id2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
