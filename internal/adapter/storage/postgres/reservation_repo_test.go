package postgres

import (
	"context"
	"testing"
	"time"

	"freight-commission-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservationColumnNames() []string {
	return []string{"offer_id", "account_id", "amount", "state", "created_at", "resolved_at"}
}

func newTestReservation() *domain.Reservation {
	return &domain.Reservation{
		OfferID:   uuid.New(),
		AccountID: uuid.New(),
		Amount:    decimal.RequireFromString("5.00"),
		State:     domain.ReservationHeld,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestReservationRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReservationRepo(mock)
	res := newTestReservation()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(res.OfferID, res.AccountID, "5", "held", res.CreatedAt, res.ResolvedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReservationRepo(mock)
	res := newTestReservation()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestReservationRepo_GetByOfferIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReservationRepo(mock)
	res := newTestReservation()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM reservations WHERE offer_id .+ FOR UPDATE").
		WithArgs(res.OfferID).
		WillReturnRows(pgxmock.NewRows(reservationColumnNames()).
			AddRow(res.OfferID, res.AccountID, "5.00000000", "held", res.CreatedAt, res.ResolvedAt))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByOfferIDForUpdate(context.Background(), tx, res.OfferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ReservationHeld, got.State)
	assert.True(t, res.Amount.Equal(got.Amount))
	assert.Nil(t, got.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepo_GetByOfferID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReservationRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM reservations WHERE offer_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(reservationColumnNames()))

	got, err := repo.GetByOfferID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestReservationRepo_UpdateState(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  bool
	}{
		{"held row resolved", 1, false},
		{"row no longer held", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewReservationRepo(mock)
			res := newTestReservation()
			at := time.Now().UTC()
			res.State = domain.ReservationReleased
			res.ResolvedAt = &at

			mock.ExpectBegin()
			mock.ExpectExec("UPDATE reservations SET state .+ AND state = 'held'").
				WithArgs("released", res.ResolvedAt, res.OfferID).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			tx, err := mock.Begin(context.Background())
			require.NoError(t, err)

			err = repo.UpdateState(context.Background(), tx, res)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
