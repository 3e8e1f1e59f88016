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

var idempotencyColumns = []string{"key", "offer_id", "request_hash", "response_json", "created_at"}

func TestIdempotencyRepo_CreateStoresRequestHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	carrier, shipment := uuid.New(), uuid.New()
	log := &domain.IdempotencyLog{
		Key:          domain.BuildOfferIdempotencyKey(carrier, "retry-1"),
		OfferID:      uuid.New(),
		RequestHash:  domain.OfferRequestHash(shipment, decimal.RequireFromString("500.00"), ""),
		ResponseJSON: []byte(`{"status":"pending"}`),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	require.Len(t, log.RequestHash, 64)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_logs \\(key, offer_id, request_hash, response_json, created_at\\)").
		WithArgs(log.Key, log.OfferID, log.RequestHash, log.ResponseJSON, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), tx, log))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get(t *testing.T) {
	offerID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name string
		rows *pgxmock.Rows
		want *domain.IdempotencyLog
	}{
		{
			name: "found",
			rows: pgxmock.NewRows(idempotencyColumns).
				AddRow("c:offer:k", offerID, "ab12", []byte(`{"status":"pending"}`), now),
			want: &domain.IdempotencyLog{
				Key: "c:offer:k", OfferID: offerID, RequestHash: "ab12",
				ResponseJSON: []byte(`{"status":"pending"}`), CreatedAt: now,
			},
		},
		{name: "missing", rows: pgxmock.NewRows(idempotencyColumns)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("SELECT key, offer_id, request_hash, response_json, created_at FROM idempotency_logs WHERE key").
				WithArgs("c:offer:k").
				WillReturnRows(tt.rows)

			got, err := NewIdempotencyRepo(mock).Get(context.Background(), "c:offer:k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
