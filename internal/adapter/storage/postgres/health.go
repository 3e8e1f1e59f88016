package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// HealthCheck reports PostgreSQL healthy only once golang-migrate has left
// the schema in a clean state.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var (
		version int64
		dirty   bool
	)
	err := h.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New("schema has no applied migrations")
		}
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema migration %d is dirty", version)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
