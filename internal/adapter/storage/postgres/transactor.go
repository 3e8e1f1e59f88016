package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-commission-ledger/internal/core/ports"
	"freight-commission-ledger/pkg/apperror"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how often a unit of work is re-run after a transient conflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Transactor implements ports.UnitOfWork using a pgx pool.
type Transactor struct {
	pool        Pool
	lockTimeout time.Duration
	retry       RetryPolicy
	log         zerolog.Logger
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool, lockTimeout time.Duration, retry RetryPolicy, log zerolog.Logger) *Transactor {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Transactor{pool: pool, lockTimeout: lockTimeout, retry: retry, log: log}
}

var _ ports.UnitOfWork = (*Transactor)(nil)

// WithinTx runs fn in a transaction. Serialization failures, deadlocks and
// lock timeouts are retried with jittered exponential backoff; when attempts
// run out the caller gets SYS_002.
func (t *Transactor) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		err := t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		t.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Transient conflict, retrying unit of work")
	}

	err := backoff.RetryNotify(op, t.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		return apperror.ErrLockTimeout(err)
	}
	return err
}

func (t *Transactor) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retry.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = 10 * time.Millisecond
	}
	if t.retry.MaxDelay > 0 {
		b.MaxInterval = t.retry.MaxDelay
	}
	b.RandomizationFactor = 1
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.retry.MaxAttempts-1)), ctx)
}

func (t *Transactor) runOnce(ctx context.Context, fn ports.TxFunc) (err error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			t.log.Error().Err(rbErr).Msg("Failed to rollback unit of work")
		}
	}()

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	// Commit must finish even if the caller gives up now.
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
