package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// Migrate applies every pending migration from src to the database at dsn.
func Migrate(src fs.FS, dsn string, log zerolog.Logger) error {
	m, err := newMigrator(src, dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No new migrations found")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			log.Error().Int("version", dirtyErr.Version).Msg("Migration failed with dirty version")
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, _ := m.Version()
	log.Info().Uint("version", version).Msg("Migrations applied")
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(src fs.FS, dsn string, steps int, log zerolog.Logger) error {
	m, err := newMigrator(src, dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m, log)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration rollback failed: %w", err)
	}
	return nil
}

func newMigrator(src fs.FS, dsn string) (*migrate.Migrate, error) {
	source, err := iofs.New(src, ".")
	if err != nil {
		return nil, fmt.Errorf("opening migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, log zerolog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		log.Warn().AnErr("source_error", srcErr).AnErr("db_error", dbErr).Msg("Closing migrator")
	}
}

// migrationURL rewrites a postgres:// DSN to the scheme the pgx/v5 driver registers.
func migrationURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
