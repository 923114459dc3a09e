package database

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const defaultRetries = 5

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and waits for the database to answer.
func Connect(ctx context.Context, databaseURL string, maxConns int32, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[database.Connect] pgxpool.ParseConfig")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[database.Connect] pgxpool.NewWithConfig")
	}
	if !WaitForDB(ctx, pool, logger) {
		pool.Close()
		return nil, errors.New("[database.Connect] database did not become available")
	}
	return pool, nil
}

// WaitForDB pings with a linear back-off and reports whether the database answered.
func WaitForDB(ctx context.Context, db Pinger, logger zerolog.Logger) bool {
	for attempt := 1; attempt <= defaultRetries; attempt++ {
		err := db.Ping(ctx)
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("database connection successful")
			return true
		}

		wait := time.Duration(attempt) * 200 * time.Millisecond
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", defaultRetries).
			Dur("wait", wait).
			Msg("database ping failed, retrying")

		if attempt == defaultRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
	logger.Error().Msg("database connection failed after retries")
	return false
}

// RunMigrations applies the embedded migrations. ErrNoChange is not an error.
func RunMigrations(databaseURL string, logger zerolog.Logger) error {
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return fmt.Errorf("[database.RunMigrations] database url must use the postgres:// or postgresql:// scheme")
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "[database.RunMigrations] iofs.New")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return errors.Wrap(err, "[database.RunMigrations] migrate.NewWithSourceInstance")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source_error", srcErr).AnErr("db_error", dbErr).Msg("closing migrator")
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "[database.RunMigrations] m.Up")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "[database.RunMigrations] m.Version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("database migrations applied")
	return nil
}

// Migrations lists the embedded migration files, in apply order
func Migrations() ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "[database.Migrations] ReadDir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
