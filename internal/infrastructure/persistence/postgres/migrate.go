package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations up to the latest version.
// Safe to call on every startup: already-applied versions are skipped. The
// controller binary runs this when RAGCTL_DB_AUTO_MIGRATE is set; deployments
// with external migration tooling never call it.
func (s *Store) Migrate(ctx context.Context) error {
	// goose drives migrations through database/sql, not the pgx pool, so a
	// dedicated short-lived connection is opened for the run.
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if len(results) > 0 {
		slog.InfoContext(ctx, "applied schema migrations", "count", len(results))
	}
	return nil
}
