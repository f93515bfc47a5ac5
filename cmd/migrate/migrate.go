// Package migrate applies the auth service schema with goose, using the
// pgx stdlib driver so the DSN matches the one the repo connects with.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var Migrations embed.FS

// Up brings the user store schema to the latest version. It runs before
// the auth service accepts connections, so failures are fatal to startup.
func Up(ctx context.Context, dsn string, path fs.FS) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open auth database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping auth database: %w", err)
	}

	goose.SetBaseFS(path)
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
