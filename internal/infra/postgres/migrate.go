package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// VerifySchema checks that the token table is reachable.
func VerifySchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var present bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('public.api_tokens') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}
	if !present {
		return fmt.Errorf("verify schema: table api_tokens is missing")
	}
	return nil
}
