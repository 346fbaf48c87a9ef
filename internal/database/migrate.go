package database

import (
	"context"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"github.com/edupaila/community-server-go/migrations"
)

// Migrate applies all pending migrations from the embedded filesystem.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db.DB.DB, "."); err != nil {
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB.DB)
	if err != nil {
		return err
	}
	log.Info().Int64("version", version).Msg("database migrations applied")
	return nil
}
