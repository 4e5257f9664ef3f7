package data

import (
	"context"
	"database/sql"

	"github.com/talkingphoto/pipeline/internal/migrate"
)

// RunMigrations applies all pending schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
