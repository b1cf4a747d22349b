package tokenstore

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the token schema up to date.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(d.gooseDialect()); err != nil {
		return xerrors.Wrapf(err, "goose dialect %s", d)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return xerrors.Wrap(err, "apply token migrations")
	}
	return nil
}
