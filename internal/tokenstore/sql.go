package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/keithlinneman/linnemanlabs-seed/internal/token"
	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// DBTX is the subset of database/sql the store needs; *sql.DB and *sql.Tx
// both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL stores tokens in the quant_token table.
type SQL struct {
	db      DBTX
	dialect Dialect
}

var _ token.Store = (*SQL)(nil)

func NewSQL(db DBTX, d Dialect) *SQL {
	return &SQL{db: db, dialect: d}
}

// Insert writes one token row. A duplicate value surfaces as the driver's
// unique-constraint error.
func (s *SQL) Insert(ctx context.Context, t token.Token) error {
	q := s.dialect.rebind(`INSERT INTO quant_token (nid, token, created) VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, t.OwnerID, t.Value, t.CreatedAt.UTC()); err != nil {
		return xerrors.Wrapf(err, "insert token for nid %d", t.OwnerID)
	}
	return nil
}

// Take deletes every row carrying value and returns the most recent one.
func (s *SQL) Take(ctx context.Context, value string) (token.Token, error) {
	q := s.dialect.rebind(`DELETE FROM quant_token WHERE token = ? RETURNING nid, created`)
	rows, err := s.db.QueryContext(ctx, q, value)
	if err != nil {
		return token.Token{}, xerrors.Wrap(err, "delete token")
	}
	defer rows.Close()

	var (
		best  token.Token
		found bool
	)
	for rows.Next() {
		var (
			nid     int64
			created any
		)
		if err := rows.Scan(&nid, &created); err != nil {
			return token.Token{}, xerrors.Wrap(err, "scan token row")
		}
		at, err := asTime(created)
		if err != nil {
			return token.Token{}, err
		}
		if !found || at.After(best.CreatedAt) {
			best = token.Token{Value: value, OwnerID: nid, CreatedAt: at}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return token.Token{}, xerrors.Wrap(err, "read token rows")
	}
	if !found {
		return token.Token{}, token.ErrNotFound
	}
	return best, nil
}

// Purge removes tokens created before cutoff and reports how many went.
func (s *SQL) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.dialect.rebind(`DELETE FROM quant_token WHERE created < ?`)
	res, err := s.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, xerrors.Wrap(err, "purge tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, xerrors.Wrap(err, "purge rows affected")
	}
	return n, nil
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// asTime normalises what drivers hand back for a TIMESTAMP column: pgx
// returns time.Time, sqlite may return text or unix seconds
func asTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case []byte:
		return asTime(string(x))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, xerrors.Newf("unparseable created value %q", x)
	}
	return time.Time{}, xerrors.Newf("unexpected created type %s", fmt.Sprintf("%T", v))
}
