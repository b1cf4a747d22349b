// Package tokenstore persists preview tokens for the token package.
//
// SQL backs production use on PostgreSQL (pgx) or an embedded SQLite file
// (modernc.org/sqlite); Memory serves tests and single-process dry runs.
// Redemption is a single DELETE ... RETURNING so two callers racing on the
// same value cannot both receive the row.
package tokenstore
