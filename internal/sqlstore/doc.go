// Package sqlstore persists credentials and refresh tokens in PostgreSQL (pgx)
// or SQLite (modernc.org/sqlite).
//
// Schemas are embedded goose migrations, one directory per dialect, applied by
// Open. Times are stored as BIGINT unix nanoseconds so both dialects compare
// them the same way. Queries are written with $N placeholders and rebound to
// ?N for SQLite.
package sqlstore
