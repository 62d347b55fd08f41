package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/userauth/refresh"
)

// RefreshStore implements refresh.Store over the refresh_tokens table.
type RefreshStore struct {
	conn    *sql.DB
	dialect Dialect
}

var _ refresh.Store = (*RefreshStore)(nil)

func (s *RefreshStore) Save(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	return saveToken(ctx, s.conn, s.dialect, token, userID, expiresAt)
}

func (s *RefreshStore) FindByToken(ctx context.Context, token string) (*refresh.Record, error) {
	query := `SELECT token_hash, user_id, expires_at, revoked FROM refresh_tokens WHERE token_hash = $1`

	var (
		rec     refresh.Record
		expires int64
	)
	err := s.conn.QueryRowContext(ctx, rebind(s.dialect, query), refresh.HashToken(token)).
		Scan(&rec.TokenHash, &rec.UserID, &expires, &rec.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query refresh token: %w", err)
	}
	rec.ExpiresAt = time.Unix(0, expires).UTC()
	return &rec, nil
}

func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	return revokeAll(ctx, s.conn, s.dialect, userID)
}

// Rotate revokes every token of userID and saves token in one transaction.
// On PostgreSQL a transaction-scoped advisory lock on userID serializes
// concurrent rotations; SQLite serializes writers on its single connection.
func (s *RefreshStore) Rotate(ctx context.Context, userID int64, token string, expiresAt time.Time) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect == Postgres {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
			return fmt.Errorf("lock rotate: %w", err)
		}
	}
	if err = revokeAll(ctx, tx, s.dialect, userID); err != nil {
		return err
	}
	if err = saveToken(ctx, tx, s.dialect, token, userID, expiresAt); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func (s *RefreshStore) SweepExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE revoked = $1 OR expires_at <= $2`
	res, err := s.conn.ExecContext(ctx, rebind(s.dialect, query), true, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep refresh tokens: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveToken(ctx context.Context, db execer, dialect Dialect, token string, userID int64, expiresAt time.Time) error {
	if token == "" {
		return errors.New("empty refresh token")
	}
	query := `INSERT INTO refresh_tokens (token_hash, user_id, expires_at, revoked) VALUES ($1, $2, $3, $4)`
	if _, err := db.ExecContext(ctx, rebind(dialect, query), refresh.HashToken(token), userID, expiresAt.UnixNano(), false); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func revokeAll(ctx context.Context, db execer, dialect Dialect, userID int64) error {
	query := `UPDATE refresh_tokens SET revoked = $1 WHERE user_id = $2 AND revoked = $3`
	if _, err := db.ExecContext(ctx, rebind(dialect, query), true, userID, false); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
