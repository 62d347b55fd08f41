package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/userauth"
)

// CredentialStore implements userauth.CredentialStore and userauth.FailureCounter.
type CredentialStore struct {
	conn    *sql.DB
	dialect Dialect
	now     func() time.Time
}

var (
	_ userauth.CredentialStore = (*CredentialStore)(nil)
	_ userauth.FailureCounter  = (*CredentialStore)(nil)
)

// WithClock sets the clock used for updated_at on failure counting.
func (s *CredentialStore) WithClock(now func() time.Time) *CredentialStore {
	if now != nil {
		s.now = now
	}
	return s
}

const credentialColumns = `id, email, username, password_hash, first_name, last_name, phone,
	role, status, email_verified, failed_login_attempts, account_locked_until,
	last_login_at, created_at, updated_at`

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*userauth.CredentialRecord, error) {
	return s.findOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE email = $1`, email)
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*userauth.CredentialRecord, error) {
	return s.findOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE username = $1`, username)
}

func (s *CredentialStore) FindByID(ctx context.Context, id int64) (*userauth.CredentialRecord, error) {
	return s.findOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
}

func (s *CredentialStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM credentials WHERE email = $1`, email)
}

func (s *CredentialStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM credentials WHERE username = $1`, username)
}

// Save inserts rec when rec.ID is zero and assigns the generated ID; otherwise it
// overwrites the row with that ID.
func (s *CredentialStore) Save(ctx context.Context, rec *userauth.CredentialRecord) error {
	if rec == nil {
		return errors.New("nil credential record")
	}
	if rec.ID == 0 {
		return s.insert(ctx, rec)
	}

	query := `UPDATE credentials SET email = $1, username = $2, password_hash = $3,
		first_name = $4, last_name = $5, phone = $6, role = $7, status = $8,
		email_verified = $9, failed_login_attempts = $10, account_locked_until = $11,
		last_login_at = $12, updated_at = $13
		WHERE id = $14`
	res, err := s.conn.ExecContext(ctx, rebind(s.dialect, query),
		rec.Email, rec.Username, rec.PasswordHash,
		rec.FirstName, rec.LastName, rec.Phone, string(rec.Role), string(rec.Status),
		rec.EmailVerified, rec.FailedLoginAttempts, toNanos(rec.AccountLockedUntil),
		toNanos(rec.LastLoginAt), updatedAt(rec).UnixNano(),
		rec.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userauth.ErrAlreadyExists
		}
		return fmt.Errorf("update credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update credential %d: %w", rec.ID, userauth.ErrNotFound)
	}
	return nil
}

func (s *CredentialStore) insert(ctx context.Context, rec *userauth.CredentialRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.UpdatedAt = updatedAt(rec)
	if rec.Role == "" {
		rec.Role = userauth.RoleUser
	}
	if rec.Status == "" {
		rec.Status = userauth.StatusActive
	}

	query := `INSERT INTO credentials (email, username, password_hash, first_name, last_name,
		phone, role, status, email_verified, failed_login_attempts, account_locked_until,
		last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	err := s.conn.QueryRowContext(ctx, rebind(s.dialect, query),
		rec.Email, rec.Username, rec.PasswordHash, rec.FirstName, rec.LastName,
		rec.Phone, string(rec.Role), string(rec.Status), rec.EmailVerified,
		rec.FailedLoginAttempts, toNanos(rec.AccountLockedUntil),
		toNanos(rec.LastLoginAt), rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
	).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return userauth.ErrAlreadyExists
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, rebind(s.dialect, `DELETE FROM credentials WHERE id = $1`), id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// RecordLoginFailure increments the counter and opens the lock in one statement,
// so concurrent failures never lose an increment.
func (s *CredentialStore) RecordLoginFailure(ctx context.Context, id int64, maxAttempts int, lockedUntil time.Time) (int, *time.Time, error) {
	query := `UPDATE credentials SET
		failed_login_attempts = failed_login_attempts + 1,
		account_locked_until = CASE WHEN failed_login_attempts + 1 >= $1 THEN $2 ELSE account_locked_until END,
		updated_at = $3
		WHERE id = $4
		RETURNING failed_login_attempts, account_locked_until`

	var (
		attempts int
		locked   sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx, rebind(s.dialect, query),
		maxAttempts, lockedUntil.UnixNano(), s.now().UnixNano(), id,
	).Scan(&attempts, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("record login failure %d: %w", id, userauth.ErrNotFound)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("record login failure: %w", err)
	}
	return attempts, fromNanos(locked), nil
}

func (s *CredentialStore) findOne(ctx context.Context, query string, arg any) (*userauth.CredentialRecord, error) {
	var (
		rec                          userauth.CredentialRecord
		role, status                 string
		lockedUntil, lastLogin       sql.NullInt64
		createdAtNanos, updatedNanos int64
	)
	err := s.conn.QueryRowContext(ctx, rebind(s.dialect, query), arg).Scan(
		&rec.ID, &rec.Email, &rec.Username, &rec.PasswordHash,
		&rec.FirstName, &rec.LastName, &rec.Phone,
		&role, &status, &rec.EmailVerified, &rec.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &createdAtNanos, &updatedNanos,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}

	rec.Role = userauth.Role(role)
	rec.Status = userauth.AccountStatus(status)
	rec.AccountLockedUntil = fromNanos(lockedUntil)
	rec.LastLoginAt = fromNanos(lastLogin)
	rec.CreatedAt = time.Unix(0, createdAtNanos).UTC()
	rec.UpdatedAt = time.Unix(0, updatedNanos).UTC()
	return &rec, nil
}

func (s *CredentialStore) exists(ctx context.Context, query string, arg any) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, rebind(s.dialect, query), arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query credential: %w", err)
	}
	return true, nil
}

func updatedAt(rec *userauth.CredentialRecord) time.Time {
	if rec.UpdatedAt.IsZero() {
		return rec.CreatedAt
	}
	return rec.UpdatedAt
}
