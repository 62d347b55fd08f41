package userauth

import (
	"context"
	"time"
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "ACTIVE"
	StatusSuspended AccountStatus = "SUSPENDED"
	StatusDeleted   AccountStatus = "DELETED"
)

// CredentialRecord is the persisted account as seen by the engine.
//
// FailedLoginAttempts and AccountLockedUntil change only through the lockout
// policy; the account is locked while now < *AccountLockedUntil.
type CredentialRecord struct {
	ID                  int64
	Email               string
	Username            string
	PasswordHash        string
	FirstName           string
	LastName            string
	Phone               string
	Role                Role
	Status              AccountStatus
	EmailVerified       bool
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CredentialStore persists accounts. Find* return (nil, nil) when no row matches.
// Save inserts when ID is zero (assigning it) and updates otherwise; it returns
// ErrAlreadyExists when a unique constraint on email or username is violated.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*CredentialRecord, error)
	FindByUsername(ctx context.Context, username string) (*CredentialRecord, error)
	FindByID(ctx context.Context, id int64) (*CredentialRecord, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, record *CredentialRecord) error
	Delete(ctx context.Context, id int64) error
}

// FailureCounter is an optional CredentialStore extension that applies a failed
// login in one atomic statement: increment the counter and, when it reaches
// maxAttempts, set AccountLockedUntil to lockedUntil. It returns the new state.
type FailureCounter interface {
	RecordLoginFailure(ctx context.Context, id int64, maxAttempts int, lockedUntil time.Time) (attempts int, locked *time.Time, err error)
}

// Notifier delivers account emails. Calls must not block the caller on network
// I/O; delivery failures are the notifier's to log.
type Notifier interface {
	NotifyPasswordChanged(email, username string)
	NotifyVerification(email, username, token string)
	NotifyPasswordReset(email, username, token string)
}

type noopNotifier struct{}

func (noopNotifier) NotifyPasswordChanged(string, string)       {}
func (noopNotifier) NotifyVerification(string, string, string)  {}
func (noopNotifier) NotifyPasswordReset(string, string, string) {}

// RegisterInput carries a self-service registration.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// SubjectSummary is the non-secret account view returned with tokens.
type SubjectSummary struct {
	ID            int64         `json:"id"`
	Email         string        `json:"email"`
	Username      string        `json:"username"`
	FirstName     string        `json:"firstName,omitempty"`
	LastName      string        `json:"lastName,omitempty"`
	Role          Role          `json:"role"`
	Status        AccountStatus `json:"status"`
	EmailVerified bool          `json:"emailVerified"`
}

// TokenBundle is the result of Register, Login and Refresh.
type TokenBundle struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	TokenType    string         `json:"tokenType"`
	ExpiresIn    int64          `json:"expiresIn"`
	Subject      SubjectSummary `json:"user"`
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	Subject   string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether role is among the claimed roles.
func (c *AccessClaims) HasRole(role Role) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}

func summarize(r *CredentialRecord) SubjectSummary {
	return SubjectSummary{
		ID:            r.ID,
		Email:         r.Email,
		Username:      r.Username,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Role:          r.Role,
		Status:        r.Status,
		EmailVerified: r.EmailVerified,
	}
}
