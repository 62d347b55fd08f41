package userauth

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"github.com/MrEthical07/userauth/internal/audit"
)

// AuditEvent is one audited authentication outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// Event types emitted by the engine.
const (
	AuditRegister                 = "register"
	AuditLoginSuccess             = "login_success"
	AuditLoginFailure             = "login_failure"
	AuditAccountLocked            = "account_locked"
	AuditRefresh                  = "refresh"
	AuditLogout                   = "logout"
	AuditEmailVerificationRequest = "email_verification_request"
	AuditEmailVerified            = "email_verified"
	AuditPasswordResetRequest     = "password_reset_request"
	AuditPasswordReset            = "password_reset"
	AuditPasswordChange           = "password_change"
	AuditAccountDeleted           = "account_deleted"
)

func NewNoOpSink() AuditSink { return audit.NoOpSink{} }

func NewChannelSink(buffer int) *audit.ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) AuditSink { return audit.NewJSONWriterSink(w) }

func NewSlogSink(logger *slog.Logger) AuditSink { return audit.NewSlogSink(logger) }

func (e *Engine) emitAudit(ctx context.Context, eventType string, userID int64, subject string, success bool, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		Success:   success,
	}
	if userID != 0 {
		event.UserID = strconv.FormatInt(userID, 10)
	}
	if err != nil {
		event.Error = err.Error()
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		metadata = withMeta(metadata, "ip", ip)
	}
	if id := requestIDFromContext(ctx); id != "" {
		metadata = withMeta(metadata, "request_id", id)
	}
	event.Metadata = metadata

	e.audit.Emit(ctx, event)
}

func withMeta(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string, 2)
	}
	m[k] = v
	return m
}
