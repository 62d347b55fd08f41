package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/userauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   userauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   userauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: userauth.MetricRegisterSuccess, Name: "userauth_register_success_total", Help: "Successful registrations."},
	{ID: userauth.MetricRegisterDuplicate, Name: "userauth_register_duplicate_total", Help: "Registrations rejected for a taken email or username."},
	{ID: userauth.MetricLoginSuccess, Name: "userauth_login_success_total", Help: "Successful logins."},
	{ID: userauth.MetricLoginFailure, Name: "userauth_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: userauth.MetricLoginLockedRejected, Name: "userauth_login_locked_rejected_total", Help: "Logins rejected because the account was already locked."},
	{ID: userauth.MetricAccountLocked, Name: "userauth_account_locked_total", Help: "Lockouts opened by a failed login."},
	{ID: userauth.MetricAccountDisabled, Name: "userauth_account_disabled_total", Help: "Logins rejected for a suspended account."},
	{ID: userauth.MetricPasswordHashUpgraded, Name: "userauth_password_hash_upgraded_total", Help: "Password hashes re-hashed on login."},
	{ID: userauth.MetricRefreshSuccess, Name: "userauth_refresh_success_total", Help: "Access tokens minted from a refresh token."},
	{ID: userauth.MetricRefreshFailure, Name: "userauth_refresh_failure_total", Help: "Refresh attempts with an unusable token."},
	{ID: userauth.MetricLogout, Name: "userauth_logout_total", Help: "Logouts."},
	{ID: userauth.MetricEmailVerificationRequest, Name: "userauth_email_verification_request_total", Help: "Verification tokens issued."},
	{ID: userauth.MetricEmailVerificationSuccess, Name: "userauth_email_verification_success_total", Help: "Verification tokens redeemed."},
	{ID: userauth.MetricEmailVerificationFailure, Name: "userauth_email_verification_failure_total", Help: "Invalid or expired verification tokens."},
	{ID: userauth.MetricPasswordResetRequest, Name: "userauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: userauth.MetricPasswordResetSuccess, Name: "userauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: userauth.MetricPasswordResetFailure, Name: "userauth_password_reset_failure_total", Help: "Invalid or expired reset tokens."},
	{ID: userauth.MetricRateLimitHit, Name: "userauth_rate_limit_hit_total", Help: "Token requests denied by the per-email throttle."},
	{ID: userauth.MetricPasswordChangeSuccess, Name: "userauth_password_change_success_total", Help: "Passwords changed by their owner."},
	{ID: userauth.MetricPasswordChangeFailure, Name: "userauth_password_change_failure_total", Help: "Password changes rejected for a wrong, locked or reused password."},
	{ID: userauth.MetricAccountDeleted, Name: "userauth_account_deleted_total", Help: "Accounts deleted by their owner."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: userauth.MetricValidateLatency, Name: "userauth_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: userauth.MetricLoginLatency, Name: "userauth_login_latency_seconds", Help: "Login latency including password verification."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "userauth_audit_dropped_total"

// HistogramBounds are the le labels of the engine buckets, in seconds, ending
// with "+Inf".
var HistogramBounds = func() [userauth.LatencyBuckets]string {
	var out [userauth.LatencyBuckets]string
	for i, d := range userauth.LatencyBounds {
		out[i] = strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
	}
	out[len(out)-1] = "+Inf"
	return out
}()

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [userauth.LatencyBuckets]uint64) [userauth.LatencyBuckets]uint64 {
	var out [userauth.LatencyBuckets]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
