package metrics

import "github.com/MrEthical07/lexauth"

// Def maps an audit event type to a dedicated counter.
type Def struct {
	Event string
	Name  string
	Help  string
	// Failures counts failed events instead of successful ones.
	Failures bool
}

// Defs lists the events with their own counter.
var Defs = []Def{
	{Event: lexauth.EventLoginSuccess, Name: "lexauth_login_success_total", Help: "Successful logins."},
	{Event: lexauth.EventLoginFailure, Name: "lexauth_login_failure_total", Help: "Failed logins.", Failures: true},
	{Event: lexauth.EventLoginRateLimited, Name: "lexauth_login_rate_limited_total", Help: "Rate-limited login attempts.", Failures: true},
	{Event: lexauth.EventMFARequired, Name: "lexauth_mfa_login_required_total", Help: "Logins that stopped for an MFA code."},
	{Event: lexauth.EventBackupCodeUsed, Name: "lexauth_backup_code_used_total", Help: "Logins completed with a backup code."},
	{Event: lexauth.EventRefreshSuccess, Name: "lexauth_refresh_success_total", Help: "Successful refreshes."},
	{Event: lexauth.EventRefreshInvalid, Name: "lexauth_refresh_failure_total", Help: "Rejected refresh tokens.", Failures: true},
	{Event: lexauth.EventRefreshReuseDetected, Name: "lexauth_refresh_reuse_detected_total", Help: "Retired refresh tokens presented again.", Failures: true},
	{Event: lexauth.EventLogoutAll, Name: "lexauth_logout_all_total", Help: "Revoke-all operations."},
	{Event: lexauth.EventLogoutSession, Name: "lexauth_logout_session_total", Help: "Single-session revocations."},
	{Event: lexauth.EventRegisterSuccess, Name: "lexauth_account_creation_success_total", Help: "Registered accounts."},
	{Event: lexauth.EventPasswordChangeSuccess, Name: "lexauth_password_change_success_total", Help: "Successful password changes."},
	{Event: lexauth.EventPasswordResetConfirm, Name: "lexauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{Event: lexauth.EventPasswordResetFailure, Name: "lexauth_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations.", Failures: true},
	{Event: lexauth.EventMFAFailure, Name: "lexauth_mfa_failure_total", Help: "Failed MFA verifications.", Failures: true},
	{Event: lexauth.EventAuthenticationFailure, Name: "lexauth_authentication_failure_total", Help: "Rejected credentials on protected requests.", Failures: true},
	{Event: lexauth.EventAuthorizationDenied, Name: "lexauth_authorization_denied_total", Help: "Authenticated requests denied a role or permission.", Failures: true},
}
