package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "goguard_audit_dropped_total"

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed logins."},
	{ID: goGuard.MetricLoginRateLimited, Name: "goguard_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: goGuard.MetricAccountLocked, Name: "goguard_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goGuard.MetricReplayDetected, Name: "goguard_refresh_replay_detected_total", Help: "Refresh token replays that revoked every session of a user."},
	{ID: goGuard.MetricRefreshRateLimited, Name: "goguard_refresh_rate_limited_total", Help: "Refreshes rejected by the rate limiter."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Sessions created."},
	{ID: goGuard.MetricSessionEvicted, Name: "goguard_session_evicted_total", Help: "Sessions evicted by the concurrent session limit."},
	{ID: goGuard.MetricSessionRiskFlagged, Name: "goguard_session_risk_flagged_total", Help: "Sessions created with risk flags."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Single-session logouts."},
	{ID: goGuard.MetricLogoutAll, Name: "goguard_logout_all_total", Help: "Revocations of every session of a user."},
	{ID: goGuard.MetricPasswordChangeSuccess, Name: "goguard_password_change_success_total", Help: "Successful password changes."},
	{ID: goGuard.MetricPasswordChangeFailure, Name: "goguard_password_change_failure_total", Help: "Rejected password changes."},
	{ID: goGuard.MetricPasswordHashUpgraded, Name: "goguard_password_hash_upgraded_total", Help: "Password hashes rehashed with current parameters at login."},
	{ID: goGuard.MetricAccountCreated, Name: "goguard_account_created_total", Help: "Accounts registered."},
	{ID: goGuard.MetricRateLimitHit, Name: "goguard_rate_limit_hit_total", Help: "Requests rejected by the rate limiter."},
	{ID: goGuard.MetricIPBlocked, Name: "goguard_ip_blocked_total", Help: "Requests rejected because the source IP is blocked."},
	{ID: goGuard.MetricChallengeIssued, Name: "goguard_challenge_issued_total", Help: "Requests answered with a challenge."},
	{ID: goGuard.MetricChallengeSolved, Name: "goguard_challenge_solved_total", Help: "Challenges solved."},
	{ID: goGuard.MetricAuthorizeGranted, Name: "goguard_authorize_granted_total", Help: "Permission checks granted."},
	{ID: goGuard.MetricAuthorizeDenied, Name: "goguard_authorize_denied_total", Help: "Permission checks denied."},
	{ID: goGuard.MetricCSRFIssued, Name: "goguard_csrf_issued_total", Help: "CSRF tokens issued."},
	{ID: goGuard.MetricCSRFRejected, Name: "goguard_csrf_rejected_total", Help: "Requests rejected by CSRF validation."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricValidateLatency, Name: "goguard_verify_latency_seconds", Help: "Access token verification latency."},
}

// BucketCount is the number of latency buckets, the last unbounded.
const BucketCount = 8

// HistogramBoundSuffix names each bucket for exporters without native
// histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	bounds := goGuard.HistogramBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
