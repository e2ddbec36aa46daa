package internaldefs

import (
	"github.com/MrEthical07/teamgate"
)

// CounterDef names one Engine counter.
type CounterDef struct {
	ID   teamgate.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine histogram.
type HistogramDef struct {
	ID   teamgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: teamgate.MetricLoginOTPSent, Name: "teamgate_login_otp_sent_total", Help: "Login passcodes issued and delivered."},
	{ID: teamgate.MetricLoginInvalidCredentials, Name: "teamgate_login_invalid_credentials_total", Help: "Logins refused for unknown email or wrong password."},
	{ID: teamgate.MetricLoginThrottled, Name: "teamgate_login_throttled_total", Help: "Logins refused by the per-source throttle."},
	{ID: teamgate.MetricOTPVerifySuccess, Name: "teamgate_otp_verify_success_total", Help: "Passcodes accepted."},
	{ID: teamgate.MetricOTPVerifyFailure, Name: "teamgate_otp_verify_failure_total", Help: "Passcodes rejected."},
	{ID: teamgate.MetricPasswordResetRequest, Name: "teamgate_password_reset_request_total", Help: "Password reset requests."},
	{ID: teamgate.MetricPasswordResetConfirmSuccess, Name: "teamgate_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: teamgate.MetricPasswordResetConfirmFailure, Name: "teamgate_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: teamgate.MetricRateGuardBlocked, Name: "teamgate_rate_guard_blocked_total", Help: "Secret issuances refused within the cooldown."},
	{ID: teamgate.MetricDeliveryFailure, Name: "teamgate_delivery_failure_total", Help: "Mails that could not be delivered."},
	{ID: teamgate.MetricStoreFailure, Name: "teamgate_store_failure_total", Help: "Secret store or account directory faults."},
	{ID: teamgate.MetricSessionIssued, Name: "teamgate_session_issued_total", Help: "Session tokens issued."},
	{ID: teamgate.MetricSessionRejected, Name: "teamgate_session_rejected_total", Help: "Session tokens rejected."},
	{ID: teamgate.MetricLogout, Name: "teamgate_logout_total", Help: "Sessions revoked by logout."},
	{ID: teamgate.MetricAccountCreated, Name: "teamgate_account_created_total", Help: "Accounts registered."},
	{ID: teamgate.MetricAccountCreateDuplicate, Name: "teamgate_account_create_duplicate_total", Help: "Registrations rejected for a duplicate email."},
	{ID: teamgate.MetricAccountUpdated, Name: "teamgate_account_updated_total", Help: "Account profile updates."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: teamgate.MetricLoginLatency, Name: "teamgate_login_latency_seconds", Help: "Login latency from credential check to passcode delivery."},
}

// AuditDroppedName is the counter of audit entries dropped under backpressure.
const (
	AuditDroppedName = "teamgate_audit_dropped_total"
	AuditDroppedHelp = "Audit entries dropped because the dispatcher buffer was full."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// that flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
