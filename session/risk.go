package session

import "context"

// Risk flags attached to sessions by the built-in policies.
const (
	RiskNewDevice = "new_device"
	RiskNewIP     = "new_ip"
)

// Signals is what a RiskPolicy sees when a session is created.
type Signals struct {
	UserID      string
	IP          string
	Fingerprint string
	Existing    []*Session
}

// RiskPolicy assigns risk flags to a new session. Flags are informational:
// they are stored on the session and audited, never used to reject a login.
type RiskPolicy interface {
	Assess(ctx context.Context, s Signals) []string
}

// NoRisk flags nothing.
type NoRisk struct{}

func (NoRisk) Assess(context.Context, Signals) []string { return nil }

// DeviceChangePolicy flags sessions whose fingerprint or IP has not been
// seen on any of the user's live sessions. A user's first session is never
// flagged.
type DeviceChangePolicy struct{}

func (DeviceChangePolicy) Assess(_ context.Context, s Signals) []string {
	if len(s.Existing) == 0 {
		return nil
	}

	knownDevice, knownIP := false, false
	for _, prev := range s.Existing {
		if s.Fingerprint != "" && prev.DeviceFingerprint == s.Fingerprint {
			knownDevice = true
		}
		if s.IP != "" && prev.IPAddress == s.IP {
			knownIP = true
		}
	}

	var flags []string
	if s.Fingerprint != "" && !knownDevice {
		flags = append(flags, RiskNewDevice)
	}
	if s.IP != "" && !knownIP {
		flags = append(flags, RiskNewIP)
	}
	return flags
}
