package domain

// LoginStatus is the closed set of admission outcomes.
type LoginStatus string

const (
	// LoginStatusOK means a session was created (or an existing one reused).
	LoginStatusOK LoginStatus = "OK"
	// LoginStatusNewDevice means the device is unknown and a challenge was opened.
	LoginStatusNewDevice LoginStatus = "NEW_DEVICE"
	// LoginStatusSuspiciousLocation means a recognized device logged in from an
	// unusual country and a challenge was opened.
	LoginStatusSuspiciousLocation LoginStatus = "SUSPICIOUS_LOCATION"
	// LoginStatusTooManyDevices means the account's active-session cap is reached.
	LoginStatusTooManyDevices LoginStatus = "TOO_MANY_DEVICES"
	// LoginStatusOtpRequired is the prompt-only status for an attempt that
	// repeats a prior challenge without carrying a code yet.
	LoginStatusOtpRequired LoginStatus = "OTP_REQUIRED"
)

// Valid reports whether the status is one of the five defined outcomes.
func (s LoginStatus) Valid() bool {
	switch s {
	case LoginStatusOK, LoginStatusNewDevice, LoginStatusSuspiciousLocation,
		LoginStatusTooManyDevices, LoginStatusOtpRequired:
		return true
	}
	return false
}

// LoginAttempt is the transient input to one admission evaluation. It is never
// persisted as-is; challenges retain a copy so the flow can resume after proof.
type LoginAttempt struct {
	UserID      string
	DeviceID    string
	Fingerprint Fingerprint
	IPAddress   string
	Country     string
	UserAgent   string
	// OtpProof carries the proof token minted when a challenge was redeemed.
	OtpProof string
	// HasOtpCode signals that the caller already holds a code for an open
	// challenge and only needs the prompt back, not a fresh challenge.
	HasOtpCode bool
}

// LoginValidationResult is the final verdict of the admission state machine.
type LoginValidationResult struct {
	Status      LoginStatus
	Message     string
	RequiresOtp bool
	// SessionID holds the created session id on OK, or the challenge token
	// while an OTP round-trip is pending.
	SessionID string
}
