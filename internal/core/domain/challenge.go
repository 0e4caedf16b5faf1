package domain

import "time"

// OtpChallenge binds a pending login attempt to a one-time-code verification
// step. It is short-lived and single use.
type OtpChallenge struct {
	Token     string
	UserID    string
	DeviceID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	// Attempt retains the original login attempt so admission can resume
	// unchanged once the code is verified.
	Attempt LoginAttempt
}

// Expired reports whether the challenge is past its deadline at the supplied
// moment. Expired challenges are inert and cannot be redeemed.
func (c OtpChallenge) Expired(at time.Time) bool {
	return !at.Before(c.ExpiresAt)
}
