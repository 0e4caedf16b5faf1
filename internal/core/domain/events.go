package domain

import "time"

// SessionAdmittedEvent is published when a login attempt commits a session.
type SessionAdmittedEvent struct {
	EventID    string
	SessionID  string
	UserID     string
	DeviceID   string
	Country    *string
	AdmittedAt time.Time
	// Challenged is true when admission went through an OTP round-trip.
	Challenged bool
}

// SessionTerminatedEvent is published when sessions are deactivated.
type SessionTerminatedEvent struct {
	EventID      string
	UserID       string
	Count        int
	Reason       string
	TerminatedAt time.Time
}

// LoginBlockedEvent is published when admission denies an attempt outright.
type LoginBlockedEvent struct {
	EventID   string
	UserID    string
	DeviceID  string
	Status    LoginStatus
	BlockedAt time.Time
}

// ChallengeOpenedEvent is published when an OTP challenge is opened or replaced.
type ChallengeOpenedEvent struct {
	EventID   string
	UserID    string
	DeviceID  string
	Verdict   RiskVerdict
	OpenedAt  time.Time
	ExpiresAt time.Time
}

// ChallengeRedeemedEvent is published when a challenge is redeemed successfully.
type ChallengeRedeemedEvent struct {
	EventID    string
	UserID     string
	DeviceID   string
	RedeemedAt time.Time
}
