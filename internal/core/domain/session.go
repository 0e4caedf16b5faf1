package domain

import "time"

// Session represents a persisted login session bound to a device.
type Session struct {
	ID              string
	UserID          string
	DeviceID        string
	IPAddress       *string
	Country         *string
	UserAgent       *string
	LoginTime       time.Time
	LastActive      time.Time
	Active          bool
	TerminatedAt    *time.Time
	TerminateReason *string
}

// Touch updates last-active metadata for the session when activity occurs.
func (s *Session) Touch(at time.Time, ip *string) {
	s.LastActive = at
	if ip != nil {
		ipCopy := *ip
		s.IPAddress = &ipCopy
	}
}

// Terminate marks the session inactive. Returns true when the session changed state.
func (s *Session) Terminate(at time.Time, reason string) bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.TerminatedAt = &at
	s.TerminateReason = &reason
	return true
}

// SessionFilter narrows admin session listings.
type SessionFilter struct {
	UserID     string
	DeviceID   string
	ActiveOnly bool
	Limit      int
}

// SessionActionResult reports the outcome of a bulk session mutation.
type SessionActionResult struct {
	Terminated int
}
