package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// FingerprintPayload carries the client-observable device traits.
type FingerprintPayload struct {
	UserAgent      string `json:"user_agent"`
	Platform       string `json:"platform"`
	ScreenGeometry string `json:"screen_geometry"`
	TimezoneOffset int    `json:"timezone_offset"`
	Language       string `json:"language"`
}

// LoginValidateRequest defines the payload for the login validation endpoint.
type LoginValidateRequest struct {
	UserID      string             `json:"user_id" binding:"required"`
	DeviceID    string             `json:"device_id"`
	Fingerprint FingerprintPayload `json:"fingerprint"`
	IPAddress   string             `json:"ip_address"`
	Country     string             `json:"country"`
	UserAgent   string             `json:"user_agent"`
	HasOtpCode  bool               `json:"has_otp_code"`
}

// LoginValidateResponse describes the admission verdict for a login attempt.
type LoginValidateResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	RequiresOtp    bool   `json:"requires_otp"`
	ChallengeToken string `json:"challenge_token,omitempty"`
}

// OtpConfirmRequest carries a challenge redemption payload.
type OtpConfirmRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"required"`
}

// OtpResendRequest asks for a fresh code on the live challenge.
type OtpResendRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
}

// OtpResendResponse confirms a code was re-dispatched.
type OtpResendResponse struct {
	Message        string    `json:"message"`
	ChallengeToken string    `json:"challenge_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SessionPayload describes a session view in API responses.
type SessionPayload struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	DeviceID        string     `json:"device_id"`
	IPAddress       *string    `json:"ip_address,omitempty"`
	Country         *string    `json:"country,omitempty"`
	UserAgent       *string    `json:"user_agent,omitempty"`
	LoginTime       time.Time  `json:"login_time"`
	LastActive      time.Time  `json:"last_active"`
	Active          bool       `json:"active"`
	TerminatedAt    *time.Time `json:"terminated_at,omitempty"`
	TerminateReason *string    `json:"terminate_reason,omitempty"`
}

// SessionListResponse wraps a list of sessions for a user.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionBulkTerminateResponse summarises bulk termination operations.
type SessionBulkTerminateResponse struct {
	TerminatedCount int `json:"terminated_count"`
}

// SessionTouchRequest carries optional activity metadata.
type SessionTouchRequest struct {
	IPAddress string `json:"ip_address"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newFingerprint converts the API payload into the domain representation.
func newFingerprint(p FingerprintPayload) domain.Fingerprint {
	return domain.Fingerprint{
		UserAgent:      p.UserAgent,
		Platform:       p.Platform,
		ScreenGeometry: p.ScreenGeometry,
		TimezoneOffset: p.TimezoneOffset,
		Language:       p.Language,
	}
}

// newSessionPayload converts a domain session to an API session payload.
func newSessionPayload(session domain.Session) SessionPayload {
	payload := SessionPayload{
		ID:         session.ID,
		UserID:     session.UserID,
		DeviceID:   session.DeviceID,
		LoginTime:  session.LoginTime,
		LastActive: session.LastActive,
		Active:     session.Active,
	}

	if session.IPAddress != nil {
		payload.IPAddress = session.IPAddress
	}
	if session.Country != nil {
		payload.Country = session.Country
	}
	if session.UserAgent != nil {
		payload.UserAgent = session.UserAgent
	}
	if session.TerminatedAt != nil {
		payload.TerminatedAt = session.TerminatedAt
	}
	if session.TerminateReason != nil {
		payload.TerminateReason = session.TerminateReason
	}

	return payload
}

// newLoginValidateResponse maps an admission result onto the wire shape. The
// result's session field doubles as the challenge token while an OTP round
// trip is pending.
func newLoginValidateResponse(result domain.LoginValidationResult, deviceID string) LoginValidateResponse {
	resp := LoginValidateResponse{
		Status:      string(result.Status),
		Message:     result.Message,
		DeviceID:    deviceID,
		RequiresOtp: result.RequiresOtp,
	}

	if result.RequiresOtp || result.Status == domain.LoginStatusOtpRequired {
		resp.ChallengeToken = result.SessionID
	} else {
		resp.SessionID = result.SessionID
	}

	return resp
}
