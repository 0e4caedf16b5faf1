package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionAdmitted logs guard.session.admitted events.
func (p *StubPublisher) PublishSessionAdmitted(_ context.Context, event domain.SessionAdmittedEvent) error {
	payload := map[string]any{
		"session_id":  event.SessionID,
		"user_id":     event.UserID,
		"device_id":   event.DeviceID,
		"country":     event.Country,
		"admitted_at": event.AdmittedAt,
		"challenged":  event.Challenged,
	}
	p.logEvent("guard.session.admitted", event.UserID, event.AdmittedAt, payload)
	return nil
}

// PublishSessionTerminated logs guard.session.terminated events.
func (p *StubPublisher) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"count":         event.Count,
		"reason":        event.Reason,
		"terminated_at": event.TerminatedAt,
	}
	p.logEvent("guard.session.terminated", event.UserID, event.TerminatedAt, payload)
	return nil
}

// PublishLoginBlocked logs guard.login.blocked events.
func (p *StubPublisher) PublishLoginBlocked(_ context.Context, event domain.LoginBlockedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"device_id":  event.DeviceID,
		"status":     event.Status,
		"blocked_at": event.BlockedAt,
	}
	p.logEvent("guard.login.blocked", event.UserID, event.BlockedAt, payload)
	return nil
}

// PublishChallengeOpened logs guard.otp.challenge.opened events.
func (p *StubPublisher) PublishChallengeOpened(_ context.Context, event domain.ChallengeOpenedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"device_id":  event.DeviceID,
		"verdict":    event.Verdict,
		"opened_at":  event.OpenedAt,
		"expires_at": event.ExpiresAt,
	}
	p.logEvent("guard.otp.challenge.opened", event.UserID, event.OpenedAt, payload)
	return nil
}

// PublishChallengeRedeemed logs guard.otp.challenge.redeemed events.
func (p *StubPublisher) PublishChallengeRedeemed(_ context.Context, event domain.ChallengeRedeemedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"device_id":   event.DeviceID,
		"redeemed_at": event.RedeemedAt,
	}
	p.logEvent("guard.otp.challenge.redeemed", event.UserID, event.RedeemedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
