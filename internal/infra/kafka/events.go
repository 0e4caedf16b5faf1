package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionAdmitted publishes guard.session.admitted events.
func (p *EventPublisher) PublishSessionAdmitted(ctx context.Context, event domain.SessionAdmittedEvent) error {
	payload := struct {
		SessionID  string    `json:"session_id"`
		UserID     string    `json:"user_id"`
		DeviceID   string    `json:"device_id"`
		Country    *string   `json:"country,omitempty"`
		AdmittedAt time.Time `json:"admitted_at"`
		Challenged bool      `json:"challenged"`
	}{
		SessionID:  event.SessionID,
		UserID:     event.UserID,
		DeviceID:   event.DeviceID,
		Country:    event.Country,
		AdmittedAt: event.AdmittedAt.UTC(),
		Challenged: event.Challenged,
	}

	return p.publish(ctx, event.EventID, "guard.session.admitted", event.UserID, event.AdmittedAt, payload)
}

// PublishSessionTerminated publishes guard.session.terminated events.
func (p *EventPublisher) PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error {
	payload := struct {
		UserID       string    `json:"user_id,omitempty"`
		Count        int       `json:"count"`
		Reason       string    `json:"reason"`
		TerminatedAt time.Time `json:"terminated_at"`
	}{
		UserID:       event.UserID,
		Count:        event.Count,
		Reason:       event.Reason,
		TerminatedAt: event.TerminatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "guard.session.terminated", event.UserID, event.TerminatedAt, payload)
}

// PublishLoginBlocked publishes guard.login.blocked events.
func (p *EventPublisher) PublishLoginBlocked(ctx context.Context, event domain.LoginBlockedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		DeviceID  string    `json:"device_id"`
		Status    string    `json:"status"`
		BlockedAt time.Time `json:"blocked_at"`
	}{
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		Status:    string(event.Status),
		BlockedAt: event.BlockedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "guard.login.blocked", event.UserID, event.BlockedAt, payload)
}

// PublishChallengeOpened publishes guard.otp.challenge.opened events.
func (p *EventPublisher) PublishChallengeOpened(ctx context.Context, event domain.ChallengeOpenedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		DeviceID  string    `json:"device_id"`
		Verdict   string    `json:"verdict"`
		OpenedAt  time.Time `json:"opened_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		UserID:    event.UserID,
		DeviceID:  event.DeviceID,
		Verdict:   string(event.Verdict),
		OpenedAt:  event.OpenedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "guard.otp.challenge.opened", event.UserID, event.OpenedAt, payload)
}

// PublishChallengeRedeemed publishes guard.otp.challenge.redeemed events.
func (p *EventPublisher) PublishChallengeRedeemed(ctx context.Context, event domain.ChallengeRedeemedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		DeviceID   string    `json:"device_id"`
		RedeemedAt time.Time `json:"redeemed_at"`
	}{
		UserID:     event.UserID,
		DeviceID:   event.DeviceID,
		RedeemedAt: event.RedeemedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "guard.otp.challenge.redeemed", event.UserID, event.RedeemedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
