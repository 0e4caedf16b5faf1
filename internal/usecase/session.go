package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

const (
	terminateReasonUserRequest = "user_requested"
	defaultListLimit           = 100
)

// SessionService covers the session read and termination paths outside of
// admission: admin listings, activity touches, and explicit terminations.
type SessionService struct {
	registry port.SessionRegistry
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(registry port.SessionRegistry, events port.EventPublisher, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		registry: registry,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// ListSessions returns sessions matching the filter. Read only.
func (s *SessionService) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	sessions, err := s.registry.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// TerminateOthers deactivates every other active session for the user.
// Idempotent: repeated calls succeed with zero terminations.
func (s *SessionService) TerminateOthers(ctx context.Context, userID, keepSessionID string) (domain.SessionActionResult, error) {
	if userID == "" {
		return domain.SessionActionResult{}, fmt.Errorf("user id is required")
	}

	count, err := s.registry.TerminateOthers(ctx, userID, keepSessionID, terminateReasonOthers)
	if err != nil {
		return domain.SessionActionResult{}, fmt.Errorf("terminate other sessions: %w", err)
	}

	if count > 0 && s.events != nil {
		event := domain.SessionTerminatedEvent{
			UserID:       userID,
			Count:        count,
			Reason:       terminateReasonOthers,
			TerminatedAt: s.now().UTC(),
		}
		if err := s.events.PublishSessionTerminated(ctx, event); err != nil {
			s.logger.Warn("publish session terminated event", zap.Error(err))
		}
	}

	return domain.SessionActionResult{Terminated: count}, nil
}

// Terminate deactivates a single session by identifier.
func (s *SessionService) Terminate(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if reason == "" {
		reason = terminateReasonUserRequest
	}

	if err := s.registry.Terminate(ctx, sessionID, reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("terminate session: %w", err)
	}

	if s.events != nil {
		event := domain.SessionTerminatedEvent{
			Count:        1,
			Reason:       reason,
			TerminatedAt: s.now().UTC(),
		}
		if err := s.events.PublishSessionTerminated(ctx, event); err != nil {
			s.logger.Warn("publish session terminated event", zap.Error(err))
		}
	}
	return nil
}

// Touch records activity on a session.
func (s *SessionService) Touch(ctx context.Context, sessionID string, ip *string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	if err := s.registry.Touch(ctx, sessionID, ip); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
