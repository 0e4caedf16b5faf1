package port

import (
	"context"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

// EventPublisher emits admission lifecycle events for downstream consumers.
// Publishing is best effort; admission never fails because an event could not
// be emitted.
type EventPublisher interface {
	PublishSessionAdmitted(ctx context.Context, event domain.SessionAdmittedEvent) error
	PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error
	PublishLoginBlocked(ctx context.Context, event domain.LoginBlockedEvent) error
	PublishChallengeOpened(ctx context.Context, event domain.ChallengeOpenedEvent) error
	PublishChallengeRedeemed(ctx context.Context, event domain.ChallengeRedeemedEvent) error
}
