package port

import (
	"context"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

// SessionRegistry is the authoritative store of sessions per account. All
// mutating operations for one user are linearizable with respect to each
// other; operations on different users proceed independently.
type SessionRegistry interface {
	// CountActive returns the number of active sessions for the user.
	CountActive(ctx context.Context, userID string) (int, error)
	// FindActiveByDevice returns the active session held by the device, if any.
	FindActiveByDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)
	// Admit re-checks the active-session cap and persists the session in one
	// atomic unit. Fails with repository.ErrCapacityExceeded when the cap
	// would be exceeded.
	Admit(ctx context.Context, session domain.Session) error
	// TerminateOthers deactivates every active session for the user except
	// keepSessionID. Idempotent; succeeds when nothing matches.
	TerminateOthers(ctx context.Context, userID, keepSessionID, reason string) (int, error)
	// Terminate deactivates a single session.
	Terminate(ctx context.Context, sessionID, reason string) error
	// Touch updates last-active metadata for the session.
	Touch(ctx context.Context, sessionID string, ip *string) error
	// List is the admin read path; no side effects.
	List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
}
