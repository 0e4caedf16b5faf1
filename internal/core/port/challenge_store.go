package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-guard/internal/core/domain"
)

// ChallengeStore tracks pending OTP challenges. One live challenge per
// (user, device); storage may be volatile since challenges are short-lived
// and safely re-issuable.
type ChallengeStore interface {
	// Put stores the challenge, replacing any live challenge for the same
	// (user, device) pair.
	Put(ctx context.Context, challenge domain.OtpChallenge, ttl time.Duration) error
	// GetByToken resolves a challenge by its token.
	GetByToken(ctx context.Context, token string) (*domain.OtpChallenge, error)
	// GetByDevice resolves the live challenge for a (user, device) pair.
	GetByDevice(ctx context.Context, userID, deviceID string) (*domain.OtpChallenge, error)
	// Delete removes the challenge for the (user, device) pair.
	Delete(ctx context.Context, userID, deviceID string) error
	// PutProof records a single-use redemption proof for the pair.
	PutProof(ctx context.Context, userID, deviceID, proof string, ttl time.Duration) error
	// ConsumeProof atomically checks and deletes the proof, reporting whether
	// it matched.
	ConsumeProof(ctx context.Context, userID, deviceID, proof string) (bool, error)
}

// OtpCode is a stored one-time code record.
type OtpCode struct {
	Code      string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// OtpCodeStore persists hashed one-time codes keyed by purpose and identifier.
type OtpCodeStore interface {
	Store(ctx context.Context, purpose, identifier, code string, ttl time.Duration) (*OtpCode, error)
	Fetch(ctx context.Context, purpose, identifier string) (*OtpCode, error)
	IncrementAttempts(ctx context.Context, purpose, identifier string) (int, error)
	Delete(ctx context.Context, purpose, identifier string) error
}

// CodeDispatcher hands a minted one-time code to the external delivery
// transport (email, SMS). Delivery itself is outside the engine.
type CodeDispatcher interface {
	Dispatch(ctx context.Context, userID, deviceID, code string) error
}
