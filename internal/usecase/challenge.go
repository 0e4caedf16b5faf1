package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/infra/security"
	"github.com/arklim/social-platform-guard/internal/repository"
)

var (
	// ErrChallengeNotFound indicates the token does not match a live challenge.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired indicates the challenge passed its deadline before redemption.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrOtpCodeMismatch indicates the supplied code does not match the stored one.
	ErrOtpCodeMismatch = errors.New("otp code mismatch")
	// ErrOtpAttemptsExceeded indicates the challenge was invalidated after too many bad codes.
	ErrOtpAttemptsExceeded = errors.New("otp attempts exceeded")
)

const (
	otpPurposeLogin = "login"

	challengeTokenBytes = 24
	proofTokenBytes     = 24

	// DefaultOtpTTL bounds how long a challenge stays redeemable.
	DefaultOtpTTL = 10 * time.Minute
	// DefaultProofTTL bounds the window between redeeming a code and the
	// follow-up validation that consumes the proof.
	DefaultProofTTL = 2 * time.Minute
	// DefaultOtpMaxAttempts caps code mismatches before the challenge dies.
	DefaultOtpMaxAttempts = 5
	// DefaultOtpCodeLength is the number of digits in a minted code.
	DefaultOtpCodeLength = 6
)

// ChallengeConfig tunes challenge lifecycle parameters.
type ChallengeConfig struct {
	TTL         time.Duration
	ProofTTL    time.Duration
	MaxAttempts int
	CodeLength  int
}

func (c ChallengeConfig) withDefaults() ChallengeConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultOtpTTL
	}
	if c.ProofTTL <= 0 {
		c.ProofTTL = DefaultProofTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultOtpMaxAttempts
	}
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultOtpCodeLength
	}
	return c
}

// ChallengeService coordinates OTP challenge lifecycle: opening, code
// dispatch, redemption, and the single-use proof that lets admission resume.
type ChallengeService struct {
	challenges port.ChallengeStore
	codes      port.OtpCodeStore
	dispatcher port.CodeDispatcher
	events     port.EventPublisher
	logger     *zap.Logger
	cfg        ChallengeConfig
	now        func() time.Time
}

// NewChallengeService constructs a ChallengeService.
func NewChallengeService(
	challenges port.ChallengeStore,
	codes port.OtpCodeStore,
	dispatcher port.CodeDispatcher,
	events port.EventPublisher,
	logger *zap.Logger,
	cfg ChallengeConfig,
) *ChallengeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeService{
		challenges: challenges,
		codes:      codes,
		dispatcher: dispatcher,
		events:     events,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *ChallengeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Open mints a challenge for the attempt, replacing any live challenge for the
// same (user, device), stores a hashed code, and hands the code to the
// dispatcher.
func (s *ChallengeService) Open(ctx context.Context, attempt domain.LoginAttempt, verdict domain.RiskVerdict) (*domain.OtpChallenge, error) {
	if attempt.UserID == "" || attempt.DeviceID == "" {
		return nil, fmt.Errorf("user id and device id are required")
	}

	token, err := security.GenerateSecureToken(challengeTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate challenge token: %w", err)
	}

	now := s.now().UTC()
	stored := attempt
	stored.OtpProof = ""
	stored.HasOtpCode = false

	challenge := domain.OtpChallenge{
		Token:     token,
		UserID:    attempt.UserID,
		DeviceID:  attempt.DeviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		Attempt:   stored,
	}

	if err := s.challenges.Put(ctx, challenge, s.cfg.TTL); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	if err := s.issueCode(ctx, challenge); err != nil {
		return nil, err
	}

	if s.events != nil {
		event := domain.ChallengeOpenedEvent{
			UserID:    challenge.UserID,
			DeviceID:  challenge.DeviceID,
			Verdict:   verdict,
			OpenedAt:  now,
			ExpiresAt: challenge.ExpiresAt,
		}
		if err := s.events.PublishChallengeOpened(ctx, event); err != nil {
			s.logger.Warn("publish challenge opened event", zap.Error(err))
		}
	}

	return &challenge, nil
}

// Resend mints and dispatches a fresh code for the live challenge without
// replacing the challenge itself.
func (s *ChallengeService) Resend(ctx context.Context, userID, deviceID string) (*domain.OtpChallenge, error) {
	challenge, err := s.Live(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.issueCode(ctx, *challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// Live returns the current challenge for the pair, lazily purging it when
// expired.
func (s *ChallengeService) Live(ctx context.Context, userID, deviceID string) (*domain.OtpChallenge, error) {
	challenge, err := s.challenges.GetByDevice(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("fetch challenge: %w", err)
	}
	if challenge.Expired(s.now().UTC()) {
		s.purge(ctx, challenge.UserID, challenge.DeviceID)
		return nil, ErrChallengeExpired
	}
	return challenge, nil
}

// Redeem verifies the code for the challenge behind the token. On success it
// deletes the challenge, records a single-use proof, and returns the stored
// attempt with the proof attached so admission can resume.
func (s *ChallengeService) Redeem(ctx context.Context, token, code string) (domain.LoginAttempt, error) {
	challenge, err := s.challenges.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.LoginAttempt{}, ErrChallengeNotFound
		}
		return domain.LoginAttempt{}, fmt.Errorf("fetch challenge: %w", err)
	}

	if challenge.Expired(s.now().UTC()) {
		s.purge(ctx, challenge.UserID, challenge.DeviceID)
		return domain.LoginAttempt{}, ErrChallengeExpired
	}

	identifier := codeIdentifier(challenge.UserID, challenge.DeviceID)
	record, err := s.codes.Fetch(ctx, otpPurposeLogin, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The code evaporated ahead of the challenge; the caller should
			// request a resend.
			return domain.LoginAttempt{}, ErrChallengeExpired
		}
		return domain.LoginAttempt{}, fmt.Errorf("fetch otp code: %w", err)
	}

	if record.Attempts >= s.cfg.MaxAttempts {
		s.purge(ctx, challenge.UserID, challenge.DeviceID)
		return domain.LoginAttempt{}, ErrOtpAttemptsExceeded
	}

	if !security.CodesEqual(code, record.Code) {
		attempts, incErr := s.codes.IncrementAttempts(ctx, otpPurposeLogin, identifier)
		if incErr != nil {
			s.logger.Warn("increment otp attempts", zap.Error(incErr))
		}
		if attempts >= s.cfg.MaxAttempts {
			s.purge(ctx, challenge.UserID, challenge.DeviceID)
			return domain.LoginAttempt{}, ErrOtpAttemptsExceeded
		}
		return domain.LoginAttempt{}, ErrOtpCodeMismatch
	}

	proof, err := security.GenerateSecureToken(proofTokenBytes)
	if err != nil {
		return domain.LoginAttempt{}, fmt.Errorf("generate proof token: %w", err)
	}
	if err := s.challenges.PutProof(ctx, challenge.UserID, challenge.DeviceID, proof, s.cfg.ProofTTL); err != nil {
		return domain.LoginAttempt{}, fmt.Errorf("store proof: %w", err)
	}

	// Single use: the challenge dies with its first successful redemption.
	s.purge(ctx, challenge.UserID, challenge.DeviceID)

	if s.events != nil {
		event := domain.ChallengeRedeemedEvent{
			UserID:     challenge.UserID,
			DeviceID:   challenge.DeviceID,
			RedeemedAt: s.now().UTC(),
		}
		if err := s.events.PublishChallengeRedeemed(ctx, event); err != nil {
			s.logger.Warn("publish challenge redeemed event", zap.Error(err))
		}
	}

	attempt := challenge.Attempt
	attempt.OtpProof = proof
	return attempt, nil
}

// ConsumeProof atomically checks and consumes a redemption proof.
func (s *ChallengeService) ConsumeProof(ctx context.Context, userID, deviceID, proof string) (bool, error) {
	return s.challenges.ConsumeProof(ctx, userID, deviceID, proof)
}

func (s *ChallengeService) issueCode(ctx context.Context, challenge domain.OtpChallenge) error {
	code, err := security.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("generate otp code: %w", err)
	}

	ttl := challenge.ExpiresAt.Sub(s.now().UTC())
	if ttl <= 0 {
		return ErrChallengeExpired
	}

	identifier := codeIdentifier(challenge.UserID, challenge.DeviceID)
	if _, err := s.codes.Store(ctx, otpPurposeLogin, identifier, security.HashCode(code), ttl); err != nil {
		return fmt.Errorf("store otp code: %w", err)
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, challenge.UserID, challenge.DeviceID, code); err != nil {
			return fmt.Errorf("dispatch otp code: %w", err)
		}
	}
	return nil
}

func (s *ChallengeService) purge(ctx context.Context, userID, deviceID string) {
	if err := s.challenges.Delete(ctx, userID, deviceID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("delete challenge", zap.Error(err))
	}
	if err := s.codes.Delete(ctx, otpPurposeLogin, codeIdentifier(userID, deviceID)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("delete otp code", zap.Error(err))
	}
}

func codeIdentifier(userID, deviceID string) string {
	return userID + ":" + deviceID
}
