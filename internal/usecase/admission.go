package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

// ErrAdmissionUnavailable indicates the registry or a collaborator could not
// be consulted. Admission fails closed: infrastructure failure is never
// converted into a policy verdict, and never into an allow.
var ErrAdmissionUnavailable = errors.New("admission unavailable")

const (
	// DefaultMaxActiveSessions is the policy cap on concurrent sessions.
	DefaultMaxActiveSessions = 1

	terminateReasonOthers = "user_terminated_other_devices"
)

// AdmissionConfig tunes the admission policy.
type AdmissionConfig struct {
	MaxActiveSessions   int
	RecentCountryWindow int
}

func (c AdmissionConfig) withDefaults() AdmissionConfig {
	if c.MaxActiveSessions <= 0 {
		c.MaxActiveSessions = DefaultMaxActiveSessions
	}
	if c.RecentCountryWindow <= 0 {
		c.RecentCountryWindow = DefaultRecentCountryWindow
	}
	return c
}

// AdmissionService is the login admission state machine. It consults the
// session registry and risk classifier, escalates through the challenge
// coordinator, and is the only writer of new sessions.
type AdmissionService struct {
	registry   port.SessionRegistry
	history    port.LoginHistoryRepository
	classifier *RiskClassifier
	challenges *ChallengeService
	events     port.EventPublisher
	logger     *zap.Logger
	cfg        AdmissionConfig
	now        func() time.Time
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(
	registry port.SessionRegistry,
	history port.LoginHistoryRepository,
	classifier *RiskClassifier,
	challenges *ChallengeService,
	events port.EventPublisher,
	logger *zap.Logger,
	cfg AdmissionConfig,
) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		registry:   registry,
		history:    history,
		classifier: classifier,
		challenges: challenges,
		events:     events,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *AdmissionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ValidateLogin runs one admission evaluation. Capacity is checked before
// risk: there is no point challenging a device that cannot be admitted
// anyway. Policy verdicts come back as results, never as errors.
func (s *AdmissionService) ValidateLogin(ctx context.Context, attempt domain.LoginAttempt) (domain.LoginValidationResult, error) {
	if attempt.UserID == "" {
		return domain.LoginValidationResult{}, fmt.Errorf("user id is required")
	}
	if attempt.DeviceID == "" {
		return domain.LoginValidationResult{}, fmt.Errorf("device id is required")
	}

	// A device already holding the active session is not a new admission;
	// refresh it instead of consuming a second slot.
	existing, err := s.registry.FindActiveByDevice(ctx, attempt.UserID, attempt.DeviceID)
	switch {
	case err == nil:
		if touchErr := s.registry.Touch(ctx, existing.ID, optional(attempt.IPAddress)); touchErr != nil {
			s.logger.Warn("touch existing session", zap.Error(touchErr))
		}
		return domain.LoginValidationResult{
			Status:    domain.LoginStatusOK,
			Message:   "session already active on this device",
			SessionID: existing.ID,
		}, nil
	case errors.Is(err, repository.ErrNotFound):
		// New admission; evaluation continues below.
	default:
		return domain.LoginValidationResult{}, s.unavailable("find session by device", err)
	}

	count, err := s.registry.CountActive(ctx, attempt.UserID)
	if err != nil {
		return domain.LoginValidationResult{}, s.unavailable("count active sessions", err)
	}
	if count >= s.cfg.MaxActiveSessions {
		s.publishBlocked(ctx, attempt, domain.LoginStatusTooManyDevices)
		return domain.LoginValidationResult{
			Status:  domain.LoginStatusTooManyDevices,
			Message: "maximum number of active devices reached",
		}, nil
	}

	if attempt.OtpProof != "" {
		ok, err := s.challenges.ConsumeProof(ctx, attempt.UserID, attempt.DeviceID, attempt.OtpProof)
		if err != nil {
			return domain.LoginValidationResult{}, s.unavailable("consume otp proof", err)
		}
		if ok {
			return s.admit(ctx, attempt, true)
		}
		// A stale or foreign proof is treated as absent; classification
		// decides what happens next.
	}

	history, err := s.history.History(ctx, attempt.UserID, attempt.DeviceID, s.cfg.RecentCountryWindow)
	if err != nil {
		return domain.LoginValidationResult{}, s.unavailable("load login history", err)
	}

	verdict := s.classifier.Classify(attempt, history)
	if verdict == domain.RiskNone {
		return s.admit(ctx, attempt, false)
	}

	// The caller already holds a code: point them back at the live challenge
	// instead of minting (and re-sending) a new one.
	if attempt.HasOtpCode {
		live, liveErr := s.challenges.Live(ctx, attempt.UserID, attempt.DeviceID)
		if liveErr == nil {
			return domain.LoginValidationResult{
				Status:      domain.LoginStatusOtpRequired,
				Message:     "enter the one-time code to continue",
				RequiresOtp: true,
				SessionID:   live.Token,
			}, nil
		}
		if !errors.Is(liveErr, ErrChallengeNotFound) && !errors.Is(liveErr, ErrChallengeExpired) {
			return domain.LoginValidationResult{}, s.unavailable("fetch live challenge", liveErr)
		}
	}

	challenge, err := s.challenges.Open(ctx, attempt, verdict)
	if err != nil {
		return domain.LoginValidationResult{}, s.unavailable("open challenge", err)
	}

	result := domain.LoginValidationResult{
		RequiresOtp: true,
		SessionID:   challenge.Token,
	}
	switch verdict {
	case domain.RiskNewDevice:
		result.Status = domain.LoginStatusNewDevice
		result.Message = "unrecognized device, one-time code sent"
	case domain.RiskSuspiciousLocation:
		result.Status = domain.LoginStatusSuspiciousLocation
		result.Message = "unusual location, one-time code sent"
	}
	return result, nil
}

// ConfirmOtp redeems the challenge and re-enters validation with the proof
// attached. Challenge errors surface to the caller unchanged.
func (s *AdmissionService) ConfirmOtp(ctx context.Context, challengeToken, code string) (domain.LoginValidationResult, error) {
	if challengeToken == "" {
		return domain.LoginValidationResult{}, fmt.Errorf("challenge token is required")
	}
	if code == "" {
		return domain.LoginValidationResult{}, fmt.Errorf("code is required")
	}

	attempt, err := s.challenges.Redeem(ctx, challengeToken, code)
	if err != nil {
		return domain.LoginValidationResult{}, err
	}

	return s.ValidateLogin(ctx, attempt)
}

// ResendOtp re-dispatches a code for the live challenge of the pair.
func (s *AdmissionService) ResendOtp(ctx context.Context, userID, deviceID string) (*domain.OtpChallenge, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("user id and device id are required")
	}
	return s.challenges.Resend(ctx, userID, deviceID)
}

// admit commits the session. The registry re-checks the cap inside its own
// atomic unit, so losing a race here is reported as capacity, not as an error.
func (s *AdmissionService) admit(ctx context.Context, attempt domain.LoginAttempt, challenged bool) (domain.LoginValidationResult, error) {
	now := s.now().UTC()
	session := domain.Session{
		ID:         uuid.NewString(),
		UserID:     attempt.UserID,
		DeviceID:   attempt.DeviceID,
		IPAddress:  optional(attempt.IPAddress),
		Country:    optional(attempt.Country),
		UserAgent:  optional(attempt.UserAgent),
		LoginTime:  now,
		LastActive: now,
		Active:     true,
	}

	if err := s.registry.Admit(ctx, session); err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			s.publishBlocked(ctx, attempt, domain.LoginStatusTooManyDevices)
			return domain.LoginValidationResult{
				Status:  domain.LoginStatusTooManyDevices,
				Message: "maximum number of active devices reached",
			}, nil
		}
		return domain.LoginValidationResult{}, s.unavailable("admit session", err)
	}

	record := port.LoginRecord{
		UserID:      attempt.UserID,
		DeviceID:    attempt.DeviceID,
		IPAddress:   session.IPAddress,
		Country:     session.Country,
		Fingerprint: attempt.Fingerprint,
		OccurredAt:  now,
	}
	if err := s.history.Record(ctx, record); err != nil {
		// The session is committed; a lost history row only weakens the next
		// classification, it does not unwind the admission.
		s.logger.Warn("record login history", zap.Error(err))
	}

	if s.events != nil {
		event := domain.SessionAdmittedEvent{
			SessionID:  session.ID,
			UserID:     session.UserID,
			DeviceID:   session.DeviceID,
			Country:    session.Country,
			AdmittedAt: now,
			Challenged: challenged,
		}
		if err := s.events.PublishSessionAdmitted(ctx, event); err != nil {
			s.logger.Warn("publish session admitted event", zap.Error(err))
		}
	}

	return domain.LoginValidationResult{
		Status:    domain.LoginStatusOK,
		Message:   "session created",
		SessionID: session.ID,
	}, nil
}

func (s *AdmissionService) publishBlocked(ctx context.Context, attempt domain.LoginAttempt, status domain.LoginStatus) {
	if s.events == nil {
		return
	}
	event := domain.LoginBlockedEvent{
		UserID:    attempt.UserID,
		DeviceID:  attempt.DeviceID,
		Status:    status,
		BlockedAt: s.now().UTC(),
	}
	if err := s.events.PublishLoginBlocked(ctx, event); err != nil {
		s.logger.Warn("publish login blocked event", zap.Error(err))
	}
}

func (s *AdmissionService) unavailable(op string, err error) error {
	s.logger.Error("admission infrastructure failure", zap.String("op", op), zap.Error(err))
	return errors.Join(ErrAdmissionUnavailable, fmt.Errorf("%s: %w", op, err))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
