package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/repository"
)

type admissionFixture struct {
	registry   *fakeRegistry
	history    *fakeHistory
	challenges *fakeChallengeStore
	codes      *fakeCodeStore
	dispatcher *captureDispatcher
	events     *captureEvents
	service    *AdmissionService
}

func newAdmissionFixture(t *testing.T, maxActive int, baseline domain.LoginHistory) *admissionFixture {
	t.Helper()

	registry := newFakeRegistry(maxActive)
	history := &fakeHistory{baseline: baseline}
	challenges := newFakeChallengeStore()
	codes := newFakeCodeStore()
	dispatcher := &captureDispatcher{}
	events := &captureEvents{}

	challengeService := NewChallengeService(challenges, codes, dispatcher, events, nil, ChallengeConfig{})
	classifier := NewRiskClassifier(0)
	service := NewAdmissionService(registry, history, classifier, challengeService, events, nil, AdmissionConfig{
		MaxActiveSessions: maxActive,
	})

	return &admissionFixture{
		registry:   registry,
		history:    history,
		challenges: challenges,
		codes:      codes,
		dispatcher: dispatcher,
		events:     events,
		service:    service,
	}
}

func knownHistory(devices ...string) domain.LoginHistory {
	prior := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		prior[d] = struct{}{}
	}
	return domain.LoginHistory{
		PriorDevices:    prior,
		RecentCountries: []string{"DE"},
	}
}

func TestValidateLoginFirstLoginAdmits(t *testing.T) {
	fx := newAdmissionFixture(t, 1, domain.LoginHistory{})

	attempt := domain.LoginAttempt{
		UserID:   "user-1",
		DeviceID: "device-1",
		Country:  "DE",
	}

	result, err := fx.service.ValidateLogin(context.Background(), attempt)
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusOK {
		t.Fatalf("expected OK, got %s", result.Status)
	}
	if result.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if result.RequiresOtp {
		t.Fatal("first login must not require otp")
	}

	count, _ := fx.registry.CountActive(context.Background(), "user-1")
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}

	if len(fx.history.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(fx.history.records))
	}
	if len(fx.events.admitted) != 1 {
		t.Fatalf("expected 1 admitted event, got %d", len(fx.events.admitted))
	}
	if fx.events.admitted[0].Challenged {
		t.Fatal("unchallenged admission must not be flagged as challenged")
	}
}

func TestValidateLoginSameDeviceReusesSession(t *testing.T) {
	fx := newAdmissionFixture(t, 1, knownHistory("device-1"))

	attempt := domain.LoginAttempt{UserID: "user-1", DeviceID: "device-1", Country: "DE"}

	first, err := fx.service.ValidateLogin(context.Background(), attempt)
	if err != nil {
		t.Fatalf("first ValidateLogin returned error: %v", err)
	}

	second, err := fx.service.ValidateLogin(context.Background(), attempt)
	if err != nil {
		t.Fatalf("second ValidateLogin returned error: %v", err)
	}

	if second.Status != domain.LoginStatusOK {
		t.Fatalf("expected OK, got %s", second.Status)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("expected the same session id, got %s and %s", first.SessionID, second.SessionID)
	}

	count, _ := fx.registry.CountActive(context.Background(), "user-1")
	if count != 1 {
		t.Fatalf("repeated login must not consume a second slot, got %d", count)
	}
}

func TestValidateLoginTooManyDevices(t *testing.T) {
	fx := newAdmissionFixture(t, 1, knownHistory("device-1"))

	if _, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-1", Country: "DE",
	}); err != nil {
		t.Fatalf("seed login returned error: %v", err)
	}

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusTooManyDevices {
		t.Fatalf("expected TOO_MANY_DEVICES, got %s", result.Status)
	}
	if result.RequiresOtp {
		t.Fatal("capacity verdict must not open a challenge")
	}
	if fx.dispatcher.count() != 0 {
		t.Fatal("no code should be dispatched on capacity verdict")
	}
	if len(fx.events.blocked) != 1 {
		t.Fatalf("expected 1 blocked event, got %d", len(fx.events.blocked))
	}
}

func TestValidateLoginNewDeviceOpensChallenge(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusNewDevice {
		t.Fatalf("expected NEW_DEVICE, got %s", result.Status)
	}
	if !result.RequiresOtp || result.SessionID == "" {
		t.Fatalf("expected challenge token, got %+v", result)
	}
	if fx.dispatcher.count() != 1 {
		t.Fatalf("expected 1 dispatched code, got %d", fx.dispatcher.count())
	}
	if len(fx.events.opened) != 1 {
		t.Fatalf("expected 1 opened event, got %d", len(fx.events.opened))
	}

	count, _ := fx.registry.CountActive(context.Background(), "user-1")
	if count != 0 {
		t.Fatalf("challenged attempt must not create a session, got %d", count)
	}
}

func TestValidateLoginSuspiciousLocation(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-1", Country: "BR",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusSuspiciousLocation {
		t.Fatalf("expected SUSPICIOUS_LOCATION, got %s", result.Status)
	}
	if !result.RequiresOtp {
		t.Fatal("expected a challenge")
	}
}

func TestValidateLoginDeviceAnomalyTakesPrecedence(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "BR",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusNewDevice {
		t.Fatalf("expected NEW_DEVICE to win over location, got %s", result.Status)
	}
}

func TestConfirmOtpCompletesAdmission(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	pending, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	result, err := fx.service.ConfirmOtp(context.Background(), pending.SessionID, fx.dispatcher.last())
	if err != nil {
		t.Fatalf("ConfirmOtp returned error: %v", err)
	}

	if result.Status != domain.LoginStatusOK {
		t.Fatalf("expected OK after confirmation, got %s", result.Status)
	}
	if result.SessionID == "" {
		t.Fatal("expected a session id after confirmation")
	}

	if len(fx.events.redeemed) != 1 {
		t.Fatalf("expected 1 redeemed event, got %d", len(fx.events.redeemed))
	}
	if len(fx.events.admitted) != 1 || !fx.events.admitted[0].Challenged {
		t.Fatal("expected a challenged admission event")
	}

	// The challenge is single use.
	if _, err := fx.service.ConfirmOtp(context.Background(), pending.SessionID, fx.dispatcher.last()); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on reuse, got %v", err)
	}
}

func TestConfirmOtpWrongCode(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	pending, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if _, err := fx.service.ConfirmOtp(context.Background(), pending.SessionID, "000000"); !errors.Is(err, ErrOtpCodeMismatch) {
		t.Fatalf("expected ErrOtpCodeMismatch, got %v", err)
	}

	// The right code still works after a bad guess.
	result, err := fx.service.ConfirmOtp(context.Background(), pending.SessionID, fx.dispatcher.last())
	if err != nil {
		t.Fatalf("ConfirmOtp returned error: %v", err)
	}
	if result.Status != domain.LoginStatusOK {
		t.Fatalf("expected OK, got %s", result.Status)
	}
}

func TestConfirmOtpAttemptsExceeded(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	pending, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	var lastErr error
	for i := 0; i < DefaultOtpMaxAttempts; i++ {
		_, lastErr = fx.service.ConfirmOtp(context.Background(), pending.SessionID, "000000")
	}

	if !errors.Is(lastErr, ErrOtpAttemptsExceeded) {
		t.Fatalf("expected ErrOtpAttemptsExceeded, got %v", lastErr)
	}

	// The challenge is dead; even the right code is refused now.
	if _, err := fx.service.ConfirmOtp(context.Background(), pending.SessionID, fx.dispatcher.last()); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after kill, got %v", err)
	}
}

func TestValidateLoginPromptOnlyReturnsLiveChallenge(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	pending, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	prompt, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE", HasOtpCode: true,
	})
	if err != nil {
		t.Fatalf("prompt ValidateLogin returned error: %v", err)
	}

	if prompt.Status != domain.LoginStatusOtpRequired {
		t.Fatalf("expected OTP_REQUIRED, got %s", prompt.Status)
	}
	if prompt.SessionID != pending.SessionID {
		t.Fatal("prompt must point back at the live challenge, not mint a new one")
	}
	if fx.dispatcher.count() != 1 {
		t.Fatalf("prompt must not re-dispatch a code, got %d dispatches", fx.dispatcher.count())
	}
}

func TestValidateLoginFailsClosed(t *testing.T) {
	fx := newAdmissionFixture(t, 1, domain.LoginHistory{})
	fx.registry.countErr = errors.New("connection reset")

	_, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-1",
	})
	if !errors.Is(err, ErrAdmissionUnavailable) {
		t.Fatalf("expected ErrAdmissionUnavailable, got %v", err)
	}
}

func TestValidateLoginStaleProofFallsThrough(t *testing.T) {
	fx := newAdmissionFixture(t, 2, knownHistory("device-1"))

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-2", Country: "DE", OtpProof: "stale-proof",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}

	if result.Status != domain.LoginStatusNewDevice {
		t.Fatalf("stale proof must fall back to classification, got %s", result.Status)
	}
}

func TestConcurrentLoginsRespectCap(t *testing.T) {
	fx := newAdmissionFixture(t, 1, domain.LoginHistory{})

	const attempts = 8
	results := make([]domain.LoginValidationResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
				UserID:   "user-1",
				DeviceID: "device-" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for i := 0; i < attempts; i++ {
		if errs[i] != nil {
			t.Fatalf("attempt %d returned error: %v", i, errs[i])
		}
		switch results[i].Status {
		case domain.LoginStatusOK:
			admitted++
		case domain.LoginStatusTooManyDevices:
		default:
			t.Fatalf("unexpected status %s", results[i].Status)
		}
	}

	if admitted != 1 {
		t.Fatalf("expected exactly 1 admission, got %d", admitted)
	}

	count, _ := fx.registry.CountActive(context.Background(), "user-1")
	if count != 1 {
		t.Fatalf("expected 1 active session, got %d", count)
	}
}

func TestAdmitCapacityRaceReportsTooManyDevices(t *testing.T) {
	fx := newAdmissionFixture(t, 1, domain.LoginHistory{})

	// Another admission lands between the pre-check and the atomic admit.
	fx.registry.admitErr = repository.ErrCapacityExceeded

	result, err := fx.service.ValidateLogin(context.Background(), domain.LoginAttempt{
		UserID: "user-1", DeviceID: "device-1",
	})
	if err != nil {
		t.Fatalf("ValidateLogin returned error: %v", err)
	}
	if result.Status != domain.LoginStatusTooManyDevices {
		t.Fatalf("expected TOO_MANY_DEVICES, got %s", result.Status)
	}
	if len(fx.events.blocked) != 1 {
		t.Fatalf("expected 1 blocked event, got %d", len(fx.events.blocked))
	}
}
