package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

// fakeRegistry is an in-memory SessionRegistry. Admit re-checks the cap under
// the same lock that guards the store, mirroring the transactional registry.
type fakeRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	maxActive int

	findErr  error
	countErr error
	admitErr error
}

func newFakeRegistry(maxActive int) *fakeRegistry {
	return &fakeRegistry{
		sessions:  make(map[string]*domain.Session),
		maxActive: maxActive,
	}
}

func (r *fakeRegistry) CountActive(_ context.Context, userID string) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActiveLocked(userID), nil
}

func (r *fakeRegistry) countActiveLocked(userID string) int {
	count := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active {
			count++
		}
	}
	return count
}

func (r *fakeRegistry) FindActiveByDevice(_ context.Context, userID, deviceID string) (*domain.Session, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID && s.DeviceID == deviceID && s.Active {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRegistry) Admit(_ context.Context, session domain.Session) error {
	if r.admitErr != nil {
		return r.admitErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countActiveLocked(session.UserID) >= r.maxActive {
		return repository.ErrCapacityExceeded
	}
	copied := session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeRegistry) TerminateOthers(_ context.Context, userID, keepSessionID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for id, s := range r.sessions {
		if s.UserID != userID || id == keepSessionID {
			continue
		}
		if s.Terminate(now, reason) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRegistry) Terminate(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	s.Terminate(time.Now().UTC(), reason)
	return nil
}

func (r *fakeRegistry) Touch(_ context.Context, sessionID string, ip *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || !s.Active {
		return repository.ErrNotFound
	}
	s.Touch(time.Now().UTC(), ip)
	return nil
}

func (r *fakeRegistry) List(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Session
	for _, s := range r.sessions {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.DeviceID != "" && s.DeviceID != filter.DeviceID {
			continue
		}
		if filter.ActiveOnly && !s.Active {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

var _ port.SessionRegistry = (*fakeRegistry)(nil)

// fakeHistory returns a fixed baseline and records appended rows.
type fakeHistory struct {
	mu       sync.Mutex
	baseline domain.LoginHistory
	records  []port.LoginRecord

	historyErr error
	recordErr  error
}

func (h *fakeHistory) Record(_ context.Context, record port.LoginRecord) error {
	if h.recordErr != nil {
		return h.recordErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *fakeHistory) History(_ context.Context, _, _ string, _ int) (domain.LoginHistory, error) {
	if h.historyErr != nil {
		return domain.LoginHistory{}, h.historyErr
	}
	return h.baseline, nil
}

var _ port.LoginHistoryRepository = (*fakeHistory)(nil)

// fakeChallengeStore keeps challenges and proofs in memory.
type fakeChallengeStore struct {
	mu         sync.Mutex
	byDevice   map[string]domain.OtpChallenge
	tokenIndex map[string]string
	proofs     map[string]string
}

func newFakeChallengeStore() *fakeChallengeStore {
	return &fakeChallengeStore{
		byDevice:   make(map[string]domain.OtpChallenge),
		tokenIndex: make(map[string]string),
		proofs:     make(map[string]string),
	}
}

func pairKey(userID, deviceID string) string {
	return userID + "/" + deviceID
}

func (s *fakeChallengeStore) Put(_ context.Context, challenge domain.OtpChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(challenge.UserID, challenge.DeviceID)
	if old, ok := s.byDevice[key]; ok {
		delete(s.tokenIndex, old.Token)
	}
	s.byDevice[key] = challenge
	s.tokenIndex[challenge.Token] = key
	return nil
}

func (s *fakeChallengeStore) GetByToken(_ context.Context, token string) (*domain.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.tokenIndex[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	challenge := s.byDevice[key]
	copied := challenge
	return &copied, nil
}

func (s *fakeChallengeStore) GetByDevice(_ context.Context, userID, deviceID string) (*domain.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.byDevice[pairKey(userID, deviceID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := challenge
	return &copied, nil
}

func (s *fakeChallengeStore) Delete(_ context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, deviceID)
	if challenge, ok := s.byDevice[key]; ok {
		delete(s.tokenIndex, challenge.Token)
		delete(s.byDevice, key)
	}
	return nil
}

func (s *fakeChallengeStore) PutProof(_ context.Context, userID, deviceID, proof string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs[pairKey(userID, deviceID)] = proof
	return nil
}

func (s *fakeChallengeStore) ConsumeProof(_ context.Context, userID, deviceID, proof string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(userID, deviceID)
	if stored, ok := s.proofs[key]; ok && stored == proof {
		delete(s.proofs, key)
		return true, nil
	}
	return false, nil
}

var _ port.ChallengeStore = (*fakeChallengeStore)(nil)

// fakeCodeStore keeps hashed codes in memory.
type fakeCodeStore struct {
	mu    sync.Mutex
	codes map[string]*port.OtpCode
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]*port.OtpCode)}
}

func (s *fakeCodeStore) Store(_ context.Context, purpose, identifier, code string, ttl time.Duration) (*port.OtpCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	record := &port.OtpCode{Code: code, Attempts: 0, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.codes[purpose+"/"+identifier] = record
	return record, nil
}

func (s *fakeCodeStore) Fetch(_ context.Context, purpose, identifier string) (*port.OtpCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[purpose+"/"+identifier]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *fakeCodeStore) IncrementAttempts(_ context.Context, purpose, identifier string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[purpose+"/"+identifier]
	if !ok {
		return 0, repository.ErrNotFound
	}
	record.Attempts++
	return record.Attempts, nil
}

func (s *fakeCodeStore) Delete(_ context.Context, purpose, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := purpose + "/" + identifier
	if _, ok := s.codes[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.codes, key)
	return nil
}

var _ port.OtpCodeStore = (*fakeCodeStore)(nil)

// captureDispatcher records dispatched codes in plaintext.
type captureDispatcher struct {
	mu    sync.Mutex
	codes []string
}

func (d *captureDispatcher) Dispatch(_ context.Context, _, _, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, code)
	return nil
}

func (d *captureDispatcher) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		return ""
	}
	return d.codes[len(d.codes)-1]
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codes)
}

var _ port.CodeDispatcher = (*captureDispatcher)(nil)

// captureEvents records published events.
type captureEvents struct {
	mu         sync.Mutex
	admitted   []domain.SessionAdmittedEvent
	terminated []domain.SessionTerminatedEvent
	blocked    []domain.LoginBlockedEvent
	opened     []domain.ChallengeOpenedEvent
	redeemed   []domain.ChallengeRedeemedEvent
}

func (e *captureEvents) PublishSessionAdmitted(_ context.Context, event domain.SessionAdmittedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.admitted = append(e.admitted, event)
	return nil
}

func (e *captureEvents) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminated = append(e.terminated, event)
	return nil
}

func (e *captureEvents) PublishLoginBlocked(_ context.Context, event domain.LoginBlockedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocked = append(e.blocked, event)
	return nil
}

func (e *captureEvents) PublishChallengeOpened(_ context.Context, event domain.ChallengeOpenedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, event)
	return nil
}

func (e *captureEvents) PublishChallengeRedeemed(_ context.Context, event domain.ChallengeRedeemedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.redeemed = append(e.redeemed, event)
	return nil
}

var _ port.EventPublisher = (*captureEvents)(nil)
