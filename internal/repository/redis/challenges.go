package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

const (
	defaultChallengePrefix = "guard:challenge"

	challengeFieldToken     = "token"
	challengeFieldCreatedAt = "created_at"
	challengeFieldExpiresAt = "expires_at"
	challengeFieldAttempt   = "attempt"
)

// consumeProofScript deletes the proof key only when it holds the expected
// value, making check-and-consume a single atomic step.
var consumeProofScript = red.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type tokenPointer struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// ChallengeStore implements port.ChallengeStore in Redis. Challenges are
// volatile by design: short-lived and safely re-issuable.
type ChallengeStore struct {
	client *red.Client
	prefix string
}

// NewChallengeStore constructs a challenge store with the provided key prefix.
func NewChallengeStore(client *red.Client, keyPrefix string) *ChallengeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}
	return &ChallengeStore{client: client, prefix: prefix}
}

// Put stores the challenge under its (user, device) key and indexes it by
// token, replacing any live challenge for the same pair.
func (s *ChallengeStore) Put(ctx context.Context, challenge domain.OtpChallenge, ttl time.Duration) error {
	switch {
	case challenge.Token == "":
		return errors.New("challenge token is required")
	case challenge.UserID == "" || challenge.DeviceID == "":
		return errors.New("challenge user and device are required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	attemptPayload, err := json.Marshal(challenge.Attempt)
	if err != nil {
		return fmt.Errorf("marshal challenge attempt: %w", err)
	}

	pointer, err := json.Marshal(tokenPointer{UserID: challenge.UserID, DeviceID: challenge.DeviceID})
	if err != nil {
		return fmt.Errorf("marshal token pointer: %w", err)
	}

	deviceKey := s.deviceKey(challenge.UserID, challenge.DeviceID)

	// A replaced challenge leaves a stale token index behind; drop it first.
	oldToken, err := s.client.HGet(ctx, deviceKey, challengeFieldToken).Result()
	if err != nil && !errors.Is(err, red.Nil) {
		return fmt.Errorf("redis read existing challenge: %w", err)
	}

	pipe := s.client.TxPipeline()
	if oldToken != "" && oldToken != challenge.Token {
		pipe.Del(ctx, s.tokenKey(oldToken))
	}
	pipe.HSet(ctx, deviceKey, map[string]any{
		challengeFieldToken:     challenge.Token,
		challengeFieldCreatedAt: strconv.FormatInt(challenge.CreatedAt.Unix(), 10),
		challengeFieldExpiresAt: strconv.FormatInt(challenge.ExpiresAt.Unix(), 10),
		challengeFieldAttempt:   string(attemptPayload),
	})
	pipe.Expire(ctx, deviceKey, ttl)
	pipe.Set(ctx, s.tokenKey(challenge.Token), string(pointer), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}
	return nil
}

// GetByToken resolves a challenge through the token index.
func (s *ChallengeStore) GetByToken(ctx context.Context, token string) (*domain.OtpChallenge, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is required")
	}

	raw, err := s.client.Get(ctx, s.tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis read token index: %w", err)
	}

	var pointer tokenPointer
	if err := json.Unmarshal([]byte(raw), &pointer); err != nil {
		return nil, fmt.Errorf("unmarshal token pointer: %w", err)
	}

	challenge, err := s.GetByDevice(ctx, pointer.UserID, pointer.DeviceID)
	if err != nil {
		return nil, err
	}
	if challenge.Token != token {
		// Index pointed at a challenge that has since been replaced.
		return nil, repository.ErrNotFound
	}
	return challenge, nil
}

// GetByDevice resolves the live challenge for a (user, device) pair.
func (s *ChallengeStore) GetByDevice(ctx context.Context, userID, deviceID string) (*domain.OtpChallenge, error) {
	if userID == "" || deviceID == "" {
		return nil, errors.New("user and device are required")
	}

	values, err := s.client.HGetAll(ctx, s.deviceKey(userID, deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[challengeFieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnix(values[challengeFieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	var attempt domain.LoginAttempt
	if raw := values[challengeFieldAttempt]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			return nil, fmt.Errorf("unmarshal challenge attempt: %w", err)
		}
	}

	return &domain.OtpChallenge{
		Token:     values[challengeFieldToken],
		UserID:    userID,
		DeviceID:  deviceID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Attempt:   attempt,
	}, nil
}

// Delete removes the challenge and its token index.
func (s *ChallengeStore) Delete(ctx context.Context, userID, deviceID string) error {
	if userID == "" || deviceID == "" {
		return errors.New("user and device are required")
	}

	deviceKey := s.deviceKey(userID, deviceID)
	token, err := s.client.HGet(ctx, deviceKey, challengeFieldToken).Result()
	if err != nil && !errors.Is(err, red.Nil) {
		return fmt.Errorf("redis read challenge token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, deviceKey)
	if token != "" {
		pipe.Del(ctx, s.tokenKey(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	return nil
}

// PutProof records a single-use redemption proof for the pair.
func (s *ChallengeStore) PutProof(ctx context.Context, userID, deviceID, proof string, ttl time.Duration) error {
	switch {
	case userID == "" || deviceID == "":
		return errors.New("user and device are required")
	case proof == "":
		return errors.New("proof is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := s.client.Set(ctx, s.proofKey(userID, deviceID), proof, ttl).Err(); err != nil {
		return fmt.Errorf("redis store proof: %w", err)
	}
	return nil
}

// ConsumeProof atomically checks and deletes the proof.
func (s *ChallengeStore) ConsumeProof(ctx context.Context, userID, deviceID, proof string) (bool, error) {
	if userID == "" || deviceID == "" || proof == "" {
		return false, nil
	}

	deleted, err := consumeProofScript.Run(ctx, s.client, []string{s.proofKey(userID, deviceID)}, proof).Int()
	if err != nil {
		return false, fmt.Errorf("redis consume proof: %w", err)
	}
	return deleted > 0, nil
}

func (s *ChallengeStore) deviceKey(userID, deviceID string) string {
	return fmt.Sprintf("%s:device:%s:%s", s.prefix, userID, deviceID)
}

func (s *ChallengeStore) tokenKey(token string) string {
	return fmt.Sprintf("%s:token:%s", s.prefix, token)
}

func (s *ChallengeStore) proofKey(userID, deviceID string) string {
	return fmt.Sprintf("%s:proof:%s:%s", s.prefix, userID, deviceID)
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.ChallengeStore = (*ChallengeStore)(nil)
