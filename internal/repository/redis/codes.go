package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-guard/internal/core/port"
	"github.com/arklim/social-platform-guard/internal/repository"
)

const (
	defaultCodePrefix = "guard:otp"

	codeFieldValue     = "code"
	codeFieldCreatedAt = "created_at"
	codeFieldExpiresAt = "expires_at"
	codeFieldAttempts  = "attempts"
)

// OtpCodeStore persists hashed one-time codes in Redis. Only code lifecycle
// lives here; minting and comparison belong to the security package.
type OtpCodeStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewOtpCodeStore constructs a code store with the provided key prefix.
func NewOtpCodeStore(client *red.Client, keyPrefix string) *OtpCodeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultCodePrefix
	}
	return &OtpCodeStore{client: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the internal clock, used in tests.
func (s *OtpCodeStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Store persists a code with the supplied purpose/identifier and TTL,
// resetting the attempt counter.
func (s *OtpCodeStore) Store(ctx context.Context, purpose, identifier, code string, ttl time.Duration) (*port.OtpCode, error) {
	key := s.key(purpose, identifier)
	switch {
	case key == "":
		return nil, errors.New("purpose and identifier are required")
	case strings.TrimSpace(code) == "":
		return nil, errors.New("code is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		codeFieldValue:     code,
		codeFieldCreatedAt: strconv.FormatInt(now.Unix(), 10),
		codeFieldExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
		codeFieldAttempts:  "0",
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis store otp code: %w", err)
	}

	return &port.OtpCode{Code: code, Attempts: 0, CreatedAt: now, ExpiresAt: expiresAt}, nil
}

// Fetch retrieves the code record for the provided purpose and identifier.
func (s *OtpCodeStore) Fetch(ctx context.Context, purpose, identifier string) (*port.OtpCode, error) {
	key := s.key(purpose, identifier)
	if key == "" {
		return nil, errors.New("purpose and identifier are required")
	}

	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read otp code: %w", err)
	}
	if len(values) == 0 || strings.TrimSpace(values[codeFieldValue]) == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[codeFieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnix(values[codeFieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	attempts := 0
	if raw := values[codeFieldAttempts]; raw != "" {
		if v, convErr := strconv.Atoi(raw); convErr == nil {
			attempts = v
		}
	}

	return &port.OtpCode{
		Code:      values[codeFieldValue],
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IncrementAttempts increments the attempt counter and returns the new value.
func (s *OtpCodeStore) IncrementAttempts(ctx context.Context, purpose, identifier string) (int, error) {
	if _, err := s.Fetch(ctx, purpose, identifier); err != nil {
		return 0, err
	}

	count, err := s.client.HIncrBy(ctx, s.key(purpose, identifier), codeFieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment otp attempts: %w", err)
	}
	return int(count), nil
}

// Delete removes the code entry, enforcing single-use semantics.
func (s *OtpCodeStore) Delete(ctx context.Context, purpose, identifier string) error {
	key := s.key(purpose, identifier)
	if key == "" {
		return errors.New("purpose and identifier are required")
	}

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete otp code: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *OtpCodeStore) key(purpose, identifier string) string {
	purpose = strings.TrimSpace(purpose)
	identifier = strings.TrimSpace(identifier)
	if purpose == "" || identifier == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, identifier)
}

var _ port.OtpCodeStore = (*OtpCodeStore)(nil)
