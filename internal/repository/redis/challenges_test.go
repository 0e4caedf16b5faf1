package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-guard/internal/core/domain"
	"github.com/arklim/social-platform-guard/internal/repository"
)

func newTestRedis(t *testing.T) *red.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func testChallenge(token string) domain.OtpChallenge {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.OtpChallenge{
		Token:     token,
		UserID:    "user-1",
		DeviceID:  "device-1",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
		Attempt: domain.LoginAttempt{
			UserID:   "user-1",
			DeviceID: "device-1",
			Country:  "DE",
		},
	}
}

func TestChallengeStoreRoundTrip(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	challenge := testChallenge("token-1")
	if err := store.Put(ctx, challenge, 10*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	byToken, err := store.GetByToken(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetByToken returned error: %v", err)
	}
	if byToken.UserID != "user-1" || byToken.DeviceID != "device-1" {
		t.Fatalf("unexpected challenge identity: %+v", byToken)
	}
	if !byToken.CreatedAt.Equal(challenge.CreatedAt) || !byToken.ExpiresAt.Equal(challenge.ExpiresAt) {
		t.Fatalf("timestamps did not round trip: %+v", byToken)
	}
	if byToken.Attempt.Country != "DE" {
		t.Fatalf("attempt did not round trip: %+v", byToken.Attempt)
	}

	byDevice, err := store.GetByDevice(ctx, "user-1", "device-1")
	if err != nil {
		t.Fatalf("GetByDevice returned error: %v", err)
	}
	if byDevice.Token != "token-1" {
		t.Fatalf("unexpected token: %s", byDevice.Token)
	}
}

func TestChallengeStorePutReplacesTokenIndex(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("token-1"), 10*time.Minute); err != nil {
		t.Fatalf("first Put returned error: %v", err)
	}
	if err := store.Put(ctx, testChallenge("token-2"), 10*time.Minute); err != nil {
		t.Fatalf("second Put returned error: %v", err)
	}

	if _, err := store.GetByToken(ctx, "token-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for replaced token, got %v", err)
	}

	current, err := store.GetByToken(ctx, "token-2")
	if err != nil {
		t.Fatalf("GetByToken returned error: %v", err)
	}
	if current.Token != "token-2" {
		t.Fatalf("unexpected token: %s", current.Token)
	}
}

func TestChallengeStoreGetMissing(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	if _, err := store.GetByToken(ctx, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByDevice(ctx, "user-1", "device-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChallengeStoreDelete(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("token-1"), 10*time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := store.Delete(ctx, "user-1", "device-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := store.GetByDevice(ctx, "user-1", "device-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// The token index goes with the challenge.
	if _, err := store.GetByToken(ctx, "token-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted token, got %v", err)
	}
}

func TestConsumeProofSingleUse(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	if err := store.PutProof(ctx, "user-1", "device-1", "proof-value", time.Minute); err != nil {
		t.Fatalf("PutProof returned error: %v", err)
	}

	ok, err := store.ConsumeProof(ctx, "user-1", "device-1", "proof-value")
	if err != nil {
		t.Fatalf("ConsumeProof returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected the proof to consume")
	}

	ok, err = store.ConsumeProof(ctx, "user-1", "device-1", "proof-value")
	if err != nil {
		t.Fatalf("second ConsumeProof returned error: %v", err)
	}
	if ok {
		t.Fatal("a proof must consume at most once")
	}
}

func TestConsumeProofWrongValue(t *testing.T) {
	store := NewChallengeStore(newTestRedis(t), "")
	ctx := context.Background()

	if err := store.PutProof(ctx, "user-1", "device-1", "proof-value", time.Minute); err != nil {
		t.Fatalf("PutProof returned error: %v", err)
	}

	ok, err := store.ConsumeProof(ctx, "user-1", "device-1", "other-value")
	if err != nil {
		t.Fatalf("ConsumeProof returned error: %v", err)
	}
	if ok {
		t.Fatal("mismatched proof must not consume")
	}

	// The stored proof survives a mismatched consume.
	ok, err = store.ConsumeProof(ctx, "user-1", "device-1", "proof-value")
	if err != nil {
		t.Fatalf("ConsumeProof returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected the original proof to remain consumable")
	}
}
