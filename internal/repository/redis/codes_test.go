package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/social-platform-guard/internal/repository"
)

func TestOtpCodeStoreRoundTrip(t *testing.T) {
	store := NewOtpCodeStore(newTestRedis(t), "")
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return base })

	stored, err := store.Store(ctx, "login", "user-1:device-1", "hashed-code", 10*time.Minute)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if stored.Attempts != 0 {
		t.Fatalf("fresh code must start at 0 attempts, got %d", stored.Attempts)
	}

	fetched, err := store.Fetch(ctx, "login", "user-1:device-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.Code != "hashed-code" {
		t.Fatalf("unexpected code: %s", fetched.Code)
	}
	if !fetched.CreatedAt.Equal(base) {
		t.Fatalf("created_at did not round trip: %v", fetched.CreatedAt)
	}
	if !fetched.ExpiresAt.Equal(base.Add(10 * time.Minute)) {
		t.Fatalf("expires_at did not round trip: %v", fetched.ExpiresAt)
	}
}

func TestOtpCodeStoreReplaceResetsAttempts(t *testing.T) {
	store := NewOtpCodeStore(newTestRedis(t), "")
	ctx := context.Background()

	if _, err := store.Store(ctx, "login", "user-1:device-1", "first", 10*time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "login", "user-1:device-1"); err != nil {
		t.Fatalf("IncrementAttempts returned error: %v", err)
	}

	if _, err := store.Store(ctx, "login", "user-1:device-1", "second", 10*time.Minute); err != nil {
		t.Fatalf("replace Store returned error: %v", err)
	}

	fetched, err := store.Fetch(ctx, "login", "user-1:device-1")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.Code != "second" || fetched.Attempts != 0 {
		t.Fatalf("replacement must reset the record, got %+v", fetched)
	}
}

func TestOtpCodeStoreIncrementAttempts(t *testing.T) {
	store := NewOtpCodeStore(newTestRedis(t), "")
	ctx := context.Background()

	if _, err := store.Store(ctx, "login", "user-1:device-1", "hashed-code", 10*time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementAttempts(ctx, "login", "user-1:device-1")
		if err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d attempts, got %d", want, got)
		}
	}

	if _, err := store.IncrementAttempts(ctx, "login", "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOtpCodeStoreDelete(t *testing.T) {
	store := NewOtpCodeStore(newTestRedis(t), "")
	ctx := context.Background()

	if _, err := store.Store(ctx, "login", "user-1:device-1", "hashed-code", 10*time.Minute); err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if err := store.Delete(ctx, "login", "user-1:device-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Fetch(ctx, "login", "user-1:device-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "login", "user-1:device-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestOtpCodeStoreValidation(t *testing.T) {
	store := NewOtpCodeStore(newTestRedis(t), "")
	ctx := context.Background()

	if _, err := store.Store(ctx, "", "user-1:device-1", "code", time.Minute); err == nil {
		t.Fatal("expected error for empty purpose")
	}
	if _, err := store.Store(ctx, "login", "user-1:device-1", "", time.Minute); err == nil {
		t.Fatal("expected error for empty code")
	}
	if _, err := store.Store(ctx, "login", "user-1:device-1", "code", 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}
