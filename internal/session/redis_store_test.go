package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }
	expiresAt := created.Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "test-token-hash", "user-123", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	session, err := store.LookupRefreshSession(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if session.UserID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", session.UserID)
	}
	if !session.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, session.CreatedAt)
	}
	if !session.ExpiresAt.Equal(expiresAt) {
		t.Errorf("expected expires_at %v, got %v", expiresAt, session.ExpiresAt)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "expired-token", "user-456", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	_, err := store.LookupRefreshSession(ctx, "expired-token")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for expired token, got %v", err)
	}
}

func TestSaveAlreadyExpiredSessionIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	if err := store.SaveRefreshSession(context.Background(), "stale", "user-1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", s.Keys())
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	_, err := store.LookupRefreshSession(context.Background(), "non-existent-token")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "token-1", "user-1", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 1 failed: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "token-2", "user-2", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession 2 failed: %v", err)
	}

	if err := store.RevokeRefreshSession(ctx, "token-1"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "token-1"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}

	session, err := store.LookupRefreshSession(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if session.UserID != "user-2" {
		t.Errorf("expected user-2 after revoke, got %s", session.UserID)
	}

	if err := store.RevokeRefreshSession(ctx, "non-existent-token"); err != nil {
		t.Errorf("RevokeRefreshSession for non-existent token failed: %v", err)
	}
}

func TestRevokedAccessTokensExpire(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v (err %v)", revoked, err)
	}
	if revoked, _ := store.IsAccessTokenRevoked(ctx, "jti-2"); revoked {
		t.Fatal("jti-2 should not be revoked")
	}

	s.FastForward(11 * time.Minute)
	if revoked, _ := store.IsAccessTokenRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation entry should expire with the token")
	}
}

func TestClaimIdempotencyKey(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	first, err := store.ClaimIdempotencyKey(ctx, "welcome:user-1", time.Hour)
	if err != nil || !first {
		t.Fatalf("first claim = %v, %v", first, err)
	}
	second, err := store.ClaimIdempotencyKey(ctx, "welcome:user-1", time.Hour)
	if err != nil || second {
		t.Fatalf("second claim = %v, %v; want false", second, err)
	}

	if err := store.ReleaseIdempotencyKey(ctx, "welcome:user-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	again, _ := store.ClaimIdempotencyKey(ctx, "welcome:user-1", time.Hour)
	if !again {
		t.Fatal("expected claim after release to succeed")
	}

	s.FastForward(2 * time.Hour)
	afterTTL, _ := store.ClaimIdempotencyKey(ctx, "welcome:user-1", time.Hour)
	if !afterTTL {
		t.Fatal("expected claim after ttl to succeed")
	}
}
