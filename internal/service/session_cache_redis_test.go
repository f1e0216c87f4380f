package service

import (
	"context"
	"testing"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
)

func TestRedisSessionCacheStorePositiveEntry(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisSessionCacheStore(client, "test:session")
	ctx := context.Background()

	p := &domain.SessionProjection{
		ID:             "sess-1",
		UserID:         "user-1",
		RefreshTokenID: "rt-1",
		ExpiresAt:      time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	if err := store.Set(ctx, p, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, found, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || got == nil {
		t.Fatal("expected a positive cache hit")
	}
	if got.RefreshTokenID != "rt-1" || got.UserID != "user-1" {
		t.Fatalf("unexpected projection: %+v", got)
	}
}

func TestRedisSessionCacheStoreNegativeEntry(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisSessionCacheStore(client, "test:session")
	ctx := context.Background()

	if err := store.SetNegative(ctx, "ghost", time.Minute); err != nil {
		t.Fatalf("set negative: %v", err)
	}

	got, found, err := store.Get(ctx, "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected a negative hit to count as found")
	}
	if got != nil {
		t.Fatalf("negative hit must carry a nil projection, got %+v", got)
	}
}

func TestRedisSessionCacheStoreMissAndEvict(t *testing.T) {
	_, client := newRedisClientForTest(t)
	store := NewRedisSessionCacheStore(client, "test:session")
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "nothing"); err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}

	if err := store.SetNegative(ctx, "sess-2", time.Minute); err != nil {
		t.Fatalf("set negative: %v", err)
	}
	if err := store.Evict(ctx, "sess-2"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if _, found, err := store.Get(ctx, "sess-2"); err != nil || found {
		t.Fatalf("expected miss after evict, found=%v err=%v", found, err)
	}
}

func TestRedisSessionCacheStoreEntryExpires(t *testing.T) {
	server, client := newRedisClientForTest(t)
	store := NewRedisSessionCacheStore(client, "test:session")
	ctx := context.Background()

	p := &domain.SessionProjection{ID: "sess-3", UserID: "user-1", RefreshTokenID: "rt-3", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Set(ctx, p, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	server.FastForward(2 * time.Second)

	if _, found, err := store.Get(ctx, "sess-3"); err != nil || found {
		t.Fatalf("expected entry to expire, found=%v err=%v", found, err)
	}
}
