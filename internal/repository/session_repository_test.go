package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/altairlabs/gatekeep/internal/domain"
)

func newSession(userID string, expiresAt time.Time) *domain.Session {
	return &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		RefreshTokenID: uuid.NewString(),
		ExpiresAt:      expiresAt,
		LastActivityAt: time.Now().UTC(),
	}
}

func TestSessionRepositoryListActiveByUserID(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	active := newSession("user-1", time.Now().Add(2*time.Hour))
	expired := newSession("user-1", time.Now().Add(-time.Hour))
	otherUser := newSession("user-2", time.Now().Add(2*time.Hour))
	revoked := newSession("user-1", time.Now().Add(2*time.Hour))
	revokedAt := time.Now().UTC()
	revoked.RevokedAt = &revokedAt
	revoked.RevokedReason = strPtr("manual")

	for _, s := range []*domain.Session{active, expired, otherUser, revoked} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	sessions, err := repo.ListActiveByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(sessions))
	}
	if sessions[0].ID != active.ID {
		t.Fatalf("unexpected active session: %+v", sessions[0])
	}
}

func TestSessionRepositoryRevokeByIDIsIdempotent(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	s := newSession("user-1", time.Now().Add(2*time.Hour))
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := repo.RevokeByID(ctx, s.ID, "user_logout")
	if err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true on first revoke")
	}

	changed, err = repo.RevokeByID(ctx, s.ID, "user_logout")
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false on already revoked session")
	}

	got, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.RevokedAt == nil || got.RevokedReason == nil || *got.RevokedReason != "user_logout" {
		t.Fatalf("expected revoked session with reason, got %+v", got)
	}
}

func TestSessionRepositoryRevokeByUserIDCountsOnlyActive(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	s1 := newSession("user-1", time.Now().Add(2*time.Hour))
	s2 := newSession("user-1", time.Now().Add(2*time.Hour))
	other := newSession("user-2", time.Now().Add(2*time.Hour))
	for _, s := range []*domain.Session{s1, s2, other} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.RevokeByID(ctx, s1.ID, "manual"); err != nil {
		t.Fatalf("pre-revoke: %v", err)
	}

	count, err := repo.RevokeByUserID(ctx, "user-1", "password_changed")
	if err != nil {
		t.Fatalf("revoke by user: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 newly revoked session, got %d", count)
	}

	otherSession, err := repo.FindByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("find other: %v", err)
	}
	if otherSession.RevokedAt != nil {
		t.Fatal("other user's session must stay active")
	}
}

func TestSessionRepositoryCleanupExpired(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	old := newSession("user-1", time.Now().Add(-48*time.Hour))
	live := newSession("user-1", time.Now().Add(2*time.Hour))
	for _, s := range []*domain.Session{old, live} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	removed, err := repo.CleanupExpired(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}
	if _, err := repo.FindByID(ctx, old.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for cleaned session, got %v", err)
	}
	if _, err := repo.FindByID(ctx, live.ID); err != nil {
		t.Fatalf("live session must survive cleanup: %v", err)
	}
}
