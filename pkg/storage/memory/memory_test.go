package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/digsite/pkg/account"
	"github.com/rhuss/digsite/pkg/api"
	"github.com/rhuss/digsite/pkg/storage"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func makeUser(id, email string) *api.User {
	return &api.User{
		ID:               id,
		Email:            email,
		PasswordHash:     "hash-" + id,
		FullName:         "Trowel " + id,
		Role:             api.RoleResearcher,
		SubscriptionPlan: api.PlanFree,
		IsActive:         true,
		CreatedAt:        t0,
		UpdatedAt:        t0,
	}
}

func makeToken(hash, userID string, issued time.Time) *account.ResetToken {
	return &account.ResetToken{
		TokenHash: hash,
		UserID:    userID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Hour),
	}
}

func TestCreateAndGetUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateUser(ctx, makeUser("u1", "rhea@site.org")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byID, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "rhea@site.org" {
		t.Errorf("Email = %q, want %q", byID.Email, "rhea@site.org")
	}

	byEmail, err := s.GetUserByEmail(ctx, "rhea@site.org")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "u1" {
		t.Errorf("ID = %q, want %q", byEmail.ID, "u1")
	}
}

func TestCreateUserConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))

	tests := []struct {
		name string
		user *api.User
	}{
		{"same email", makeUser("u2", "rhea@site.org")},
		{"same id", makeUser("u1", "other@site.org")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CreateUser(ctx, tt.user); !errors.Is(err, storage.ErrConflict) {
				t.Errorf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetUserByID: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "nobody@site.org"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetUserByEmail: expected ErrNotFound, got %v", err)
	}
}

func TestReturnedUserIsACopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := makeUser("u1", "rhea@site.org")
	s.CreateUser(ctx, u)

	u.FullName = "changed after create"
	got, _ := s.GetUserByID(ctx, "u1")
	got.PasswordHash = "changed after get"

	again, _ := s.GetUserByID(ctx, "u1")
	if again.FullName != "Trowel u1" {
		t.Errorf("FullName = %q, store shares memory with caller", again.FullName)
	}
	if again.PasswordHash != "hash-u1" {
		t.Errorf("PasswordHash = %q, store shares memory with caller", again.PasswordHash)
	}
}

func TestUpdateProfileLeavesProtectedFields(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))

	upd := makeUser("u1", "mallory@site.org")
	upd.Role = api.RoleAdmin
	upd.PasswordHash = "stolen"
	upd.Bio = "ceramics"
	upd.UpdatedAt = t0.Add(time.Minute)
	if err := s.UpdateProfile(ctx, upd); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	got, _ := s.GetUserByID(ctx, "u1")
	if got.Bio != "ceramics" {
		t.Errorf("Bio = %q, want %q", got.Bio, "ceramics")
	}
	if got.Email != "rhea@site.org" || got.Role != api.RoleResearcher || got.PasswordHash != "hash-u1" {
		t.Errorf("protected fields changed: %+v", got)
	}
	if !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}

	if err := s.UpdateProfile(ctx, makeUser("missing", "x@site.org")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))

	if err := s.UpdatePassword(ctx, "u1", "new-hash", t0.Add(time.Hour)); err != nil {
		t.Fatalf("UpdatePassword failed: %v", err)
	}
	got, _ := s.GetUserByID(ctx, "u1")
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "new-hash")
	}
	if err := s.UpdatePassword(ctx, "missing", "h", t0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplacePassword(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
	s.CreateUser(ctx, makeUser("u2", "iris@site.org"))
	s.CreateResetToken(ctx, makeToken("tok1", "u1", t0))
	s.CreateResetToken(ctx, makeToken("tok2", "u2", t0))

	at := t0.Add(time.Minute)
	if err := s.ReplacePassword(ctx, "u1", "changed-hash", at); err != nil {
		t.Fatalf("ReplacePassword failed: %v", err)
	}
	got, _ := s.GetUserByID(ctx, "u1")
	if got.PasswordHash != "changed-hash" || !got.UpdatedAt.Equal(at) {
		t.Errorf("user = %+v, want new hash at %v", got, at)
	}
	tok, _ := s.GetResetToken(ctx, "tok1")
	if tok.ValidAt(at) {
		t.Error("u1 reset token still valid after ReplacePassword")
	}
	other, _ := s.GetResetToken(ctx, "tok2")
	if !other.ValidAt(at) {
		t.Error("u2 reset token invalidated by another user's password change")
	}

	if err := s.ReplacePassword(ctx, "missing", "h", t0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeResetToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
	s.CreateResetToken(ctx, makeToken("tok1", "u1", t0))

	if err := s.ConsumeResetToken(ctx, "tok1", t0.Add(time.Minute), "reset-hash"); err != nil {
		t.Fatalf("ConsumeResetToken failed: %v", err)
	}

	u, _ := s.GetUserByID(ctx, "u1")
	if u.PasswordHash != "reset-hash" {
		t.Errorf("PasswordHash = %q, want %q", u.PasswordHash, "reset-hash")
	}
	tok, _ := s.GetResetToken(ctx, "tok1")
	if tok.ConsumedAt == nil {
		t.Fatal("token not marked consumed")
	}

	// Second use fails and changes nothing.
	err := s.ConsumeResetToken(ctx, "tok1", t0.Add(2*time.Minute), "second-hash")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on reuse, got %v", err)
	}
	u, _ = s.GetUserByID(ctx, "u1")
	if u.PasswordHash != "reset-hash" {
		t.Errorf("PasswordHash = %q after reuse", u.PasswordHash)
	}
}

func TestConsumeResetTokenRejects(t *testing.T) {
	tests := []struct {
		name string
		hash string
		now  time.Time
	}{
		{"unknown", "nope", t0.Add(time.Minute)},
		{"expired", "tok1", t0.Add(time.Hour)},
		{"long expired", "tok1", t0.Add(48 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			ctx := context.Background()
			s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
			s.CreateResetToken(ctx, makeToken("tok1", "u1", t0))

			if err := s.ConsumeResetToken(ctx, tt.hash, tt.now, "h"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			u, _ := s.GetUserByID(ctx, "u1")
			if u.PasswordHash != "hash-u1" {
				t.Errorf("PasswordHash changed to %q", u.PasswordHash)
			}
		})
	}
}

func TestNewTokenInvalidatesOlder(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
	s.CreateResetToken(ctx, makeToken("old", "u1", t0))
	s.CreateResetToken(ctx, makeToken("new", "u1", t0.Add(time.Minute)))

	if err := s.ConsumeResetToken(ctx, "old", t0.Add(2*time.Minute), "h"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("old token: expected ErrNotFound, got %v", err)
	}
	if err := s.ConsumeResetToken(ctx, "new", t0.Add(2*time.Minute), "h"); err != nil {
		t.Errorf("new token: %v", err)
	}
}

func TestCreateResetTokenUnknownUser(t *testing.T) {
	s := New()
	err := s.CreateResetToken(context.Background(), makeToken("tok", "ghost", t0))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
	s.CreateResetToken(ctx, makeToken("tok1", "u1", t0))

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ConsumeResetToken(ctx, "tok1", t0.Add(time.Minute), "h")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d consumers succeeded, want 1", ok)
	}
}

func TestPurgeResetTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.CreateUser(ctx, makeUser("u1", "rhea@site.org"))
	s.CreateUser(ctx, makeUser("u2", "ada@site.org"))
	s.CreateUser(ctx, makeUser("u3", "ines@site.org"))

	s.CreateResetToken(ctx, makeToken("expired", "u1", t0.Add(-2*time.Hour)))
	s.CreateResetToken(ctx, makeToken("consumed", "u2", t0.Add(-30*time.Minute)))
	s.ConsumeResetToken(ctx, "consumed", t0.Add(-20*time.Minute), "h")
	s.CreateResetToken(ctx, makeToken("live", "u3", t0))

	n, err := s.PurgeResetTokens(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeResetTokens failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	if _, err := s.GetResetToken(ctx, "live"); err != nil {
		t.Errorf("live token purged: %v", err)
	}
	if _, err := s.GetResetToken(ctx, "expired"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired token kept: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := New()
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck = %v, want nil", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close = %v, want nil", err)
	}
}
