package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/store"
)

type fakeProfiles struct {
	getByEmail func(ctx context.Context, email string) (store.Profile, error)
	upsert     func(ctx context.Context, profile store.Profile) (store.Profile, error)
}

func (f fakeProfiles) GetProfileByEmail(ctx context.Context, email string) (store.Profile, error) {
	return f.getByEmail(ctx, email)
}

func (f fakeProfiles) UpsertProfile(ctx context.Context, profile store.Profile) (store.Profile, error) {
	return f.upsert(ctx, profile)
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func TestHolderSetRestoreClear(t *testing.T) {
	cache := localcache.NewMemory()
	ctx := context.Background()

	holder := NewHolder(cache, "sess-1")
	if _, ok := holder.ActiveProfile(); ok {
		t.Fatal("expected empty holder")
	}
	if err := holder.Set(ctx, store.Profile{ID: "u1", DisplayName: "Ops", Role: "admin", Active: true, PasswordHash: "secret"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := cache.Get(ctx, "active_profile:sess-1")
	if err != nil {
		t.Fatalf("expected cached profile: %v", err)
	}
	if strings.Contains(raw, "secret") {
		t.Fatalf("password hash leaked into cache: %s", raw)
	}

	restored := NewHolder(cache, "sess-1")
	if !restored.Restore(ctx) {
		t.Fatal("expected restore to succeed")
	}
	profile, ok := restored.ActiveProfile()
	if !ok || profile.ID != "u1" || profile.Role != "admin" {
		t.Fatalf("unexpected restored profile %+v", profile)
	}

	if err := restored.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := restored.ActiveProfile(); ok {
		t.Fatal("expected holder to be empty after clear")
	}
	if NewHolder(cache, "sess-1").Restore(ctx) {
		t.Fatal("expected cache entry to be removed")
	}
}

func TestHolderRestoreSwallowsGarbage(t *testing.T) {
	cache := localcache.NewMemory()
	_ = cache.Set(context.Background(), ProfileKey, "{broken")
	holder := NewHolder(cache, "")
	if holder.Restore(context.Background()) {
		t.Fatal("expected restore to fail quietly")
	}
	if _, ok := holder.ActiveProfile(); ok {
		t.Fatal("expected no profile")
	}
}

func TestSignIn(t *testing.T) {
	active := store.Profile{ID: "u1", Email: "ops@example.com", Role: "member", Active: true, PasswordHash: hashFor(t, "correct horse")}
	inactive := active
	inactive.Active = false

	cases := []struct {
		name     string
		profile  store.Profile
		lookup   error
		password string
		wantErr  error
	}{
		{name: "ok", profile: active, password: "correct horse"},
		{name: "wrong password", profile: active, password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown email", lookup: store.ErrNotFound, password: "x", wantErr: ErrInvalidCredentials},
		{name: "inactive", profile: inactive, password: "correct horse", wantErr: ErrInactiveProfile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := NewAuthenticator(fakeProfiles{
				getByEmail: func(context.Context, string) (store.Profile, error) { return tc.profile, tc.lookup },
			})
			profile, err := auth.SignIn(context.Background(), "ops@example.com", tc.password)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil || profile.ID != "u1" {
				t.Fatalf("unexpected result %+v %v", profile, err)
			}
		})
	}
}

func TestSignInRequiresFields(t *testing.T) {
	auth := NewAuthenticator(fakeProfiles{})
	if _, err := auth.SignIn(context.Background(), " ", "pw"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	var created []store.Profile
	profiles := fakeProfiles{
		getByEmail: func(_ context.Context, email string) (store.Profile, error) {
			for _, p := range created {
				if p.Email == email {
					return p, nil
				}
			}
			return store.Profile{}, store.ErrNotFound
		},
		upsert: func(_ context.Context, profile store.Profile) (store.Profile, error) {
			profile.ID = "local_1"
			created = append(created, profile)
			return profile, nil
		},
	}
	auth := NewAuthenticator(profiles)
	ctx := context.Background()

	profile, fresh, err := auth.EnsureAccount(ctx, "admin@opsdesk.local", "Local Operator", "system_admin", "opsdesk")
	if err != nil || !fresh {
		t.Fatalf("expected fresh account, got %v %v", fresh, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte("opsdesk")) != nil {
		t.Fatal("expected stored bcrypt hash of the password")
	}

	_, fresh, err = auth.EnsureAccount(ctx, "admin@opsdesk.local", "Local Operator", "system_admin", "opsdesk")
	if err != nil || fresh {
		t.Fatalf("expected existing account, got %v %v", fresh, err)
	}
	if len(created) != 1 {
		t.Fatalf("expected one upsert, got %d", len(created))
	}
}
