package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"opsdesk/api/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveProfile    = errors.New("profile is inactive")
)

// ProfileStore is the part of the persistence backend sign-in needs.
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	UpsertProfile(ctx context.Context, profile store.Profile) (store.Profile, error)
}

// Authenticator checks email/password sign-ins against stored bcrypt hashes.
type Authenticator struct {
	profiles ProfileStore
}

func NewAuthenticator(profiles ProfileStore) *Authenticator {
	return &Authenticator{profiles: profiles}
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (store.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return store.Profile{}, errors.New("email and password are required")
	}

	profile, err := a.profiles.GetProfileByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}
	if profile.PasswordHash == "" {
		return store.Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	if !profile.Active {
		return store.Profile{}, ErrInactiveProfile
	}
	return profile, nil
}

// EnsureAccount creates the account when no profile uses email yet. An
// existing profile is returned untouched.
func (a *Authenticator) EnsureAccount(ctx context.Context, email, displayName, role, password string) (store.Profile, bool, error) {
	existing, err := a.profiles.GetProfileByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, false, fmt.Errorf("lookup profile: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return store.Profile{}, false, err
	}
	created, err := a.profiles.UpsertProfile(ctx, store.Profile{
		Email:        strings.TrimSpace(email),
		DisplayName:  displayName,
		Role:         role,
		Active:       true,
		PasswordHash: hash,
	})
	if err != nil {
		return store.Profile{}, false, fmt.Errorf("create profile: %w", err)
	}
	return created, true, nil
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
