// Package identity owns who is acting in a client session.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/store"
)

// ProfileKey is the cache key for the active profile. Sessions append their
// id so several clients can share one cache.
const ProfileKey = "active_profile"

// Holder keeps the active profile for one session and mirrors it to the
// local cache so it can be restored before the backend answers.
type Holder struct {
	mu      sync.RWMutex
	cache   localcache.Cache
	key     string
	profile *store.Profile
}

func NewHolder(cache localcache.Cache, sessionID string) *Holder {
	key := ProfileKey
	if sessionID != "" {
		key = ProfileKey + ":" + sessionID
	}
	return &Holder{cache: cache, key: key}
}

func (h *Holder) ActiveProfile() (store.Profile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.profile == nil {
		return store.Profile{}, false
	}
	return *h.profile, true
}

// Set replaces the active profile. The password hash never reaches the cache.
func (h *Holder) Set(ctx context.Context, profile store.Profile) error {
	profile.PasswordHash = ""
	h.mu.Lock()
	h.profile = &profile
	h.mu.Unlock()

	if h.cache == nil {
		return nil
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := h.cache.Set(ctx, h.key, string(payload)); err != nil {
		return fmt.Errorf("cache profile: %w", err)
	}
	return nil
}

func (h *Holder) Clear(ctx context.Context) error {
	h.mu.Lock()
	h.profile = nil
	h.mu.Unlock()

	if h.cache == nil {
		return nil
	}
	if err := h.cache.Delete(ctx, h.key); err != nil {
		return fmt.Errorf("clear cached profile: %w", err)
	}
	return nil
}

// Restore loads the cached profile. Missing or unreadable entries leave the
// holder empty.
func (h *Holder) Restore(ctx context.Context) bool {
	if h.cache == nil {
		return false
	}
	raw, err := h.cache.Get(ctx, h.key)
	if err != nil {
		return false
	}
	var profile store.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil || profile.ID == "" {
		return false
	}
	h.mu.Lock()
	h.profile = &profile
	h.mu.Unlock()
	return true
}
