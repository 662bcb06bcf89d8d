package localcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}

	ctx := context.Background()
	if _, err := cache.Get(ctx, "active_profile:abc"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss on empty cache, got %v", err)
	}
	if err := cache.Set(ctx, "active_profile:abc", `{"id":"p1"}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set(ctx, "active_profile:abc", `{"id":"p2"}`); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	value, err := cache.Get(ctx, "active_profile:abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != `{"id":"p2"}` {
		t.Fatalf("expected last write to win, got %q", value)
	}

	if _, err := os.Stat(filepath.Join(dir, "nested", "active_profile_abc.json")); err != nil {
		t.Fatalf("expected sanitized file name: %v", err)
	}

	if err := cache.Delete(ctx, "active_profile:abc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := cache.Delete(ctx, "active_profile:abc"); err != nil {
		t.Fatalf("Delete() of missing key should be a no-op, got %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemory()
	ctx := context.Background()
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	_ = cache.Set(ctx, "k", "v")
	if value, _ := cache.Get(ctx, "k"); value != "v" {
		t.Fatalf("expected v, got %q", value)
	}
	_ = cache.Delete(ctx, "k")
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}
}

func TestExpiringValues(t *testing.T) {
	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	memory := NewMemory()
	memory.now = now
	file, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	file.now = now

	for name, cache := range map[string]Cache{"memory": memory, "file": file} {
		t.Run(name, func(t *testing.T) {
			clock = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
			ctx := context.Background()
			if err := SetWithTTL(ctx, cache, "revoked_session:a", "x", time.Hour); err != nil {
				t.Fatalf("SetWithTTL() error = %v", err)
			}
			if err := cache.Set(ctx, "knowledge_documents", "[]"); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			clock = clock.Add(59 * time.Minute)
			if value, err := cache.Get(ctx, "revoked_session:a"); err != nil || value != "x" {
				t.Fatalf("expected value before deadline, got %q %v", value, err)
			}

			clock = clock.Add(time.Minute)
			if _, err := cache.Get(ctx, "revoked_session:a"); !errors.Is(err, ErrMiss) {
				t.Fatalf("expected ErrMiss at deadline, got %v", err)
			}
			if _, err := cache.Get(ctx, "knowledge_documents"); err != nil {
				t.Fatalf("plain values must not expire: %v", err)
			}
		})
	}
}

func TestExpiredValuesAreSweptOnWrite(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cache, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache() error = %v", err)
	}
	cache.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = cache.SetWithTTL(ctx, "revoked_session:old", "x", time.Minute)
	clock = clock.Add(time.Hour)
	_ = cache.SetWithTTL(ctx, "revoked_session:new", "y", time.Minute)

	for _, name := range []string{"revoked_session_old.json", "revoked_session_old.expires"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s to be swept, stat err = %v", name, err)
		}
	}

	memory := NewMemory()
	memory.now = func() time.Time { return clock }
	_ = memory.SetWithTTL(ctx, "revoked_session:old", "x", time.Minute)
	clock = clock.Add(time.Hour)
	_ = memory.SetWithTTL(ctx, "revoked_session:new", "y", time.Minute)
	if len(memory.values) != 1 || len(memory.expires) != 1 {
		t.Fatalf("expected only the fresh key to remain, got %v", memory.values)
	}
}

func TestSetWithTTLFallsBackToSet(t *testing.T) {
	var cache Cache = plainCache{NewMemory()}
	ctx := context.Background()
	if err := SetWithTTL(ctx, cache, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("SetWithTTL() error = %v", err)
	}
	if value, err := cache.Get(ctx, "k"); err != nil || value != "v" {
		t.Fatalf("expected plain write, got %q %v", value, err)
	}
}

// plainCache hides the Expirer methods of the wrapped cache.
type plainCache struct{ inner *Memory }

func (p plainCache) Get(ctx context.Context, key string) (string, error) { return p.inner.Get(ctx, key) }
func (p plainCache) Set(ctx context.Context, key, value string) error    { return p.inner.Set(ctx, key, value) }
func (p plainCache) Delete(ctx context.Context, key string) error        { return p.inner.Delete(ctx, key) }
