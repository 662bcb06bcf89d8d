package localcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return cache, s
}

func TestNewRedisCache(t *testing.T) {
	cache, s := setupTestRedis(t)
	defer cache.Close()
	defer s.Close()

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisSetGetDelete(t *testing.T) {
	cache, s := setupTestRedis(t)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "knowledge_documents", `[{"id":"doc-1"}]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	stored, err := s.Get("opsdesk:knowledge_documents")
	if err != nil {
		t.Fatalf("expected prefixed key in redis: %v", err)
	}
	if stored != `[{"id":"doc-1"}]` {
		t.Fatalf("unexpected raw value %q", stored)
	}

	value, err := cache.Get(ctx, "knowledge_documents")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != `[{"id":"doc-1"}]` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := cache.Delete(ctx, "knowledge_documents"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Get(ctx, "knowledge_documents"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}
}

func TestRedisGetMissing(t *testing.T) {
	cache, s := setupTestRedis(t)
	defer cache.Close()
	defer s.Close()

	if _, err := cache.Get(context.Background(), "active_profile"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestRedisGetWhenServerDown(t *testing.T) {
	cache, s := setupTestRedis(t)
	defer cache.Close()
	s.Close()

	_, err := cache.Get(context.Background(), "active_profile")
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRedisSetWithTTLExpires(t *testing.T) {
	cache, s := setupTestRedis(t)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if err := SetWithTTL(ctx, cache, "revoked_session:abc", "x", time.Hour); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}
	if ttl := s.TTL("opsdesk:revoked_session:abc"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	s.FastForward(time.Hour)
	if _, err := cache.Get(ctx, "revoked_session:abc"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after ttl, got %v", err)
	}
}
