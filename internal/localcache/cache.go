// Package localcache holds device-local key/value state: the mirrored
// document list and the cached active profile.
package localcache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss is returned by Get when the key holds no value.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Expirer is implemented by caches that can drop a key after a ttl.
type Expirer interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// SetWithTTL writes value so that it expires after ttl when c supports
// expiry, and writes it without expiry otherwise.
func SetWithTTL(ctx context.Context, c Cache, key, value string, ttl time.Duration) error {
	if expirer, ok := c.(Expirer); ok {
		return expirer.SetWithTTL(ctx, key, value, ttl)
	}
	return c.Set(ctx, key, value)
}

// Pinger is implemented by caches backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if deadline, ok := m.expires[key]; ok && !m.now().Before(deadline) {
		delete(m.values, key)
		delete(m.expires, key)
	}
	value, ok := m.values[key]
	if !ok {
		return "", ErrMiss
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	delete(m.expires, key)
	return nil
}

// SetWithTTL stores value until ttl elapses. Expired keys are swept on each
// call.
func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, deadline := range m.expires {
		if !now.Before(deadline) {
			delete(m.values, k)
			delete(m.expires, k)
		}
	}
	m.values[key] = value
	m.expires[key] = now.Add(ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	return nil
}
