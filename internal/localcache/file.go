package localcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileCache keeps one file per key under dir. Writes go through a temp file
// and rename so a crash never leaves a half-written value behind.
// Values written with SetWithTTL get a sibling .expires file holding the
// deadline.
type FileCache struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

func (c *FileCache) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(c.dir, safe+".json")
}

func (c *FileCache) expiryPath(key string) string {
	return strings.TrimSuffix(c.path(key), ".json") + ".expires"
}

func (c *FileCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expiredLocked(c.expiryPath(key)) {
		_ = c.removeLocked(key)
		return "", ErrMiss
	}
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), nil
}

func (c *FileCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLocked(c.path(key), value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Remove(c.expiryPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// SetWithTTL stores value until ttl elapses. Expired keys are swept on each
// call.
func (c *FileCache) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	if err := c.writeLocked(c.path(key), value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	deadline := c.now().Add(ttl).UTC().Format(time.RFC3339Nano)
	if err := c.writeLocked(c.expiryPath(key), deadline); err != nil {
		return fmt.Errorf("write %s expiry: %w", key, err)
	}
	return nil
}

func (c *FileCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

func (c *FileCache) removeLocked(key string) error {
	for _, path := range []string{c.path(key), c.expiryPath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// expiredLocked reports whether the deadline file exists and has passed. An
// unreadable deadline counts as expired.
func (c *FileCache) expiredLocked(expiryPath string) bool {
	data, err := os.ReadFile(expiryPath)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	deadline, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return true
	}
	return !c.now().Before(deadline)
}

func (c *FileCache) sweepLocked() {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.expires"))
	if err != nil {
		return
	}
	for _, expiryPath := range matches {
		if c.expiredLocked(expiryPath) {
			valuePath := strings.TrimSuffix(expiryPath, ".expires") + ".json"
			_ = os.Remove(valuePath)
			_ = os.Remove(expiryPath)
		}
	}
}

// writeLocked goes through a temp file and rename.
func (c *FileCache) writeLocked(target, value string) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
