package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPSDESK_REQUEST_TIMEOUT_SECONDS", "")

	cfg := Load("")
	if cfg.Addr == "" {
		t.Fatal("expected default addr")
	}
	if cfg.RemoteConfigured() {
		t.Fatal("expected local mode when DATABASE_URL is empty")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected 10s request timeout, got %s", cfg.RequestTimeout)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MEILI_URL=http://meili:7700\nOPSDESK_REQUEST_TIMEOUT_SECONDS=3\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("MEILI_URL", "")
	t.Setenv("OPSDESK_REQUEST_TIMEOUT_SECONDS", "")
	os.Unsetenv("MEILI_URL")
	os.Unsetenv("OPSDESK_REQUEST_TIMEOUT_SECONDS")

	cfg := Load(path)
	if cfg.MeiliURL != "http://meili:7700" {
		t.Fatalf("expected MEILI_URL from env file, got %q", cfg.MeiliURL)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.RequestTimeout)
	}
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("OPSDESK_ACCESS_TTL_SECONDS", "soon")
	if got := getenvInt("OPSDESK_ACCESS_TTL_SECONDS", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}
