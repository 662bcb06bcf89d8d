package archive

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"opsdesk/api/internal/store"
)

func TestRecordCreatesRepoAndHistory(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)
	doc := store.Document{ID: "doc-1", Title: "Runbook", Content: "first", Status: store.StatusDraft}

	first, err := svc.Record(doc, "Avery Ops", "Create document")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" || first.Author != "Avery Ops" {
		t.Fatalf("unexpected commit %+v", first)
	}
	if _, err := os.Stat(filepath.Join(dir, "doc-1", ".git")); err != nil {
		t.Fatalf("repo missing: %v", err)
	}

	doc.Content = "second"
	second, err := svc.Record(doc, "Avery Ops", "Tighten wording")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Message != "Tighten wording" || history[1].Message != "Create document" {
		t.Fatalf("unexpected history %+v", history)
	}

	old, err := svc.ContentAt("doc-1", first.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if old != "# Runbook\n\nfirst\n" {
		t.Fatalf("unexpected archived content %q", old)
	}
	latest, err := svc.ContentAt("doc-1", second.Hash)
	if err != nil || !strings.Contains(latest, "second") {
		t.Fatalf("unexpected latest content %q %v", latest, err)
	}
}

func TestRecordSkipsUnchangedDocument(t *testing.T) {
	svc := New(t.TempDir())
	doc := store.Document{ID: "doc-1", Title: "Same", Content: "body"}
	if _, err := svc.Record(doc, "a", "Create document"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	commit, err := svc.Record(doc, "a", "No-op")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if commit.Hash != "" {
		t.Fatalf("expected no commit for unchanged doc, got %+v", commit)
	}
	history, _ := svc.History("doc-1", 0)
	if len(history) != 1 {
		t.Fatalf("expected one commit, got %d", len(history))
	}
}

func TestHistoryWithoutRepoIsEmpty(t *testing.T) {
	history, err := New(t.TempDir()).History("missing", 5)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v %v", history, err)
	}
}

func TestRecordConcurrentWritesSerialize(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := store.Document{ID: "doc-1", Title: "T", Content: strings.Repeat("x", n+1)}
			if _, err := svc.Record(doc, "writer", "edit"); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
	history, err := svc.History("doc-1", 0)
	if err != nil || len(history) != 5 {
		t.Fatalf("expected 5 commits, got %d (%v)", len(history), err)
	}
}

func TestSanitizePath(t *testing.T) {
	if got := sanitizePath("../etc/passwd"); strings.Contains(got, "/") || strings.Contains(got, "..") {
		t.Fatalf("unsafe path %q", got)
	}
}
