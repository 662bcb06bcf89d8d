package knowledge

import (
	"context"
	"sync"
	"time"

	"opsdesk/api/internal/archive"
	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/logging"
	"opsdesk/api/internal/notify"
	"opsdesk/api/internal/store"
)

// fakeBackend embeds a LocalStore so tests only override what they need.
type fakeBackend struct {
	*store.LocalStore
	mode store.Mode

	listDocuments  func(ctx context.Context) ([]store.Document, error)
	getDocument    func(ctx context.Context, id string) (store.Document, error)
	insertDocument func(ctx context.Context, doc store.Document) (store.Document, error)
	updateDocument func(ctx context.Context, id string, patch store.DocumentPatch, snapshot *store.VersionDraft) error
	insertLink     func(ctx context.Context, link store.DocumentLink) (store.DocumentLink, error)
	deleteLink     func(ctx context.Context, linkID string) error
	searchPublish  func(ctx context.Context, query string, limit int) ([]store.Document, error)
}

func newFakeBackend(mode store.Mode) *fakeBackend {
	return &fakeBackend{LocalStore: store.NewLocalStore(localcache.NewMemory()), mode: mode}
}

func (f *fakeBackend) Mode() store.Mode { return f.mode }

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]store.Document, error) {
	if f.listDocuments != nil {
		return f.listDocuments(ctx)
	}
	return f.LocalStore.ListDocuments(ctx)
}

func (f *fakeBackend) GetDocument(ctx context.Context, id string) (store.Document, error) {
	if f.getDocument != nil {
		return f.getDocument(ctx, id)
	}
	return f.LocalStore.GetDocument(ctx, id)
}

func (f *fakeBackend) InsertDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	if f.insertDocument != nil {
		return f.insertDocument(ctx, doc)
	}
	return f.LocalStore.InsertDocument(ctx, doc)
}

func (f *fakeBackend) UpdateDocument(ctx context.Context, id string, patch store.DocumentPatch, snapshot *store.VersionDraft) error {
	if f.updateDocument != nil {
		return f.updateDocument(ctx, id, patch, snapshot)
	}
	return f.LocalStore.UpdateDocument(ctx, id, patch, snapshot)
}

func (f *fakeBackend) InsertLink(ctx context.Context, link store.DocumentLink) (store.DocumentLink, error) {
	if f.insertLink != nil {
		return f.insertLink(ctx, link)
	}
	return f.LocalStore.InsertLink(ctx, link)
}

func (f *fakeBackend) DeleteLink(ctx context.Context, linkID string) error {
	if f.deleteLink != nil {
		return f.deleteLink(ctx, linkID)
	}
	return f.LocalStore.DeleteLink(ctx, linkID)
}

func (f *fakeBackend) SearchPublished(ctx context.Context, query string, limit int) ([]store.Document, error) {
	if f.searchPublish != nil {
		return f.searchPublish(ctx, query, limit)
	}
	return f.LocalStore.SearchPublished(ctx, query, limit)
}

type fixedActor struct {
	profile store.Profile
	ok      bool
}

func (a fixedActor) ActiveProfile() (store.Profile, bool) { return a.profile, a.ok }

var member = fixedActor{profile: store.Profile{ID: "user-1", DisplayName: "Avery", Role: "member", Active: true}, ok: true}

type fakeSummarizer struct {
	summarize func(ctx context.Context, prompt string) (string, error)
}

func (f fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	return f.summarize(ctx, prompt)
}

type fakeSearcher struct {
	search func(ctx context.Context, text string, limit int) ([]store.Document, error)
}

func (f fakeSearcher) Search(ctx context.Context, text string, limit int) ([]store.Document, error) {
	return f.search(ctx, text, limit)
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []string
	deleted []string
}

func (r *recordingIndexer) IndexDocument(doc store.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, doc.ID)
}

func (r *recordingIndexer) DeleteDocument(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

type recordingArchiver struct {
	messages []string
}

func (r *recordingArchiver) Record(doc store.Document, author, message string) (archive.Commit, error) {
	r.messages = append(r.messages, message)
	return archive.Commit{Hash: "abc1234", Message: message, Author: author}, nil
}

func newTestWorkflow(backend store.Backend, opts ...func(*Options)) (*Workflow, *notify.Feed) {
	feed := notify.NewFeed(20)
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	o := Options{
		Backend:  backend,
		Mirror:   store.NewMirror(localcache.NewMemory()),
		Actor:    member,
		Notifier: feed,
		Logger:   logging.Nop(),
		Timeout:  time.Second,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o), feed
}
