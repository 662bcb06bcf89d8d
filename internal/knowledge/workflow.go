// Package knowledge runs the document lifecycle for one client session:
// loading, editing with automatic version snapshots, search, linking and
// suggestions. Failures are logged and reported as nil/false/empty results.
package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opsdesk/api/internal/archive"
	"opsdesk/api/internal/markdown"
	"opsdesk/api/internal/notify"
	"opsdesk/api/internal/rbac"
	"opsdesk/api/internal/search"
	"opsdesk/api/internal/store"
)

type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

type Archiver interface {
	Record(doc store.Document, author, message string) (archive.Commit, error)
}

// Options wires a Workflow. Backend and Actor are required; every other
// collaborator may be left nil.
type Options struct {
	Backend    store.Backend
	Mirror     *store.Mirror
	Actor      rbac.ProfileSource
	Notifier   notify.Sink
	Summarizer Summarizer
	Searcher   search.Searcher
	Indexer    search.Indexer
	Archiver   Archiver
	Logger     zerolog.Logger
	// Timeout bounds each backend call. Zero disables the bound.
	Timeout time.Duration
	Now     func() time.Time
}

// Draft carries the fields accepted when creating a document.
type Draft struct {
	Title    string               `json:"title"`
	Content  string               `json:"content"`
	Summary  string               `json:"summary"`
	Category string               `json:"category"`
	Tags     []string             `json:"tags"`
	Status   store.DocumentStatus `json:"status"`
	ParentID *string              `json:"parentId"`
	IsPinned bool                 `json:"isPinned"`
}

type Workflow struct {
	backend    store.Backend
	mirror     *store.Mirror
	actor      rbac.ProfileSource
	notifier   notify.Sink
	summarizer Summarizer
	searcher   search.Searcher
	indexer    search.Indexer
	archiver   Archiver
	log        zerolog.Logger
	timeout    time.Duration
	now        func() time.Time

	mu            sync.RWMutex
	documents     []store.Document
	selected      *store.Document
	searchResults []store.Document
	suggestions   []store.Document
	loading       bool
}

func New(opts Options) *Workflow {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		backend:       opts.Backend,
		mirror:        opts.Mirror,
		actor:         opts.Actor,
		notifier:      opts.Notifier,
		summarizer:    opts.Summarizer,
		searcher:      opts.Searcher,
		indexer:       opts.Indexer,
		archiver:      opts.Archiver,
		log:           opts.Logger.With().Str("component", "knowledge").Logger(),
		timeout:       opts.Timeout,
		now:           now,
		documents:     []store.Document{},
		searchResults: []store.Document{},
		suggestions:   []store.Document{},
	}
}

func (w *Workflow) Mode() store.Mode {
	return w.backend.Mode()
}

func (w *Workflow) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.timeout)
}

func (w *Workflow) notify(level notify.Level, message string) {
	if w.notifier != nil {
		w.notifier.Notify(level, message)
	}
}

func (w *Workflow) currentActor() (store.Profile, bool) {
	if w.actor == nil {
		return store.Profile{}, false
	}
	profile, ok := w.actor.ActiveProfile()
	if !ok || profile.ID == "" {
		return store.Profile{}, false
	}
	return profile, true
}

// LoadDocuments replaces the in-memory list with the backend's documents,
// newest update first. On failure the local mirror is used instead.
func (w *Workflow) LoadDocuments(ctx context.Context) []store.Document {
	w.setLoading(true)
	defer w.setLoading(false)

	callCtx, cancel := w.call(ctx)
	docs, err := w.backend.ListDocuments(callCtx)
	cancel()

	if err == nil {
		if docs == nil {
			docs = []store.Document{}
		}
		if w.backend.Mode() == store.ModeRemote {
			w.saveMirror(ctx, docs)
		}
	} else {
		w.log.Warn().Err(err).Msg("load documents failed, reading local mirror")
		docs = w.loadMirror(ctx)
	}

	w.mu.Lock()
	w.documents = cloneAll(docs)
	w.mu.Unlock()
	return cloneAll(docs)
}

// GetDocument fetches one document with versions and links and counts the
// view. Returns nil when the document cannot be read.
func (w *Workflow) GetDocument(ctx context.Context, id string) *store.Document {
	callCtx, cancel := w.call(ctx)
	defer cancel()

	doc, err := w.backend.GetDocument(callCtx, id)
	if err != nil {
		w.logReadError(err, id, "get document")
		return nil
	}

	count, err := w.backend.IncrementViewCount(callCtx, id)
	if err != nil {
		w.log.Warn().Err(err).Str("document_id", id).Msg("increment view count")
	} else {
		doc.ViewCount = count
	}

	w.mu.Lock()
	selected := doc.Clone()
	w.selected = &selected
	if idx := indexOf(w.documents, id); idx >= 0 {
		w.documents[idx].ViewCount = doc.ViewCount
	}
	w.mu.Unlock()

	out := doc.Clone()
	return &out
}

// CreateDocument needs a signed-in actor and a title. The slug is derived
// here once and never recomputed.
func (w *Workflow) CreateDocument(ctx context.Context, draft Draft) *store.Document {
	actor, ok := w.currentActor()
	if !ok {
		w.notify(notify.LevelError, "Sign in to create documents")
		return nil
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		w.notify(notify.LevelError, "Document title is required")
		return nil
	}

	status := draft.Status
	if !status.Valid() {
		status = store.StatusDraft
	}
	tags := append([]string{}, draft.Tags...)
	now := w.now()
	doc := store.Document{
		Title:       title,
		Slug:        Slugify(title, now),
		Content:     draft.Content,
		ContentHTML: markdown.ToHTML(draft.Content),
		Summary:     draft.Summary,
		Category:    draft.Category,
		Tags:        tags,
		Status:      status,
		AuthorID:    actor.ID,
		AuthorName:  actor.DisplayName,
		ParentID:    draft.ParentID,
		IsPinned:    draft.IsPinned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	callCtx, cancel := w.call(ctx)
	created, err := w.backend.InsertDocument(callCtx, doc)
	cancel()
	if err != nil {
		w.log.Error().Err(err).Str("title", title).Msg("create document")
		w.notify(notify.LevelError, "Failed to create document")
		return nil
	}
	if created.AuthorName == "" {
		created.AuthorName = actor.DisplayName
	}

	w.mu.Lock()
	w.documents = append([]store.Document{created.Clone()}, w.documents...)
	w.mu.Unlock()

	w.afterWrite(ctx, created, actor, "Create document")
	w.notify(notify.LevelSuccess, "Document created")
	out := created.Clone()
	return &out
}

// UpdateDocument applies patch. The backend first stores the document's
// persisted title and content as the next version. HTML is re-rendered only
// when the patch carries content.
func (w *Workflow) UpdateDocument(ctx context.Context, id string, patch store.DocumentPatch, changeSummary string) bool {
	actor, ok := w.currentActor()
	if !ok {
		w.notify(notify.LevelError, "Sign in to edit documents")
		return false
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		w.notify(notify.LevelError, "Document title is required")
		return false
	}

	patch.ContentHTML = nil
	if patch.Content != nil {
		html := markdown.ToHTML(*patch.Content)
		patch.ContentHTML = &html
	}
	patch.UpdatedAt = w.now()

	snapshot := &store.VersionDraft{ChangeSummary: changeSummary, AuthorID: actor.ID}

	callCtx, cancel := w.call(ctx)
	err := w.backend.UpdateDocument(callCtx, id, patch, snapshot)
	cancel()
	if err != nil {
		w.log.Error().Err(err).Str("document_id", id).Msg("update document")
		w.notify(notify.LevelError, "Failed to update document")
		return false
	}

	var updated *store.Document
	w.mu.Lock()
	if idx := indexOf(w.documents, id); idx >= 0 {
		patch.Apply(&w.documents[idx])
		doc := w.documents[idx].Clone()
		updated = &doc
	}
	if w.selected != nil && w.selected.ID == id {
		patch.Apply(w.selected)
		if updated == nil {
			doc := w.selected.Clone()
			updated = &doc
		}
	}
	w.mu.Unlock()

	if updated == nil {
		callCtx, cancel := w.call(ctx)
		doc, err := w.backend.GetDocument(callCtx, id)
		cancel()
		if err != nil {
			w.logReadError(err, id, "reload updated document")
		} else {
			updated = &doc
		}
	}

	if updated != nil {
		message := changeSummary
		if strings.TrimSpace(message) == "" {
			message = "Update document"
		}
		w.afterWrite(ctx, *updated, actor, message)
	}
	w.notify(notify.LevelSuccess, "Document updated")
	return true
}

// DeleteDocument removes the document only. Its versions and links stay.
func (w *Workflow) DeleteDocument(ctx context.Context, id string) bool {
	callCtx, cancel := w.call(ctx)
	err := w.backend.DeleteDocument(callCtx, id)
	cancel()
	if err != nil {
		w.log.Error().Err(err).Str("document_id", id).Msg("delete document")
		w.notify(notify.LevelError, "Failed to delete document")
		return false
	}

	w.mu.Lock()
	w.documents = without(w.documents, id)
	w.searchResults = without(w.searchResults, id)
	w.suggestions = without(w.suggestions, id)
	if w.selected != nil && w.selected.ID == id {
		w.selected = nil
	}
	remaining := cloneAll(w.documents)
	w.mu.Unlock()

	if w.indexer != nil {
		w.indexer.DeleteDocument(id)
	}
	if w.backend.Mode() == store.ModeRemote {
		w.saveMirror(ctx, remaining)
	}
	w.notify(notify.LevelSuccess, "Document deleted")
	return true
}

// CreateVersion snapshots the current state of the document without
// changing it.
func (w *Workflow) CreateVersion(ctx context.Context, documentID, changeSummary string) *store.DocumentVersion {
	actor, ok := w.currentActor()
	if !ok {
		return nil
	}

	callCtx, cancel := w.call(ctx)
	defer cancel()

	current, err := w.backend.GetDocument(callCtx, documentID)
	if err != nil {
		w.logReadError(err, documentID, "load document for version")
		return nil
	}

	version, err := w.backend.InsertVersion(callCtx, documentID, store.VersionDraft{
		Title:         current.Title,
		Content:       current.Content,
		ChangeSummary: changeSummary,
		AuthorID:      actor.ID,
	})
	if err != nil {
		w.log.Error().Err(err).Str("document_id", documentID).Msg("create version")
		return nil
	}
	return &version
}

// GetVersions returns the document's versions, highest number first.
func (w *Workflow) GetVersions(ctx context.Context, documentID string) []store.DocumentVersion {
	callCtx, cancel := w.call(ctx)
	defer cancel()
	versions, err := w.backend.ListVersions(callCtx, documentID)
	if err != nil {
		w.log.Warn().Err(err).Str("document_id", documentID).Msg("list versions")
		return []store.DocumentVersion{}
	}
	if versions == nil {
		versions = []store.DocumentVersion{}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})
	return versions
}

// RestoreVersion writes version's title and content back onto the
// document. The state being replaced is itself snapshotted first.
func (w *Workflow) RestoreVersion(ctx context.Context, documentID string, version store.DocumentVersion) bool {
	title := version.Title
	content := version.Content
	return w.UpdateDocument(ctx, documentID, store.DocumentPatch{
		Title:   &title,
		Content: &content,
	}, RestoreSummary(version.VersionNumber))
}

// LinkDocument associates the document with another entity. Links need the
// remote backend; local mode always reports false.
func (w *Workflow) LinkDocument(ctx context.Context, documentID string, linkedType store.LinkType, linkedID, linkedTitle string) (store.DocumentLink, bool) {
	if w.backend.Mode() != store.ModeRemote {
		return store.DocumentLink{}, false
	}
	if !linkedType.Valid() || strings.TrimSpace(linkedID) == "" {
		return store.DocumentLink{}, false
	}

	callCtx, cancel := w.call(ctx)
	link, err := w.backend.InsertLink(callCtx, store.DocumentLink{
		DocumentID:  documentID,
		LinkedType:  linkedType,
		LinkedID:    linkedID,
		LinkedTitle: linkedTitle,
	})
	cancel()
	if err != nil {
		w.log.Error().Err(err).Str("document_id", documentID).Msg("link document")
		return store.DocumentLink{}, false
	}

	w.mu.Lock()
	if w.selected != nil && w.selected.ID == documentID {
		w.selected.Links = append(w.selected.Links, link)
	}
	w.mu.Unlock()
	return link, true
}

func (w *Workflow) UnlinkDocument(ctx context.Context, linkID string) bool {
	if w.backend.Mode() != store.ModeRemote {
		return false
	}

	callCtx, cancel := w.call(ctx)
	err := w.backend.DeleteLink(callCtx, linkID)
	cancel()
	if err != nil {
		w.log.Error().Err(err).Str("link_id", linkID).Msg("unlink document")
		return false
	}

	w.mu.Lock()
	if w.selected != nil {
		links := w.selected.Links[:0]
		for _, link := range w.selected.Links {
			if link.ID != linkID {
				links = append(links, link)
			}
		}
		w.selected.Links = links
	}
	w.mu.Unlock()
	return true
}

func (w *Workflow) afterWrite(ctx context.Context, doc store.Document, actor store.Profile, message string) {
	if w.indexer != nil {
		w.indexer.IndexDocument(doc)
	}
	if w.archiver != nil {
		if _, err := w.archiver.Record(doc, actor.DisplayName, message); err != nil {
			w.log.Warn().Err(err).Str("document_id", doc.ID).Msg("archive document")
		}
	}
	if w.backend.Mode() == store.ModeRemote {
		w.saveMirror(ctx, w.Documents())
	}
}

func (w *Workflow) saveMirror(ctx context.Context, docs []store.Document) {
	if w.mirror == nil {
		return
	}
	if err := w.mirror.Save(ctx, docs); err != nil {
		w.log.Warn().Err(err).Msg("save local mirror")
	}
}

func (w *Workflow) loadMirror(ctx context.Context) []store.Document {
	if w.mirror == nil {
		return []store.Document{}
	}
	docs, err := w.mirror.Load(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("read local mirror")
	}
	return docs
}

func (w *Workflow) logReadError(err error, id, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		w.log.Debug().Str("document_id", id).Msg(msg + ": not found")
		return
	}
	w.log.Warn().Err(err).Str("document_id", id).Msg(msg)
}

func (w *Workflow) setLoading(v bool) {
	w.mu.Lock()
	w.loading = v
	w.mu.Unlock()
}

func indexOf(docs []store.Document, id string) int {
	for i := range docs {
		if docs[i].ID == id {
			return i
		}
	}
	return -1
}

func without(docs []store.Document, id string) []store.Document {
	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID != id {
			out = append(out, doc)
		}
	}
	return out
}

func cloneAll(docs []store.Document) []store.Document {
	out := make([]store.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Clone())
	}
	return out
}
