package knowledge

import (
	"sort"
	"strings"

	"opsdesk/api/internal/store"
)

// Documents returns a copy of the in-memory list.
func (w *Workflow) Documents() []store.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneAll(w.documents)
}

func (w *Workflow) Selected() *store.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.selected == nil {
		return nil
	}
	doc := w.selected.Clone()
	return &doc
}

func (w *Workflow) SearchResults() []store.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneAll(w.searchResults)
}

func (w *Workflow) Suggestions() []store.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneAll(w.suggestions)
}

func (w *Workflow) Loading() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loading
}

// Select marks an in-memory document as selected without fetching it or
// counting a view.
func (w *Workflow) Select(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		w.selected = nil
		return true
	}
	idx := indexOf(w.documents, id)
	if idx < 0 {
		return false
	}
	doc := w.documents[idx].Clone()
	w.selected = &doc
	return true
}

// Recent returns up to n documents, most recently updated first.
func (w *Workflow) Recent(n int) []store.Document {
	docs := w.Documents()
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	if n > 0 && len(docs) > n {
		docs = docs[:n]
	}
	return docs
}

func (w *Workflow) Pinned() []store.Document {
	out := make([]store.Document, 0)
	for _, doc := range w.Documents() {
		if doc.IsPinned {
			out = append(out, doc)
		}
	}
	return out
}

// Categories lists the distinct non-blank categories, sorted.
func (w *Workflow) Categories() []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, doc := range w.Documents() {
		category := strings.TrimSpace(doc.Category)
		if category == "" || seen[category] {
			continue
		}
		seen[category] = true
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Reset drops all session state, used on sign-out.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documents = []store.Document{}
	w.selected = nil
	w.searchResults = []store.Document{}
	w.suggestions = []store.Document{}
}
