package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"opsdesk/api/internal/search"
	"opsdesk/api/internal/store"
)

const (
	maxSuggestions   = 5
	summaryInputCap  = 2000
	fallbackCutoff   = 200
	summaryPromptFmt = "Summarize the following document in two or three sentences for a knowledge base listing. " +
		"Reply with the summary only.\n\n%s"
)

// Search clears results for a blank query. In local mode it matches title,
// content and tags of every in-memory document; in remote mode it asks the
// search service for published documents only.
func (w *Workflow) Search(ctx context.Context, query string) []store.Document {
	query = strings.TrimSpace(query)
	if query == "" {
		w.mu.Lock()
		w.searchResults = []store.Document{}
		w.mu.Unlock()
		return []store.Document{}
	}

	var results []store.Document
	if w.backend.Mode() == store.ModeLocal {
		results = w.searchLocal(query)
	} else {
		results = w.searchRemote(ctx, query)
	}

	w.mu.Lock()
	w.searchResults = cloneAll(results)
	w.mu.Unlock()
	return results
}

func (w *Workflow) searchLocal(query string) []store.Document {
	needle := strings.ToLower(query)
	w.mu.RLock()
	defer w.mu.RUnlock()

	results := make([]store.Document, 0)
	for _, doc := range w.documents {
		if strings.Contains(strings.ToLower(doc.Title), needle) ||
			strings.Contains(strings.ToLower(doc.Content), needle) ||
			anyTagContains(doc.Tags, needle) {
			results = append(results, doc.Clone())
		}
	}
	return results
}

func (w *Workflow) searchRemote(ctx context.Context, query string) []store.Document {
	callCtx, cancel := w.call(ctx)
	defer cancel()

	var (
		docs []store.Document
		err  error
	)
	if w.searcher != nil {
		docs, err = w.searcher.Search(callCtx, query, search.DefaultLimit)
	} else {
		docs, err = w.backend.SearchPublished(callCtx, query, search.DefaultLimit)
	}
	if err != nil {
		w.log.Warn().Err(err).Str("query", query).Msg("search documents")
		return []store.Document{}
	}
	if len(docs) > search.DefaultLimit {
		docs = docs[:search.DefaultLimit]
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs
}

// GetAISuggestions ranks published documents by keyword overlap with text:
// three points per token found in the title, one in the content and two in
// any tag. Only positive scores are kept, best five first.
func (w *Workflow) GetAISuggestions(text string) []store.Document {
	tokens := suggestionTokens(text)

	type scored struct {
		doc   store.Document
		score int
	}
	var ranked []scored

	w.mu.RLock()
	for _, doc := range w.documents {
		if doc.Status != store.StatusPublished {
			continue
		}
		if score := scoreDocument(doc, tokens); score > 0 {
			ranked = append(ranked, scored{doc: doc.Clone(), score: score})
		}
	}
	w.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}

	out := make([]store.Document, 0, len(ranked))
	for _, item := range ranked {
		out = append(out, item.doc)
	}

	w.mu.Lock()
	w.suggestions = cloneAll(out)
	w.mu.Unlock()
	return out
}

func suggestionTokens(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(field) > 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

func scoreDocument(doc store.Document, tokens []string) int {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	score := 0
	for _, token := range tokens {
		if strings.Contains(title, token) {
			score += 3
		}
		if strings.Contains(content, token) {
			score++
		}
		if anyTagContains(doc.Tags, token) {
			score += 2
		}
	}
	return score
}

func anyTagContains(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// GenerateSummary asks the summarizer for a short summary. Any failure
// falls back to the first 200 characters followed by "...".
func (w *Workflow) GenerateSummary(ctx context.Context, content string) string {
	if w.summarizer != nil {
		callCtx, cancel := w.call(ctx)
		text, err := w.summarizer.Summarize(callCtx, fmt.Sprintf(summaryPromptFmt, truncateRunes(content, summaryInputCap)))
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("generate summary, using local fallback")
		}
	}
	return FallbackSummary(content)
}

func FallbackSummary(content string) string {
	return truncateRunes(content, fallbackCutoff) + "..."
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Slugify lowercases title, collapses every run of characters outside
// [a-z0-9] into a hyphen and appends the base-36 creation time in
// milliseconds.
func Slugify(title string, at time.Time) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	suffix := strconv.FormatInt(at.UnixMilli(), 36)
	if b.Len() == 0 {
		return suffix
	}
	return b.String() + "-" + suffix
}

func RestoreSummary(versionNumber int) string {
	return fmt.Sprintf("Restored from version %d", versionNumber)
}
