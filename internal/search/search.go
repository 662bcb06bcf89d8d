package search

import (
	"context"
	"strings"
	"time"

	"opsdesk/api/internal/store"
)

// DefaultLimit caps remote search results.
const DefaultLimit = 20

// Record is the data we index for a document. Content is indexed so hits
// can be matched on body text like the database fallback does.
type Record struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Content    string   `json:"content"`
	Summary    string   `json:"summary"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Status     string   `json:"status"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
	IsPinned   bool     `json:"isPinned"`
	ViewCount  int      `json:"viewCount"`
	CreatedAt  int64    `json:"createdAt"`
	UpdatedAt  int64    `json:"updatedAt"`
}

func RecordFromDocument(doc store.Document) Record {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return Record{
		ID:         doc.ID,
		Title:      doc.Title,
		Slug:       doc.Slug,
		Content:    doc.Content,
		Summary:    doc.Summary,
		Category:   doc.Category,
		Tags:       tags,
		Status:     string(doc.Status),
		AuthorID:   doc.AuthorID,
		AuthorName: doc.AuthorName,
		IsPinned:   doc.IsPinned,
		ViewCount:  doc.ViewCount,
		CreatedAt:  doc.CreatedAt.UnixMilli(),
		UpdatedAt:  doc.UpdatedAt.UnixMilli(),
	}
}

// Matches reports whether query occurs in the title or content, ignoring
// case. An empty query matches everything.
func (r Record) Matches(query string) bool {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Title), needle) ||
		strings.Contains(strings.ToLower(r.Content), needle)
}

// Document converts a hit back into the list shape the workflow stores.
// ContentHTML is not indexed and stays empty.
func (r Record) Document() store.Document {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return store.Document{
		ID:         r.ID,
		Title:      r.Title,
		Slug:       r.Slug,
		Content:    r.Content,
		Summary:    r.Summary,
		Category:   r.Category,
		Tags:       tags,
		Status:     store.DocumentStatus(r.Status),
		AuthorID:   r.AuthorID,
		AuthorName: r.AuthorName,
		IsPinned:   r.IsPinned,
		ViewCount:  r.ViewCount,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// Searcher finds published documents matching free text.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]store.Document, error)
}

// Indexer pushes document changes into the search index.
type Indexer interface {
	IndexDocument(doc store.Document)
	DeleteDocument(id string)
}
