package store

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured is returned by operations that have no local fallback.
	ErrNotConfigured = errors.New("backend not configured")
	ErrNotFound      = errors.New("not found")
)

type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusPublished DocumentStatus = "published"
	StatusArchived  DocumentStatus = "archived"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	default:
		return false
	}
}

type LinkType string

const (
	LinkTask      LinkType = "task"
	LinkProject   LinkType = "project"
	LinkObjective LinkType = "objective"
	LinkDocument  LinkType = "document"
)

func (t LinkType) Valid() bool {
	switch t {
	case LinkTask, LinkProject, LinkObjective, LinkDocument:
		return true
	default:
		return false
	}
}

type Document struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug,omitempty"`
	Content     string            `json:"content"`
	ContentHTML string            `json:"contentHtml"`
	Summary     string            `json:"summary"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Status      DocumentStatus    `json:"status"`
	AuthorID    string            `json:"authorId"`
	AuthorName  string            `json:"authorName,omitempty"`
	ParentID    *string           `json:"parentId,omitempty"`
	ViewCount   int               `json:"viewCount"`
	IsPinned    bool              `json:"isPinned"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Versions    []DocumentVersion `json:"versions,omitempty"`
	Links       []DocumentLink    `json:"links,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d Document) Clone() Document {
	out := d
	if d.Tags != nil {
		out.Tags = make([]string, len(d.Tags))
		copy(out.Tags, d.Tags)
	}
	if d.ParentID != nil {
		parent := *d.ParentID
		out.ParentID = &parent
	}
	if d.Versions != nil {
		out.Versions = make([]DocumentVersion, len(d.Versions))
		copy(out.Versions, d.Versions)
	}
	if d.Links != nil {
		out.Links = make([]DocumentLink, len(d.Links))
		copy(out.Links, d.Links)
	}
	return out
}

type DocumentVersion struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	VersionNumber int       `json:"versionNumber"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	ChangeSummary string    `json:"changeSummary,omitempty"`
	AuthorID      string    `json:"authorId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type DocumentLink struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	LinkedType  LinkType  `json:"linkedType"`
	LinkedID    string    `json:"linkedId"`
	LinkedTitle string    `json:"linkedTitle,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DocumentPatch is a partial update; nil fields are left untouched.
type DocumentPatch struct {
	Title       *string         `json:"title,omitempty"`
	Content     *string         `json:"content,omitempty"`
	ContentHTML *string         `json:"-"`
	Summary     *string         `json:"summary,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Tags        *[]string       `json:"tags,omitempty"`
	Status      *DocumentStatus `json:"status,omitempty"`
	ParentID    *string         `json:"parentId,omitempty"`
	IsPinned    *bool           `json:"isPinned,omitempty"`
	UpdatedAt   time.Time       `json:"-"`
}

// Apply writes the set fields of p onto d and stamps UpdatedAt.
func (p DocumentPatch) Apply(d *Document) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.ContentHTML != nil {
		d.ContentHTML = *p.ContentHTML
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Tags != nil {
		d.Tags = make([]string, len(*p.Tags))
		copy(d.Tags, *p.Tags)
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.ParentID != nil {
		if *p.ParentID == "" {
			d.ParentID = nil
		} else {
			parent := *p.ParentID
			d.ParentID = &parent
		}
	}
	if p.IsPinned != nil {
		d.IsPinned = *p.IsPinned
	}
	if !p.UpdatedAt.IsZero() {
		d.UpdatedAt = p.UpdatedAt
	}
}

// VersionDraft describes a version to record. The backend assigns ID and
// VersionNumber. When passed to UpdateDocument only ChangeSummary and
// AuthorID are used; title and content come from the stored row.
type VersionDraft struct {
	Title         string
	Content       string
	ChangeSummary string
	AuthorID      string
}
