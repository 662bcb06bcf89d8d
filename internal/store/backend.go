package store

import "context"

// Backend is the persistence capability used by the knowledge workflow and
// the identity layer. Implementations are chosen once at startup.
type Backend interface {
	Mode() Mode
	Ping(ctx context.Context) error

	ListDocuments(ctx context.Context) ([]Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	// UpdateDocument applies patch. When snapshot is non-nil the stored
	// title and content are first recorded as the next version, read under
	// the same lock as the write.
	UpdateDocument(ctx context.Context, id string, patch DocumentPatch, snapshot *VersionDraft) error
	DeleteDocument(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) (int, error)

	InsertVersion(ctx context.Context, documentID string, draft VersionDraft) (DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error)

	InsertLink(ctx context.Context, link DocumentLink) (DocumentLink, error)
	DeleteLink(ctx context.Context, linkID string) error

	SearchPublished(ctx context.Context, query string, limit int) ([]Document, error)

	GetProfile(ctx context.Context, id string) (Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) (Profile, error)
}
