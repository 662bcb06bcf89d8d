package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opsdesk/api/internal/util"
)

// Open connects to Postgres through the pgx database/sql driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Mode() Mode { return ModeRemote }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `
	d.id, d.title, COALESCE(d.slug, ''), d.content, d.content_html, d.summary, d.category,
	COALESCE(array_to_json(d.tags)::text, '[]'), d.status, d.author_id, COALESCE(p.display_name, ''),
	d.parent_id, d.view_count, d.is_pinned, d.created_at, d.updated_at
`

const documentFrom = `
	FROM documents d
	LEFT JOIN profiles p ON p.id::text = d.author_id
`

// documentRow mirrors one row of the documents table joined with the
// author's display name.
type documentRow struct {
	ID          string
	Title       string
	Slug        string
	Content     string
	ContentHTML string
	Summary     string
	Category    string
	TagsJSON    string
	Status      string
	AuthorID    string
	AuthorName  string
	ParentID    sql.NullString
	ViewCount   int
	IsPinned    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *documentRow) scanTargets() []any {
	return []any{
		&r.ID, &r.Title, &r.Slug, &r.Content, &r.ContentHTML, &r.Summary, &r.Category,
		&r.TagsJSON, &r.Status, &r.AuthorID, &r.AuthorName,
		&r.ParentID, &r.ViewCount, &r.IsPinned, &r.CreatedAt, &r.UpdatedAt,
	}
}

func (r documentRow) toDomain() Document {
	doc := Document{
		ID:          r.ID,
		Title:       r.Title,
		Slug:        r.Slug,
		Content:     r.Content,
		ContentHTML: r.ContentHTML,
		Summary:     r.Summary,
		Category:    r.Category,
		Tags:        decodeTags(r.TagsJSON),
		Status:      DocumentStatus(r.Status),
		AuthorID:    r.AuthorID,
		AuthorName:  r.AuthorName,
		ViewCount:   r.ViewCount,
		IsPinned:    r.IsPinned,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentID.Valid {
		parent := r.ParentID.String
		doc.ParentID = &parent
	}
	return doc
}

func documentRowFromDomain(doc Document) documentRow {
	row := documentRow{
		ID:          doc.ID,
		Title:       doc.Title,
		Slug:        doc.Slug,
		Content:     doc.Content,
		ContentHTML: doc.ContentHTML,
		Summary:     doc.Summary,
		Category:    doc.Category,
		TagsJSON:    encodeTags(doc.Tags),
		Status:      string(doc.Status),
		AuthorID:    doc.AuthorID,
		ViewCount:   doc.ViewCount,
		IsPinned:    doc.IsPinned,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if doc.ParentID != nil && *doc.ParentID != "" {
		row.ParentID = sql.NullString{String: *doc.ParentID, Valid: true}
	}
	if row.Status == "" {
		row.Status = string(StatusDraft)
	}
	return row
}

type versionRow struct {
	ID            string
	DocumentID    string
	VersionNumber int
	Title         string
	Content       string
	ChangeSummary sql.NullString
	AuthorID      string
	CreatedAt     time.Time
}

func (r versionRow) toDomain() DocumentVersion {
	return DocumentVersion{
		ID:            r.ID,
		DocumentID:    r.DocumentID,
		VersionNumber: r.VersionNumber,
		Title:         r.Title,
		Content:       r.Content,
		ChangeSummary: r.ChangeSummary.String,
		AuthorID:      r.AuthorID,
		CreatedAt:     r.CreatedAt,
	}
}

type linkRow struct {
	ID          string
	DocumentID  string
	LinkedType  string
	LinkedID    string
	LinkedTitle sql.NullString
	CreatedAt   time.Time
}

func (r linkRow) toDomain() DocumentLink {
	return DocumentLink{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		LinkedType:  LinkType(r.LinkedType),
		LinkedID:    r.LinkedID,
		LinkedTitle: r.LinkedTitle.String,
		CreatedAt:   r.CreatedAt,
	}
}

func linkRowFromDomain(link DocumentLink) linkRow {
	return linkRow{
		ID:          link.ID,
		DocumentID:  link.DocumentID,
		LinkedType:  string(link.LinkedType),
		LinkedID:    link.LinkedID,
		LinkedTitle: sql.NullString{String: link.LinkedTitle, Valid: link.LinkedTitle != ""},
		CreatedAt:   link.CreatedAt,
	}
}

type profileRow struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
}

func (r profileRow) toDomain() Profile {
	return Profile{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		Role:         r.Role,
		Active:       r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+` ORDER BY d.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var row documentRow
	err := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+documentFrom+` WHERE d.id=$1`, id).Scan(row.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	doc := row.toDomain()

	versions, err := s.ListVersions(ctx, id)
	if err != nil {
		return Document{}, err
	}
	links, err := s.listLinks(ctx, id)
	if err != nil {
		return Document{}, err
	}
	doc.Versions = versions
	doc.Links = links
	return doc, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID("")
	}
	row := documentRowFromDomain(doc)
	var slug any
	if row.Slug != "" {
		slug = row.Slug
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, title, slug, content, content_html, summary, category, tags, status, author_id, parent_id, is_pinned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, ARRAY(SELECT jsonb_array_elements_text($8::jsonb)), $9, $10, $11, $12)
		RETURNING view_count, created_at, updated_at
	`, row.ID, row.Title, slug, row.Content, row.ContentHTML, row.Summary, row.Category, row.TagsJSON, row.Status, row.AuthorID, row.ParentID, row.IsPinned).
		Scan(&row.ViewCount, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	inserted := row.toDomain()
	inserted.AuthorName = doc.AuthorName
	return inserted, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, id string, patch DocumentPatch, snapshot *VersionDraft) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	title, content, err := lockDocument(ctx, tx, id)
	if err != nil {
		return err
	}
	if snapshot != nil {
		draft := VersionDraft{
			Title:         title,
			Content:       content,
			ChangeSummary: snapshot.ChangeSummary,
			AuthorID:      snapshot.AuthorID,
		}
		if _, err := insertVersionTx(ctx, tx, id, draft); err != nil {
			return err
		}
	}

	assignments, args := patchAssignments(patch)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id=$%d`, strings.Join(assignments, ", "), len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViewCount bumps the counter in a single statement so concurrent
// readers never lose an increment.
func (s *PostgresStore) IncrementViewCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents SET view_count = view_count + 1 WHERE id=$1 RETURNING view_count
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment view count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertVersion(ctx context.Context, documentID string, draft VersionDraft) (DocumentVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("begin version tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := lockDocument(ctx, tx, documentID); err != nil {
		return DocumentVersion{}, err
	}
	version, err := insertVersionTx(ctx, tx, documentID, draft)
	if err != nil {
		return DocumentVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return DocumentVersion{}, fmt.Errorf("commit version: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, title, content, change_summary, author_id, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version_number DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var row versionRow
		if err := rows.Scan(&row.ID, &row.DocumentID, &row.VersionNumber, &row.Title, &row.Content, &row.ChangeSummary, &row.AuthorID, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertLink(ctx context.Context, link DocumentLink) (DocumentLink, error) {
	if link.ID == "" {
		link.ID = util.NewID("")
	}
	row := linkRowFromDomain(link)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_links (id, document_id, linked_type, linked_id, linked_title)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, row.ID, row.DocumentID, row.LinkedType, row.LinkedID, row.LinkedTitle).Scan(&row.CreatedAt)
	if err != nil {
		return DocumentLink{}, fmt.Errorf("insert link: %w", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) DeleteLink(ctx context.Context, linkID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_links WHERE id=$1`, linkID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete link rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SearchPublished(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+`
		WHERE d.status = 'published'
		  AND (d.title ILIKE $1 OR d.content ILIKE $1)
		ORDER BY d.updated_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	return s.getProfile(ctx, `WHERE id::text=$1`, id)
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	return s.getProfile(ctx, `WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email))
}

func (s *PostgresStore) getProfile(ctx context.Context, where string, arg string) (Profile, error) {
	var row profileRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id::text, email, display_name, role, is_active, password_hash, created_at
		FROM profiles `+where, arg).Scan(&row.ID, &row.Email, &row.DisplayName, &row.Role, &row.IsActive, &row.PasswordHash, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	var row profileRow
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (email, display_name, role, is_active, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET display_name=EXCLUDED.display_name, role=EXCLUDED.role, is_active=EXCLUDED.is_active,
			password_hash=EXCLUDED.password_hash, updated_at=NOW()
		RETURNING id::text, email, display_name, role, is_active, password_hash, created_at
	`, profile.Email, profile.DisplayName, profile.Role, profile.Active, profile.PasswordHash).
		Scan(&row.ID, &row.Email, &row.DisplayName, &row.Role, &row.IsActive, &row.PasswordHash, &row.CreatedAt)
	if err != nil {
		return Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) listLinks(ctx context.Context, documentID string) ([]DocumentLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, linked_type, linked_id, linked_title, created_at
		FROM document_links
		WHERE document_id=$1
		ORDER BY created_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentLink, 0)
	for rows.Next() {
		var row linkRow
		if err := rows.Scan(&row.ID, &row.DocumentID, &row.LinkedType, &row.LinkedID, &row.LinkedTitle, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return items, nil
}

// lockDocument takes a row lock on the parent document so version numbers
// are assigned one writer at a time, and returns the locked title and
// content.
func lockDocument(ctx context.Context, tx *sql.Tx, id string) (string, string, error) {
	var title, content string
	err := tx.QueryRowContext(ctx, `SELECT title, content FROM documents WHERE id=$1 FOR UPDATE`, id).Scan(&title, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("lock document: %w", err)
	}
	return title, content, nil
}

func insertVersionTx(ctx context.Context, tx *sql.Tx, documentID string, draft VersionDraft) (DocumentVersion, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_versions WHERE document_id=$1`, documentID).Scan(&count); err != nil {
		return DocumentVersion{}, fmt.Errorf("count versions: %w", err)
	}
	row := versionRow{
		ID:            util.NewID(""),
		DocumentID:    documentID,
		VersionNumber: count + 1,
		Title:         draft.Title,
		Content:       draft.Content,
		ChangeSummary: sql.NullString{String: draft.ChangeSummary, Valid: draft.ChangeSummary != ""},
		AuthorID:      draft.AuthorID,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (id, document_id, version_number, title, content, change_summary, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, row.ID, row.DocumentID, row.VersionNumber, row.Title, row.Content, row.ChangeSummary, row.AuthorID).Scan(&row.CreatedAt)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("insert version: %w", err)
	}
	return row.toDomain(), nil
}

// patchAssignments builds the SET list for a partial update. updated_at is
// always written.
func patchAssignments(patch DocumentPatch) ([]string, []any) {
	var assignments []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Content != nil {
		set("content", *patch.Content)
	}
	if patch.ContentHTML != nil {
		set("content_html", *patch.ContentHTML)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Tags != nil {
		args = append(args, encodeTags(*patch.Tags))
		assignments = append(assignments, fmt.Sprintf("tags=ARRAY(SELECT jsonb_array_elements_text($%d::jsonb))", len(args)))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.ParentID != nil {
		set("parent_id", sql.NullString{String: *patch.ParentID, Valid: *patch.ParentID != ""})
	}
	if patch.IsPinned != nil {
		set("is_pinned", *patch.IsPinned)
	}
	if patch.UpdatedAt.IsZero() {
		assignments = append(assignments, "updated_at=NOW()")
	} else {
		set("updated_at", patch.UpdatedAt)
	}
	return assignments, args
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	items := make([]Document, 0)
	for rows.Next() {
		var row documentRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	payload, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
