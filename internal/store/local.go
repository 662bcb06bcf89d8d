package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/util"
)

// ProfilesKey holds the profiles known in local mode.
const ProfilesKey = "local_profiles"

// LocalStore is the Backend used when no remote database is configured. The
// whole document list, versions included, lives in the mirror.
type LocalStore struct {
	mu     sync.Mutex
	cache  localcache.Cache
	mirror *Mirror
	now    func() time.Time
}

func NewLocalStore(cache localcache.Cache) *LocalStore {
	return &LocalStore{
		cache:  cache,
		mirror: NewMirror(cache),
		now:    time.Now,
	}
}

func (s *LocalStore) Mode() Mode { return ModeLocal }

func (s *LocalStore) Ping(context.Context) error { return nil }

func (s *LocalStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Document, 0, len(docs))
	for _, doc := range docs {
		item := doc.Clone()
		item.Versions = nil
		item.Links = nil
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

func (s *LocalStore) GetDocument(ctx context.Context, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return Document{}, err
	}
	idx := indexOf(docs, id)
	if idx < 0 {
		return Document{}, ErrNotFound
	}
	doc := docs[idx].Clone()
	doc.Versions = newestFirst(doc.Versions)
	doc.Links = []DocumentLink{}
	return doc, nil
}

func (s *LocalStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return Document{}, err
	}
	if doc.ID == "" {
		doc.ID = util.NewID("local")
	}
	now := s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	doc.Versions = nil
	doc.Links = nil
	docs = append([]Document{doc}, docs...)
	if err := s.mirror.Save(ctx, docs); err != nil {
		return Document{}, err
	}
	return doc.Clone(), nil
}

func (s *LocalStore) UpdateDocument(ctx context.Context, id string, patch DocumentPatch, snapshot *VersionDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(docs, id)
	if idx < 0 {
		return ErrNotFound
	}
	if snapshot != nil {
		draft := VersionDraft{
			Title:         docs[idx].Title,
			Content:       docs[idx].Content,
			ChangeSummary: snapshot.ChangeSummary,
			AuthorID:      snapshot.AuthorID,
		}
		docs[idx].Versions = append(docs[idx].Versions, s.newVersion(id, len(docs[idx].Versions)+1, draft))
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now()
	}
	patch.Apply(&docs[idx])
	return s.mirror.Save(ctx, docs)
}

func (s *LocalStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(docs, id)
	if idx < 0 {
		return ErrNotFound
	}
	docs = append(docs[:idx], docs[idx+1:]...)
	return s.mirror.Save(ctx, docs)
}

func (s *LocalStore) IncrementViewCount(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return 0, err
	}
	idx := indexOf(docs, id)
	if idx < 0 {
		return 0, ErrNotFound
	}
	docs[idx].ViewCount++
	if err := s.mirror.Save(ctx, docs); err != nil {
		return 0, err
	}
	return docs[idx].ViewCount, nil
}

func (s *LocalStore) InsertVersion(ctx context.Context, documentID string, draft VersionDraft) (DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return DocumentVersion{}, err
	}
	idx := indexOf(docs, documentID)
	if idx < 0 {
		return DocumentVersion{}, ErrNotFound
	}
	version := s.newVersion(documentID, len(docs[idx].Versions)+1, draft)
	docs[idx].Versions = append(docs[idx].Versions, version)
	if err := s.mirror.Save(ctx, docs); err != nil {
		return DocumentVersion{}, err
	}
	return version, nil
}

func (s *LocalStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, err := s.mirror.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOf(docs, documentID)
	if idx < 0 {
		return []DocumentVersion{}, nil
	}
	return newestFirst(docs[idx].Versions), nil
}

func (s *LocalStore) InsertLink(context.Context, DocumentLink) (DocumentLink, error) {
	return DocumentLink{}, ErrNotConfigured
}

func (s *LocalStore) DeleteLink(context.Context, string) error {
	return ErrNotConfigured
}

func (s *LocalStore) SearchPublished(ctx context.Context, query string, limit int) ([]Document, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	items := make([]Document, 0)
	for _, doc := range docs {
		if doc.Status != StatusPublished {
			continue
		}
		if strings.Contains(strings.ToLower(doc.Title), needle) || strings.Contains(strings.ToLower(doc.Content), needle) {
			items = append(items, doc)
		}
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *LocalStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return Profile{}, err
	}
	for _, profile := range profiles {
		if profile.ID == id {
			return profile, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (s *LocalStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return Profile{}, err
	}
	for _, profile := range profiles {
		if strings.EqualFold(profile.Email, strings.TrimSpace(email)) {
			return profile, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (s *LocalStore) UpsertProfile(ctx context.Context, profile Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.loadProfiles(ctx)
	if err != nil {
		return Profile{}, err
	}
	replaced := false
	for i := range profiles {
		if strings.EqualFold(profiles[i].Email, profile.Email) {
			profile.ID = profiles[i].ID
			profile.CreatedAt = profiles[i].CreatedAt
			profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		if profile.ID == "" {
			profile.ID = util.NewID("local")
		}
		if profile.CreatedAt.IsZero() {
			profile.CreatedAt = s.now()
		}
		profiles = append(profiles, profile)
	}
	payload, err := json.Marshal(profiles)
	if err != nil {
		return Profile{}, fmt.Errorf("marshal profiles: %w", err)
	}
	if err := s.cache.Set(ctx, ProfilesKey, string(payload)); err != nil {
		return Profile{}, fmt.Errorf("write profiles: %w", err)
	}
	return profile, nil
}

func (s *LocalStore) loadProfiles(ctx context.Context) ([]Profile, error) {
	raw, err := s.cache.Get(ctx, ProfilesKey)
	if errors.Is(err, localcache.ErrMiss) {
		return []Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var profiles []Profile
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		return []Profile{}, nil
	}
	return profiles, nil
}

func (s *LocalStore) newVersion(documentID string, number int, draft VersionDraft) DocumentVersion {
	return DocumentVersion{
		ID:            util.NewID("local"),
		DocumentID:    documentID,
		VersionNumber: number,
		Title:         draft.Title,
		Content:       draft.Content,
		ChangeSummary: draft.ChangeSummary,
		AuthorID:      draft.AuthorID,
		CreatedAt:     s.now(),
	}
}

func indexOf(docs []Document, id string) int {
	for i := range docs {
		if docs[i].ID == id {
			return i
		}
	}
	return -1
}

func newestFirst(versions []DocumentVersion) []DocumentVersion {
	items := append([]DocumentVersion{}, versions...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].VersionNumber > items[j].VersionNumber
	})
	return items
}
