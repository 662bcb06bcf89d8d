package search

import (
	"context"

	"github.com/rs/zerolog"

	"opsdesk/api/internal/store"
)

// Fallback is the backend query used when Meilisearch is absent or failing.
type Fallback interface {
	SearchPublished(ctx context.Context, query string, limit int) ([]store.Document, error)
	ListDocuments(ctx context.Context) ([]store.Document, error)
}

// Service tries Meilisearch first and falls back to the persistence backend.
type Service struct {
	meili    *Meili
	fallback Fallback
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili, fallback Fallback, log zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) indexAvailable() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexHealthy reports whether the Meilisearch index is in use.
func (s *Service) IndexHealthy() bool {
	return s.indexAvailable()
}

func (s *Service) Search(ctx context.Context, text string, limit int) ([]store.Document, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if s.indexAvailable() {
		records, err := s.meili.Search(text, limit)
		if err == nil {
			docs := make([]store.Document, 0, len(records))
			for _, record := range records {
				docs = append(docs, record.Document())
			}
			return docs, nil
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to backend")
	}

	if s.fallback == nil {
		return []store.Document{}, nil
	}
	docs, err := s.fallback.SearchPublished(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// IndexDocument indexes doc in the background.
func (s *Service) IndexDocument(doc store.Document) {
	if !s.indexAvailable() {
		return
	}
	record := RecordFromDocument(doc)
	go func() {
		if err := s.meili.IndexRecord(record); err != nil {
			s.log.Warn().Err(err).Str("document_id", record.ID).Msg("index document")
		}
	}()
}

// DeleteDocument removes id from the index in the background.
func (s *Service) DeleteDocument(id string) {
	if !s.indexAvailable() {
		return
	}
	go func() {
		if err := s.meili.DeleteRecord(id); err != nil {
			s.log.Warn().Err(err).Str("document_id", id).Msg("delete indexed document")
		}
	}()
}

// ReindexAll pushes every stored document into Meilisearch. Called at
// startup when the index is reachable.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexAvailable() || s.fallback == nil {
		return
	}
	docs, err := s.fallback.ListDocuments(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reindex load failed")
		return
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, RecordFromDocument(doc))
	}
	if err := s.meili.IndexRecords(records); err != nil {
		s.log.Warn().Err(err).Msg("reindex documents")
		return
	}
	s.log.Info().Int("documents", len(records)).Msg("search index rebuilt")
}
