package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxDocuments = "opsdesk_documents"

// searchableAttributes mirrors the database fallback, which matches on
// title and content only.
var searchableAttributes = []string{"title", "content"}

// Meili searches and indexes documents in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects and configures the index. An unreachable server leaves
// the client unhealthy; a background loop keeps checking.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.With().Str("component", "meilisearch").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxDocuments, PrimaryKey: "id"}); err != nil {
		m.log.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxDocuments)
	filterable := []interface{}{"status", "category", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Msg("update filterable attributes")
	}
	searchable := append([]string(nil), searchableAttributes...)
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Msg("update searchable attributes")
	}
	if _, err := index.UpdateTypoTolerance(&meili.TypoTolerance{Enabled: false}); err != nil {
		m.log.Warn().Err(err).Msg("disable typo tolerance")
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries published documents only.
func (m *Meili) Search(text string, limit int) ([]Record, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp, err := m.client.Index(idxDocuments).Search(text, &meili.SearchRequest{
		Limit:                int64(limit),
		Filter:               `status = "published"`,
		AttributesToSearchOn: searchableAttributes,
		MatchingStrategy:     meili.All,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	records := make([]Record, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		record, err := recordFromHit(hit)
		if err != nil {
			m.log.Warn().Err(err).Msg("skip undecodable hit")
			continue
		}
		// Word-prefix hits that do not contain the query verbatim are dropped.
		if !record.Matches(text) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func recordFromHit(hit meili.Hit) (Record, error) {
	raw := make(map[string]json.RawMessage, len(hit))
	for key, value := range hit {
		if strings.HasPrefix(key, "_") {
			continue
		}
		raw[key] = value
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return Record{}, fmt.Errorf("encode hit: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("decode hit: %w", err)
	}
	if record.ID == "" {
		return Record{}, fmt.Errorf("hit without id")
	}
	return record, nil
}

func (m *Meili) IndexRecord(record Record) error {
	_, err := m.client.Index(idxDocuments).AddDocuments([]Record{record}, nil)
	return err
}

func (m *Meili) IndexRecords(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteRecord(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}
